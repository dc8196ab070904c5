package entity

import (
	"sort"

	"github.com/google/go-cmp/cmp"
)

// Entity is a live node of a control's entity tree.
//
// The Entity exclusively owns its child lists. Its cached feedback value is a
// single slot, replaced whenever the owning connection reports a different
// value.
type Entity struct {
	env      *Env
	model    Model // Children and CachedValue are always nil here
	children map[string]*List

	cachedValue any
	hasValue    bool
	subscribed  bool
}

// New builds a live Entity from its persisted model.
//
// When isCloned is true the entity and all of its descendants receive fresh
// IDs (import, duplicate). The new entity is not subscribed.
func New(env *Env, m Model, isCloned bool) *Entity {
	cpy := m.DeepCopy()
	children := cpy.Children
	cpy.Children = nil
	cpy.CachedValue = nil

	if isCloned || cpy.ID == "" {
		cpy.ID = NewID()
	}
	if cpy.Options == nil {
		cpy.Options = make(map[string]any)
	}

	e := &Entity{
		env:   env,
		model: *cpy,
	}
	e.buildChildren(children, isCloned)
	return e
}

// buildChildren creates the child lists from the definition's child groups,
// then loads whatever children were persisted.
func (e *Entity) buildChildren(children map[string][]Model, isCloned bool) {
	groups := make(map[string]ListDefinition)
	if def, ok := e.env.lookup(e.model.Type, e.model.ConnectionID, e.model.DefinitionID); ok {
		for _, g := range def.ChildGroups {
			groups[g.GroupID] = g
		}
	}
	for group := range children {
		if _, ok := groups[group]; !ok {
			groups[group] = ListDefinition{GroupID: group}
		}
	}
	if len(groups) == 0 {
		return
	}

	e.children = make(map[string]*List, len(groups))
	for group, def := range groups {
		list := NewList(e.env, def)
		list.LoadStorage(children[group], true, isCloned)
		e.children[group] = list
	}
}

func (e *Entity) ID() string           { return e.model.ID }
func (e *Entity) Type() Type           { return e.model.Type }
func (e *Entity) DefinitionID() string { return e.model.DefinitionID }
func (e *Entity) ConnectionID() string { return e.model.ConnectionID }
func (e *Entity) Disabled() bool       { return e.model.Disabled }
func (e *Entity) Headline() string     { return e.model.Headline }
func (e *Entity) IsInverted() bool     { return e.model.IsInverted }
func (e *Entity) VariableName() string { return e.model.VariableName }
func (e *Entity) Subscribed() bool     { return e.subscribed }

// Options returns a copy of the entity's options.
func (e *Entity) Options() map[string]any {
	return deepCopyMap(e.model.Options)
}

// Style returns a copy of the style applied when a boolean feedback is true.
func (e *Entity) Style() Style {
	return Style(deepCopyMap(e.model.Style))
}

// Value returns the last value reported by the connection.
func (e *Entity) Value() (any, bool) {
	return e.cachedValue, e.hasValue
}

// FeedbackSubType resolves the feedback sub-type from the connection's
// definition. It returns "" for non-feedbacks and unknown definitions.
func (e *Entity) FeedbackSubType() FeedbackSubType {
	if e.model.Type != TypeFeedback {
		return ""
	}
	def, ok := e.env.lookup(e.model.Type, e.model.ConnectionID, e.model.DefinitionID)
	if !ok {
		return ""
	}
	return def.FeedbackType
}

// SetOption sets a single option. Empty keys are ignored.
func (e *Entity) SetOption(key string, value any) bool {
	if key == "" {
		return false
	}
	e.model.Options[key] = deepCopyValue(value)
	e.resubscribe()
	return true
}

// SetOptions replaces all options. Empty keys are dropped.
func (e *Entity) SetOptions(options map[string]any) {
	cpy := make(map[string]any, len(options))
	for k, v := range options {
		if k == "" {
			continue
		}
		cpy[k] = deepCopyValue(v)
	}
	e.model.Options = cpy
	e.resubscribe()
}

// SetHeadline sets the user-facing headline.
func (e *Entity) SetHeadline(headline string) {
	e.model.Headline = headline
}

// SetVariableName sets the name a local variable is published under.
func (e *Entity) SetVariableName(name string) bool {
	if e.model.Type != TypeLocalVariable {
		return false
	}
	e.model.VariableName = name
	return true
}

// SetEnabled enables or disables the entity, subscribing or unsubscribing it
// (and its children) accordingly.
func (e *Entity) SetEnabled(enabled bool) {
	e.model.Disabled = !enabled
	if enabled {
		e.Subscribe(true)
	} else {
		e.Unsubscribe(true)
		e.clearValue()
	}
}

// SetInverted sets the boolean negation flag. Feedbacks only.
func (e *Entity) SetInverted(inverted bool) bool {
	if e.model.Type != TypeFeedback {
		return false
	}
	e.model.IsInverted = inverted
	return true
}

// SetStyleValue sets one style property applied when the feedback is true.
// A nil value removes the property. Feedbacks only.
func (e *Entity) SetStyleValue(key string, value any) bool {
	if e.model.Type != TypeFeedback || key == "" {
		return false
	}
	if value == nil {
		delete(e.model.Style, key)
		return true
	}
	if e.model.Style == nil {
		e.model.Style = make(Style)
	}
	e.model.Style[key] = deepCopyValue(value)
	return true
}

// SetConnectionID moves the entity to another connection. The cached value
// is dropped since it belonged to the old connection.
func (e *Entity) SetConnectionID(connectionID string) {
	if e.model.ConnectionID == connectionID {
		return
	}
	wasSubscribed := e.subscribed
	e.Unsubscribe(false)
	e.model.ConnectionID = connectionID
	e.clearValue()
	if wasSubscribed {
		e.Subscribe(false)
	}
}

// SetUpgradeIndex records the definition schema version the options match.
func (e *Entity) SetUpgradeIndex(index *int) {
	e.model.UpgradeIndex = index
}

// Subscribe registers the entity with its connection. It is idempotent and
// skips disabled entities.
func (e *Entity) Subscribe(recursive bool) {
	if e.model.Disabled {
		return
	}
	if !e.subscribed {
		e.subscribed = true
		if e.env != nil && e.env.Host != nil {
			e.env.Host.SubscribeEntity(e.env.ControlID, e.ToModel(false))
		}
	}
	if recursive {
		for _, list := range e.children {
			list.Subscribe(true)
		}
	}
}

// Unsubscribe removes the entity from its connection. It is idempotent.
func (e *Entity) Unsubscribe(recursive bool) {
	if e.subscribed {
		e.subscribed = false
		if e.env != nil && e.env.Host != nil {
			e.env.Host.UnsubscribeEntity(e.env.ControlID, e.ToModel(false))
		}
	}
	if recursive {
		for _, list := range e.children {
			list.Unsubscribe(true)
		}
	}
}

// resubscribe pushes the updated model to the connection.
func (e *Entity) resubscribe() {
	if e.subscribed && e.env != nil && e.env.Host != nil {
		e.env.Host.SubscribeEntity(e.env.ControlID, e.ToModel(false))
	}
}

// Announce re-sends the subscribe notice of a subscribed entity and
// subscribes one that is not, without unsubscribing first. Used after the
// connection side lost its state.
func (e *Entity) Announce(recursive bool) {
	if e.subscribed {
		e.resubscribe()
	} else {
		e.Subscribe(false)
	}
	if recursive {
		for _, list := range e.children {
			list.Announce(true)
		}
	}
}

// Cleanup unsubscribes the entity and all of its descendants.
func (e *Entity) Cleanup() {
	e.Unsubscribe(false)
	for _, list := range e.children {
		list.Cleanup()
	}
}

// ToModel serialises the entity and its children. Runtime-only fields
// (the cached value) are included only when withValue is true.
func (e *Entity) ToModel(withValue bool) Model {
	m := *e.model.DeepCopy()
	if withValue && e.hasValue {
		m.CachedValue = deepCopyValue(e.cachedValue)
	}
	if len(e.children) > 0 {
		m.Children = make(map[string][]Model, len(e.children))
		for group, list := range e.children {
			m.Children[group] = list.AsModels(withValue)
		}
	}
	return m
}

// ChildList returns the child list for a group.
func (e *Entity) ChildList(group string) (*List, bool) {
	list, ok := e.children[group]
	return list, ok
}

// ChildGroups returns the child group IDs in sorted order.
func (e *Entity) ChildGroups() []string {
	groups := make([]string, 0, len(e.children))
	for g := range e.children {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// BooleanValue returns the boolean result of a feedback after inversion.
// Non-feedbacks, non-boolean feedbacks and feedbacks without a boolean
// cached value are false.
func (e *Entity) BooleanValue() bool {
	if e.model.Type != TypeFeedback {
		return false
	}
	if st := e.FeedbackSubType(); st != "" && st != SubTypeBoolean {
		return false
	}
	v, ok := e.cachedValue.(bool)
	if !ok {
		return false
	}
	if e.model.IsInverted {
		return !v
	}
	return v
}

// StyleOverride returns the style this feedback currently contributes.
func (e *Entity) StyleOverride() (Style, bool) {
	if e.model.Type != TypeFeedback || e.model.Disabled {
		return nil, false
	}

	switch e.FeedbackSubType() {
	case SubTypeAdvanced:
		return asStyle(e.cachedValue)
	case SubTypeValue:
		return nil, false
	case SubTypeBoolean:
		if e.BooleanValue() && len(e.model.Style) > 0 {
			return e.Style(), true
		}
		return nil, false
	default:
		// Unknown definition: infer from the cached value's shape.
		if _, isBool := e.cachedValue.(bool); isBool {
			if e.BooleanValue() && len(e.model.Style) > 0 {
				return e.Style(), true
			}
			return nil, false
		}
		return asStyle(e.cachedValue)
	}
}

func asStyle(v any) (Style, bool) {
	switch s := v.(type) {
	case Style:
		if len(s) == 0 {
			return nil, false
		}
		return Style(deepCopyMap(s)), true
	case map[string]any:
		if len(s) == 0 {
			return nil, false
		}
		return Style(deepCopyMap(s)), true
	default:
		return nil, false
	}
}

// holdsValues reports whether connections deliver values to this entity.
func (e *Entity) holdsValues() bool {
	return e.model.Type == TypeFeedback || e.model.Type == TypeLocalVariable
}

// updateFeedbackValues applies a connection's batch to this entity and its
// descendants, returning the IDs whose value actually changed.
func (e *Entity) updateFeedbackValues(connectionID string, values map[string]any) []string {
	var changed []string

	if e.holdsValues() && e.model.ConnectionID == connectionID {
		if v, ok := values[e.model.ID]; ok {
			if !e.hasValue || !cmp.Equal(e.cachedValue, v) {
				e.cachedValue = deepCopyValue(v)
				e.hasValue = true
				changed = append(changed, e.model.ID)
			}
		}
	}

	for _, group := range e.ChildGroups() {
		changed = append(changed, e.children[group].updateFeedbackValues(connectionID, values)...)
	}
	return changed
}

// clearValue drops the cached value.
func (e *Entity) clearValue() bool {
	if !e.hasValue {
		return false
	}
	e.cachedValue = nil
	e.hasValue = false
	return true
}

// clearValuesForConnection drops cached values owned by a connection.
func (e *Entity) clearValuesForConnection(connectionID string) []string {
	var cleared []string
	if e.model.ConnectionID == connectionID && e.clearValue() {
		cleared = append(cleared, e.model.ID)
	}
	for _, group := range e.ChildGroups() {
		cleared = append(cleared, e.children[group].ClearCachedValues(connectionID)...)
	}
	return cleared
}

// forgetChildren removes descendants belonging to a deleted connection.
func (e *Entity) forgetChildren(connectionID string) bool {
	changed := false
	for _, list := range e.children {
		if list.ForgetConnection(connectionID) {
			changed = true
		}
	}
	return changed
}
