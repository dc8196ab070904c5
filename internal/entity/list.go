package entity

import "slices"

// List is an ordered, constrained collection of entities forming one named
// slot of a control (e.g. "feedbacks", or the actions of one action set).
//
// Order is significant: it is execution and evaluation order. The backing
// slice is owned by the List; GetDirectEntities exposes it read-only.
type List struct {
	env      *Env
	def      ListDefinition
	entities []*Entity
}

// NewList creates an empty list for the given definition.
func NewList(env *Env, def ListDefinition) *List {
	return &List{
		env: env,
		def: def,
	}
}

// Definition returns the list's constraints.
func (l *List) Definition() ListDefinition {
	return l.def
}

// Len returns the number of direct entities.
func (l *List) Len() int {
	return len(l.entities)
}

// LoadStorage replaces the list's contents from persisted models.
//
// Entities that no longer satisfy the list's constraints, or that exceed its
// maximum count, are dropped silently. Each loaded entity is subscribed to
// its connection unless skipSubscribe is set. isImport gives every loaded
// entity a fresh ID.
func (l *List) LoadStorage(models []Model, skipSubscribe, isImport bool) {
	l.Cleanup()

	l.entities = make([]*Entity, 0, len(models))
	for i := range models {
		e := New(l.env, models[i], isImport)
		if !l.CanAcceptEntity(e) || l.atCapacity() {
			continue
		}
		l.entities = append(l.entities, e)
		if !skipSubscribe {
			e.Subscribe(true)
		}
	}
}

// GetDirectEntities returns the ordered top-level entities.
// Callers must not modify the returned slice.
func (l *List) GetDirectEntities() []*Entity {
	return l.entities
}

// GetAllEntities returns every entity in the list, depth first.
func (l *List) GetAllEntities() []*Entity {
	var all []*Entity
	for _, e := range l.entities {
		all = append(all, e)
		for _, group := range e.ChildGroups() {
			all = append(all, e.children[group].GetAllEntities()...)
		}
	}
	return all
}

// FindByID searches the list and all child lists for an entity.
func (l *List) FindByID(id string) *Entity {
	for _, e := range l.entities {
		if e.ID() == id {
			return e
		}
		for _, group := range e.ChildGroups() {
			if found := e.children[group].FindByID(id); found != nil {
				return found
			}
		}
	}
	return nil
}

// CanAcceptEntity reports whether the entity satisfies the type filters.
// Capacity is checked separately.
func (l *List) CanAcceptEntity(e *Entity) bool {
	if e == nil {
		return false
	}
	if l.def.Type != "" && e.Type() != l.def.Type {
		return false
	}
	if l.def.FeedbackSubType != "" && e.Type() == TypeFeedback {
		// Unknown sub-types are accepted: the connection may not be loaded yet.
		if st := e.FeedbackSubType(); st != "" && st != l.def.FeedbackSubType {
			return false
		}
	}
	return true
}

func (l *List) atCapacity() bool {
	return l.def.MaximumChildren > 0 && len(l.entities) >= l.def.MaximumChildren
}

// AddEntity appends an entity and subscribes it. It returns false, leaving
// the list untouched, when the entity violates the filters or the list is
// full.
func (l *List) AddEntity(e *Entity) bool {
	if !l.CanAcceptEntity(e) || l.atCapacity() {
		return false
	}
	l.entities = append(l.entities, e)
	e.Subscribe(true)
	return true
}

// RemoveEntity removes an entity (searching child lists too) and cleans it up.
func (l *List) RemoveEntity(id string) bool {
	for i, e := range l.entities {
		if e.ID() == id {
			l.entities = slices.Delete(l.entities, i, i+1)
			e.Cleanup()
			return true
		}
		for _, group := range e.ChildGroups() {
			if e.children[group].RemoveEntity(id) {
				return true
			}
		}
	}
	return false
}

// MoveEntity moves the entity at fromIndex to toIndex. Out of range indexes
// are rejected.
func (l *List) MoveEntity(fromIndex, toIndex int) bool {
	n := len(l.entities)
	if fromIndex < 0 || fromIndex >= n || toIndex < 0 || toIndex >= n {
		return false
	}
	if fromIndex == toIndex {
		return true
	}

	e := l.entities[fromIndex]
	l.entities = append(l.entities[:fromIndex], l.entities[fromIndex+1:]...)
	l.entities = append(l.entities[:toIndex], append([]*Entity{e}, l.entities[toIndex:]...)...)
	return true
}

// DuplicateEntity inserts a copy (with fresh IDs) directly after a top-level
// entity. The copy does not carry the cached value.
func (l *List) DuplicateEntity(id string) *Entity {
	if l.atCapacity() {
		return nil
	}
	for i, e := range l.entities {
		if e.ID() != id {
			continue
		}
		cpy := New(l.env, e.ToModel(false), true)
		l.entities = append(l.entities[:i+1], append([]*Entity{cpy}, l.entities[i+1:]...)...)
		cpy.Subscribe(true)
		return cpy
	}
	return nil
}

// GetBooleanFeedbackValue ANDs the boolean value of every enabled direct
// entity. An empty list is true.
func (l *List) GetBooleanFeedbackValue() bool {
	for _, e := range l.entities {
		if e.Disabled() {
			continue
		}
		if !e.BooleanValue() {
			return false
		}
	}
	return true
}

// UpdateFeedbackValues merges a batch of values reported by one connection
// and returns the IDs of entities whose cached value changed. Re-applying the
// same batch reports nothing.
func (l *List) UpdateFeedbackValues(connectionID string, values []FeedbackValue) []string {
	if len(values) == 0 {
		return nil
	}
	byID := make(map[string]any, len(values))
	for _, v := range values {
		byID[v.ID] = v.Value
	}
	return l.updateFeedbackValues(connectionID, byID)
}

func (l *List) updateFeedbackValues(connectionID string, values map[string]any) []string {
	var changed []string
	for _, e := range l.entities {
		changed = append(changed, e.updateFeedbackValues(connectionID, values)...)
	}
	return changed
}

// GetFeedbackStyleOverrides returns the styles of currently active, enabled
// feedbacks in list order.
func (l *List) GetFeedbackStyleOverrides() []StyleOverride {
	var overrides []StyleOverride
	for _, e := range l.entities {
		if style, ok := e.StyleOverride(); ok {
			overrides = append(overrides, StyleOverride{EntityID: e.ID(), Style: style})
		}
	}
	return overrides
}

// ForgetConnection removes every entity (at any depth) belonging to a
// deleted connection.
func (l *List) ForgetConnection(connectionID string) bool {
	changed := false
	kept := l.entities[:0]
	for _, e := range l.entities {
		if e.ConnectionID() == connectionID {
			e.Cleanup()
			changed = true
			continue
		}
		if e.forgetChildren(connectionID) {
			changed = true
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(l.entities); i++ {
		l.entities[i] = nil
	}
	l.entities = kept
	return changed
}

// ClearCachedValues drops cached values delivered by a connection and
// returns the affected IDs.
func (l *List) ClearCachedValues(connectionID string) []string {
	var cleared []string
	for _, e := range l.entities {
		cleared = append(cleared, e.clearValuesForConnection(connectionID)...)
	}
	return cleared
}

// Subscribe subscribes every direct entity (and children when recursive).
func (l *List) Subscribe(recursive bool) {
	for _, e := range l.entities {
		e.Subscribe(recursive)
	}
}

// Announce re-sends subscriptions for every direct entity (and children when
// recursive).
func (l *List) Announce(recursive bool) {
	for _, e := range l.entities {
		e.Announce(recursive)
	}
}

// Unsubscribe unsubscribes every direct entity (and children when recursive).
func (l *List) Unsubscribe(recursive bool) {
	for _, e := range l.entities {
		e.Unsubscribe(recursive)
	}
}

// Cleanup unsubscribes and drops every entity.
func (l *List) Cleanup() {
	for _, e := range l.entities {
		e.Cleanup()
	}
	l.entities = nil
}

// AsModels serialises the list in order.
func (l *List) AsModels(withValues bool) []Model {
	models := make([]Model, 0, len(l.entities))
	for _, e := range l.entities {
		models = append(models, e.ToModel(withValues))
	}
	return models
}
