package pool

import (
	"fmt"

	"github.com/nerrad567/gray-logic-controls/internal/entity"
)

// Callbacks are the upward notifications a pool raises to its control.
// Any field may be nil.
type Callbacks struct {
	// CommitChange is called once after every structural edit. redraw is
	// true when the edit can change how the control renders.
	CommitChange func(redraw bool)

	// InvalidateControl is called when a value in a style or condition
	// list changed.
	InvalidateControl func()

	// LocalVariablesChanged is called with the names of local variables
	// whose values changed.
	LocalVariablesChanged func(names []string)
}

// Logger defines the logging interface used by the pool.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the dependencies for a Pool.
type Deps struct {
	Kind        Kind
	ControlID   string
	Host        entity.ConnectionHost
	Definitions entity.Definitions
	Callbacks   Callbacks
	Logger      Logger

	// RotaryActions adds rotate_left/rotate_right sets to every button step.
	RotaryActions bool
}

// Pool owns every entity list of one control.
type Pool struct {
	kind   Kind
	desc   descriptor
	env    *entity.Env
	cb     Callbacks
	logger Logger

	lists map[string]*entity.List

	// Button step state.
	steps         map[string]*step
	stepOrder     []string
	activeStep    int
	nextStepID    int
	rotaryActions bool
}

// New creates an empty pool for the given control kind. A button pool starts
// with a single step "0" holding empty down and up sets.
func New(deps Deps) (*Pool, error) {
	desc, ok := descriptors[deps.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, deps.Kind)
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	p := &Pool{
		kind:   deps.Kind,
		desc:   desc,
		cb:     deps.Callbacks,
		logger: logger,
		env: &entity.Env{
			ControlID:   deps.ControlID,
			Host:        deps.Host,
			Definitions: deps.Definitions,
		},
		lists:         make(map[string]*entity.List, len(desc.lists)),
		rotaryActions: deps.RotaryActions,
	}

	for _, ld := range desc.lists {
		p.lists[ld.id] = entity.NewList(p.env, ld.def)
	}

	if desc.steps {
		p.resetSteps()
	}

	return p, nil
}

// Kind returns the control kind this pool serves.
func (p *Pool) Kind() Kind {
	return p.kind
}

// ControlID returns the owning control's ID.
func (p *Pool) ControlID() string {
	return p.env.ControlID
}

// SupportsSteps reports whether the pool carries the step state machine.
func (p *Pool) SupportsSteps() bool {
	return p.desc.steps
}

func (p *Pool) commit(redraw bool) {
	if p.cb.CommitChange != nil {
		p.cb.CommitChange(redraw)
	}
}

func (p *Pool) invalidate() {
	if p.cb.InvalidateControl != nil {
		p.cb.InvalidateControl()
	}
}

// LoadStorage replaces the pool's contents from persisted storage.
//
// Entity IDs are made unique across the whole pool. Each loaded entity is
// subscribed unless skipSubscribe is set; isImport gives every entity a fresh
// ID. No callbacks are raised.
func (p *Pool) LoadStorage(s Storage, skipSubscribe, isImport bool) {
	seen := make(map[string]struct{})

	for _, ld := range p.desc.lists {
		models := entity.EnsureUniqueIDs(ld.load(&s), seen)
		p.lists[ld.id].LoadStorage(models, skipSubscribe, isImport)
	}

	if p.desc.steps {
		p.loadSteps(s, seen, skipSubscribe, isImport)
	}
}

// AsStorage returns the persisted shape of the pool. Cached values are not
// included.
func (p *Pool) AsStorage() Storage {
	var s Storage
	for _, ld := range p.desc.lists {
		ld.save(&s, p.lists[ld.id].AsModels(false))
	}
	if p.desc.steps {
		p.saveSteps(&s)
	}
	return s
}

// GetEntityList resolves a location to a list of this pool.
func (p *Pool) GetEntityList(loc Location) (*entity.List, bool) {
	if loc.isActionSet() {
		return p.actionSetList(loc.StepID, loc.SetID)
	}
	list, ok := p.lists[loc.List]
	return list, ok
}

// GetAllEntityLists returns every list of the pool: fixed lists in
// declaration order, then action sets by step order.
func (p *Pool) GetAllEntityLists() []*entity.List {
	out := make([]*entity.List, 0, len(p.desc.lists))
	for _, ld := range p.desc.lists {
		out = append(out, p.lists[ld.id])
	}
	for _, id := range p.stepOrder {
		st := p.steps[id]
		for _, setID := range st.setIDs() {
			out = append(out, st.sets[setID])
		}
	}
	return out
}

// GetAllEntities returns every entity of the pool, depth first.
func (p *Pool) GetAllEntities() []*entity.Entity {
	var out []*entity.Entity
	for _, list := range p.GetAllEntityLists() {
		out = append(out, list.GetAllEntities()...)
	}
	return out
}

// FindEntity returns an entity at any depth of the list at loc.
func (p *Pool) FindEntity(loc Location, id string) (*entity.Entity, bool) {
	list, ok := p.GetEntityList(loc)
	if !ok {
		return nil, false
	}
	e := list.FindByID(id)
	return e, e != nil
}

// targetList resolves the list an entity is added to: the list at loc, or
// the named child group of owner within it.
func (p *Pool) targetList(loc Location, owner *entity.Owner) (*entity.List, error) {
	list, ok := p.GetEntityList(loc)
	if !ok {
		return nil, ErrListNotFound
	}
	if owner == nil || owner.ParentID == "" {
		return list, nil
	}

	parent := list.FindByID(owner.ParentID)
	if parent == nil {
		return nil, fmt.Errorf("%w: owner %q", ErrEntityNotFound, owner.ParentID)
	}
	child, ok := parent.ChildList(owner.ChildGroup)
	if !ok {
		return nil, fmt.Errorf("%w: child group %q", ErrListNotFound, owner.ChildGroup)
	}
	return child, nil
}

// redrawFor reports whether edits to the list at loc affect rendering.
// Action lists never do.
func (p *Pool) redrawFor(loc Location) bool {
	if loc.isActionSet() {
		return false
	}
	list, ok := p.lists[loc.List]
	if !ok {
		return false
	}
	return list.Definition().Type != entity.TypeAction
}

// AddEntity adds a new entity (always with a fresh ID) to the list at loc,
// or to a child group of owner. The entity is subscribed on success.
func (p *Pool) AddEntity(loc Location, owner *entity.Owner, m entity.Model) (*entity.Entity, error) {
	list, err := p.targetList(loc, owner)
	if err != nil {
		return nil, err
	}

	e := entity.New(p.env, m, true)
	if !list.AddEntity(e) {
		p.logger.Debug("entity rejected by list",
			"control_id", p.env.ControlID,
			"group", list.Definition().GroupID,
			"type", m.Type,
		)
		return nil, ErrEntityRejected
	}

	p.commit(p.redrawFor(loc))
	return e, nil
}

// RemoveEntity removes an entity at any depth of the list at loc.
func (p *Pool) RemoveEntity(loc Location, id string) error {
	list, ok := p.GetEntityList(loc)
	if !ok {
		return ErrListNotFound
	}
	if !list.RemoveEntity(id) {
		return ErrEntityNotFound
	}
	p.commit(p.redrawFor(loc))
	return nil
}

// MoveEntity reorders an entity within the list at loc, or within a child
// group of owner.
func (p *Pool) MoveEntity(loc Location, owner *entity.Owner, fromIndex, toIndex int) error {
	list, err := p.targetList(loc, owner)
	if err != nil {
		return err
	}
	if !list.MoveEntity(fromIndex, toIndex) {
		return ErrInvalidIndex
	}
	p.commit(p.redrawFor(loc))
	return nil
}

// DuplicateEntity inserts a copy of a top-level entity directly after it.
func (p *Pool) DuplicateEntity(loc Location, id string) (*entity.Entity, error) {
	list, ok := p.GetEntityList(loc)
	if !ok {
		return nil, ErrListNotFound
	}
	if list.FindByID(id) == nil {
		return nil, ErrEntityNotFound
	}
	cpy := list.DuplicateEntity(id)
	if cpy == nil {
		return nil, ErrEntityRejected
	}
	p.commit(p.redrawFor(loc))
	return cpy, nil
}

// editEntity applies fn to an entity and commits when fn reports a change.
func (p *Pool) editEntity(loc Location, id string, fn func(e *entity.Entity) bool) error {
	e, ok := p.FindEntity(loc, id)
	if !ok {
		if _, listOK := p.GetEntityList(loc); !listOK {
			return ErrListNotFound
		}
		return ErrEntityNotFound
	}
	if fn(e) {
		p.commit(p.redrawFor(loc))
	}
	return nil
}

// SetEntityOption sets a single option of an entity.
func (p *Pool) SetEntityOption(loc Location, id, key string, value any) error {
	return p.editEntity(loc, id, func(e *entity.Entity) bool {
		return e.SetOption(key, value)
	})
}

// SetEntityOptions replaces every option of an entity.
func (p *Pool) SetEntityOptions(loc Location, id string, options map[string]any) error {
	return p.editEntity(loc, id, func(e *entity.Entity) bool {
		e.SetOptions(options)
		return true
	})
}

// SetEntityEnabled enables or disables an entity.
func (p *Pool) SetEntityEnabled(loc Location, id string, enabled bool) error {
	return p.editEntity(loc, id, func(e *entity.Entity) bool {
		if e.Disabled() == !enabled {
			return false
		}
		_, hadValue := e.Value()
		e.SetEnabled(enabled)
		if !enabled {
			// Its value no longer contributes to styles, conditions or
			// expressions.
			p.valueDropped(loc, e, hadValue)
		}
		return true
	})
}

// SetEntityHeadline sets the user label of an entity.
func (p *Pool) SetEntityHeadline(loc Location, id, headline string) error {
	return p.editEntity(loc, id, func(e *entity.Entity) bool {
		e.SetHeadline(headline)
		return true
	})
}

// SetEntityConnection moves an entity to a different connection.
func (p *Pool) SetEntityConnection(loc Location, id, connectionID string) error {
	return p.editEntity(loc, id, func(e *entity.Entity) bool {
		if e.ConnectionID() == connectionID {
			return false
		}
		_, hadValue := e.Value()
		e.SetConnectionID(connectionID)
		if hadValue {
			p.valueDropped(loc, e, true)
		}
		return true
	})
}

// SetFeedbackInverted sets the inversion flag of a feedback.
func (p *Pool) SetFeedbackInverted(loc Location, id string, inverted bool) error {
	return p.editEntity(loc, id, func(e *entity.Entity) bool {
		if e.IsInverted() == inverted {
			return false
		}
		return e.SetInverted(inverted)
	})
}

// SetFeedbackStyleValue sets (or, with a nil value, removes) one style
// property of a feedback.
func (p *Pool) SetFeedbackStyleValue(loc Location, id, key string, value any) error {
	return p.editEntity(loc, id, func(e *entity.Entity) bool {
		return e.SetStyleValue(key, value)
	})
}

// SetLocalVariableName renames a local variable.
func (p *Pool) SetLocalVariableName(loc Location, id, name string) error {
	return p.editEntity(loc, id, func(e *entity.Entity) bool {
		if e.VariableName() == name {
			return false
		}
		return e.SetVariableName(name)
	})
}

// valueDropped notifies the owner of the list at loc that e lost its cached
// value. Invalidating lists always redraw; local variables report their name
// only when a value was actually held.
func (p *Pool) valueDropped(loc Location, e *entity.Entity, hadValue bool) {
	if loc.isActionSet() {
		return
	}
	for _, ld := range p.desc.lists {
		if ld.id != loc.List {
			continue
		}
		switch ld.notify {
		case notifyInvalidate:
			p.invalidate()
		case notifyLocalVariables:
			if !hadValue || p.cb.LocalVariablesChanged == nil {
				return
			}
			if names := variableNamesFor(p.lists[ld.id], []string{e.ID()}); len(names) > 0 {
				p.cb.LocalVariablesChanged(names)
			}
		case notifyNone:
		}
		return
	}
}

// UpdateFeedbackValues routes a batch of values from one connection to every
// list of the pool. InvalidateControl fires once if any style or condition
// value changed; LocalVariablesChanged fires once with the affected names.
// It returns the IDs of every entity whose value changed.
func (p *Pool) UpdateFeedbackValues(connectionID string, values []entity.FeedbackValue) []string {
	if len(values) == 0 {
		return nil
	}

	var (
		changed    []string
		invalidate bool
		names      []string
	)

	for _, ld := range p.desc.lists {
		ids := p.lists[ld.id].UpdateFeedbackValues(connectionID, values)
		if len(ids) == 0 {
			continue
		}
		changed = append(changed, ids...)

		switch ld.notify {
		case notifyInvalidate:
			invalidate = true
		case notifyLocalVariables:
			names = append(names, variableNamesFor(p.lists[ld.id], ids)...)
		case notifyNone:
		}
	}

	// Action children (e.g. conditional actions) hold values too but never
	// notify.
	for _, id := range p.stepOrder {
		st := p.steps[id]
		for _, list := range st.sets {
			changed = append(changed, list.UpdateFeedbackValues(connectionID, values)...)
		}
	}

	if invalidate {
		p.invalidate()
	}
	if len(names) > 0 && p.cb.LocalVariablesChanged != nil {
		p.cb.LocalVariablesChanged(names)
	}

	return changed
}

// variableNamesFor maps changed entity IDs to the names of the top-level
// local variables containing them.
func variableNamesFor(list *entity.List, changed []string) []string {
	set := make(map[string]struct{}, len(changed))
	for _, id := range changed {
		set[id] = struct{}{}
	}

	var names []string
	for _, lv := range list.GetDirectEntities() {
		if lv.VariableName() == "" {
			continue
		}
		if _, ok := set[lv.ID()]; ok {
			names = append(names, lv.VariableName())
			continue
		}
		for _, child := range childEntities(lv) {
			if _, ok := set[child.ID()]; ok {
				names = append(names, lv.VariableName())
				break
			}
		}
	}
	return names
}

func childEntities(e *entity.Entity) []*entity.Entity {
	var out []*entity.Entity
	for _, group := range e.ChildGroups() {
		if list, ok := e.ChildList(group); ok {
			out = append(out, list.GetAllEntities()...)
		}
	}
	return out
}

// ForgetConnection removes every entity of a deleted connection. Structural
// removal commits with redraw.
func (p *Pool) ForgetConnection(connectionID string) bool {
	changed := false
	for _, list := range p.GetAllEntityLists() {
		if list.ForgetConnection(connectionID) {
			changed = true
		}
	}
	if changed {
		p.commit(true)
	}
	return changed
}

// ClearConnectionValues drops cached values received from a connection, for
// example when it restarts.
func (p *Pool) ClearConnectionValues(connectionID string) {
	var (
		invalidate bool
		names      []string
	)
	for _, ld := range p.desc.lists {
		ids := p.lists[ld.id].ClearCachedValues(connectionID)
		if len(ids) == 0 {
			continue
		}
		switch ld.notify {
		case notifyInvalidate:
			invalidate = true
		case notifyLocalVariables:
			names = append(names, variableNamesFor(p.lists[ld.id], ids)...)
		case notifyNone:
		}
	}
	for _, id := range p.stepOrder {
		for _, list := range p.steps[id].sets {
			list.ClearCachedValues(connectionID)
		}
	}

	if invalidate {
		p.invalidate()
	}
	if len(names) > 0 && p.cb.LocalVariablesChanged != nil {
		p.cb.LocalVariablesChanged(names)
	}
}

// SubscribeAll subscribes every entity of the pool.
func (p *Pool) SubscribeAll() {
	for _, list := range p.GetAllEntityLists() {
		list.Subscribe(true)
	}
}

// AnnounceAll re-sends the subscription of every entity.
func (p *Pool) AnnounceAll() {
	for _, list := range p.GetAllEntityLists() {
		list.Announce(true)
	}
}

// Destroy unsubscribes every entity. The pool must not be used afterwards.
func (p *Pool) Destroy() {
	for _, list := range p.GetAllEntityLists() {
		list.Cleanup()
	}
}

// GetFeedbackStyleOverrides returns the style contribution of each enabled
// feedback, in list order.
func (p *Pool) GetFeedbackStyleOverrides() []entity.StyleOverride {
	list, ok := p.lists[ListFeedbacks]
	if !ok {
		return nil
	}
	return list.GetFeedbackStyleOverrides()
}

// GetFeedbackEntities returns the models of the feedbacks list, optionally
// with their cached values.
func (p *Pool) GetFeedbackEntities(withValues bool) []entity.Model {
	list, ok := p.lists[ListFeedbacks]
	if !ok {
		return nil
	}
	return list.AsModels(withValues)
}

// GetLocalVariableEntities returns the top-level local variables.
func (p *Pool) GetLocalVariableEntities() []*entity.Entity {
	list, ok := p.lists[ListLocalVariables]
	if !ok {
		return nil
	}
	return list.GetDirectEntities()
}

// CheckConditionValue evaluates a trigger's condition: the AND of every
// enabled boolean feedback. Pools without a condition always report true.
func (p *Pool) CheckConditionValue() bool {
	if p.kind != KindTrigger {
		return true
	}
	return p.lists[ListFeedbacks].GetBooleanFeedbackValue()
}

// GetTriggerActions returns the enabled actions of a trigger, in order.
func (p *Pool) GetTriggerActions() []*entity.Entity {
	list, ok := p.lists[ListTriggerActions]
	if !ok {
		return nil
	}
	return enabledOnly(list.GetDirectEntities())
}

// GetRootEntity returns the single value feedback of an expression variable.
func (p *Pool) GetRootEntity() (*entity.Entity, bool) {
	if p.kind != KindExpressionVariable {
		return nil, false
	}
	entities := p.lists[ListFeedbacks].GetDirectEntities()
	if len(entities) == 0 {
		return nil, false
	}
	return entities[0], true
}

func enabledOnly(entities []*entity.Entity) []*entity.Entity {
	out := make([]*entity.Entity, 0, len(entities))
	for _, e := range entities {
		if !e.Disabled() {
			out = append(out, e)
		}
	}
	return out
}
