package pool

import (
	"sort"
	"strconv"

	"github.com/nerrad567/gray-logic-controls/internal/entity"
)

// step is one button step: a set of action lists keyed by ActionSetID.
type step struct {
	sets         map[ActionSetID]*entity.List
	runWhileHeld map[ActionSetID]bool
	name         string
}

func (st *step) setIDs() []ActionSetID {
	ids := make([]ActionSetID, 0, len(st.sets))
	for id := range st.sets {
		ids = append(ids, id)
	}
	sortActionSetIDs(ids)
	return ids
}

func (st *step) cleanup() {
	for _, list := range st.sets {
		list.Cleanup()
	}
}

func actionSetDefinition(setID ActionSetID) entity.ListDefinition {
	return entity.ListDefinition{GroupID: "action_set:" + string(setID), Type: entity.TypeAction}
}

// newStep creates a step with empty down and up sets, plus rotate sets when
// rotary actions are enabled.
func (p *Pool) newStep() *step {
	st := &step{
		sets:         make(map[ActionSetID]*entity.List),
		runWhileHeld: make(map[ActionSetID]bool),
	}
	st.sets[ActionSetDown] = entity.NewList(p.env, actionSetDefinition(ActionSetDown))
	st.sets[ActionSetUp] = entity.NewList(p.env, actionSetDefinition(ActionSetUp))
	if p.rotaryActions {
		p.addRotarySets(st)
	}
	return st
}

func (p *Pool) addRotarySets(st *step) bool {
	added := false
	for _, id := range []ActionSetID{ActionSetRotateLeft, ActionSetRotateRight} {
		if _, ok := st.sets[id]; !ok {
			st.sets[id] = entity.NewList(p.env, actionSetDefinition(id))
			added = true
		}
	}
	return added
}

func (p *Pool) resetSteps() {
	for _, st := range p.steps {
		st.cleanup()
	}
	p.steps = map[string]*step{"0": p.newStep()}
	p.stepOrder = []string{"0"}
	p.activeStep = 0
	p.nextStepID = 1
}

func (p *Pool) allocStepID() string {
	for {
		id := strconv.Itoa(p.nextStepID)
		p.nextStepID++
		if _, exists := p.steps[id]; !exists {
			return id
		}
	}
}

func (p *Pool) actionSetList(stepID string, setID ActionSetID) (*entity.List, bool) {
	st, ok := p.steps[stepID]
	if !ok {
		return nil, false
	}
	list, ok := st.sets[setID]
	return list, ok
}

func (p *Pool) loadSteps(s Storage, seen map[string]struct{}, skipSubscribe, isImport bool) {
	for _, st := range p.steps {
		st.cleanup()
	}
	p.steps = make(map[string]*step, len(s.Steps))
	p.stepOrder = nil
	p.activeStep = 0
	p.nextStepID = 0

	for _, id := range orderedStepIDs(s) {
		stored := s.Steps[id]
		st := &step{
			sets:         make(map[ActionSetID]*entity.List, len(stored.ActionSets)),
			runWhileHeld: make(map[ActionSetID]bool),
			name:         stored.Options.Name,
		}

		rawIDs := make([]string, 0, len(stored.ActionSets))
		for raw := range stored.ActionSets {
			rawIDs = append(rawIDs, raw)
		}
		sort.Strings(rawIDs)

		for _, raw := range rawIDs {
			setID, ok := ParseActionSetID(raw)
			if !ok {
				p.logger.Warn("dropping action set with invalid id",
					"control_id", p.env.ControlID,
					"step_id", id,
					"set_id", raw,
				)
				continue
			}
			list := entity.NewList(p.env, actionSetDefinition(setID))
			list.LoadStorage(entity.EnsureUniqueIDs(stored.ActionSets[raw], seen), skipSubscribe, isImport)
			st.sets[setID] = list
		}
		for _, n := range stored.Options.RunWhileHeld {
			setID := ActionSetID(strconv.Itoa(n))
			if _, ok := st.sets[setID]; ok {
				st.runWhileHeld[setID] = true
			}
		}
		if p.rotaryActions {
			p.addRotarySets(st)
		}

		p.steps[id] = st
		p.stepOrder = append(p.stepOrder, id)
		if n, err := strconv.Atoi(id); err == nil && n >= p.nextStepID {
			p.nextStepID = n + 1
		}
	}

	if len(p.stepOrder) == 0 {
		p.resetSteps()
	}
}

// orderedStepIDs honours the persisted step_order, then appends any steps it
// does not mention in numeric order.
func orderedStepIDs(s Storage) []string {
	out := make([]string, 0, len(s.Steps))
	used := make(map[string]bool, len(s.Steps))
	for _, id := range s.StepOrder {
		if _, ok := s.Steps[id]; ok && !used[id] {
			out = append(out, id)
			used[id] = true
		}
	}

	var rest []string
	for id := range s.Steps {
		if !used[id] {
			rest = append(rest, id)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		ni, errI := strconv.Atoi(rest[i])
		nj, errJ := strconv.Atoi(rest[j])
		if errI == nil && errJ == nil {
			return ni < nj
		}
		if (errI == nil) != (errJ == nil) {
			return errI == nil
		}
		return rest[i] < rest[j]
	})
	return append(out, rest...)
}

func (p *Pool) saveSteps(s *Storage) {
	s.Steps = make(map[string]StepModel, len(p.steps))
	s.StepOrder = append([]string(nil), p.stepOrder...)

	for id, st := range p.steps {
		sm := StepModel{
			ActionSets: make(map[string][]entity.Model, len(st.sets)),
			Options: StepOptions{
				RunWhileHeld: []int{},
				Name:         st.name,
			},
		}
		for setID, list := range st.sets {
			sm.ActionSets[string(setID)] = list.AsModels(false)
		}
		for _, setID := range st.setIDs() {
			if !st.runWhileHeld[setID] {
				continue
			}
			if n, ok := setID.Number(); ok {
				sm.Options.RunWhileHeld = append(sm.Options.RunWhileHeld, n)
			}
		}
		s.Steps[id] = sm
	}
}

// GetStepIDs returns the step IDs in display order.
func (p *Pool) GetStepIDs() []string {
	return append([]string(nil), p.stepOrder...)
}

// GetActiveStepIndex returns the index of the current step in GetStepIDs.
func (p *Pool) GetActiveStepIndex() int {
	return p.activeStep
}

// GetActiveStepID returns the ID of the current step, or "" for pools
// without steps.
func (p *Pool) GetActiveStepID() string {
	if len(p.stepOrder) == 0 {
		return ""
	}
	return p.stepOrder[p.activeStep]
}

// GetStepName returns the user label of a step.
func (p *Pool) GetStepName(stepID string) (string, bool) {
	st, ok := p.steps[stepID]
	if !ok {
		return "", false
	}
	return st.name, true
}

// GetActionSetIDs returns the sets of a step, fixed sets first.
func (p *Pool) GetActionSetIDs(stepID string) []ActionSetID {
	st, ok := p.steps[stepID]
	if !ok {
		return nil
	}
	return st.setIDs()
}

// GetRunWhileHeld reports whether a numbered set fires while held.
func (p *Pool) GetRunWhileHeld(stepID string, setID ActionSetID) bool {
	st, ok := p.steps[stepID]
	if !ok {
		return false
	}
	return st.runWhileHeld[setID]
}

// GetActionsForSet returns the enabled actions of a set of the current step.
func (p *Pool) GetActionsForSet(setID ActionSetID) []*entity.Entity {
	list, ok := p.actionSetList(p.GetActiveStepID(), setID)
	if !ok {
		return nil
	}
	return enabledOnly(list.GetDirectEntities())
}

// StepAdd appends a new empty step.
func (p *Pool) StepAdd() (string, bool) {
	if !p.desc.steps {
		return "", false
	}
	id := p.allocStepID()
	p.steps[id] = p.newStep()
	p.stepOrder = append(p.stepOrder, id)
	p.commit(true)
	return id, true
}

// StepDuplicate inserts a copy of a step, with fresh entity IDs, directly
// after it.
func (p *Pool) StepDuplicate(stepID string) (string, bool) {
	src, ok := p.steps[stepID]
	if !ok {
		return "", false
	}

	cpy := &step{
		sets:         make(map[ActionSetID]*entity.List, len(src.sets)),
		runWhileHeld: make(map[ActionSetID]bool, len(src.runWhileHeld)),
		name:         src.name,
	}
	for setID, list := range src.sets {
		dup := entity.NewList(p.env, list.Definition())
		dup.LoadStorage(list.AsModels(false), false, true)
		cpy.sets[setID] = dup
	}
	for setID, held := range src.runWhileHeld {
		cpy.runWhileHeld[setID] = held
	}

	id := p.allocStepID()
	p.steps[id] = cpy

	idx := p.stepIndex(stepID)
	p.stepOrder = append(p.stepOrder[:idx+1], append([]string{id}, p.stepOrder[idx+1:]...)...)
	if p.activeStep > idx {
		p.activeStep++
	}

	p.commit(true)
	return id, true
}

// StepRemove deletes a step. The last remaining step cannot be removed.
func (p *Pool) StepRemove(stepID string) bool {
	st, ok := p.steps[stepID]
	if !ok || len(p.stepOrder) <= 1 {
		return false
	}

	idx := p.stepIndex(stepID)
	st.cleanup()
	delete(p.steps, stepID)
	p.stepOrder = append(p.stepOrder[:idx], p.stepOrder[idx+1:]...)

	if idx < p.activeStep {
		p.activeStep--
	}
	if p.activeStep >= len(p.stepOrder) {
		p.activeStep = len(p.stepOrder) - 1
	}

	p.commit(true)
	return true
}

// StepSwap exchanges the positions of two steps. The current step stays
// current.
func (p *Pool) StepSwap(stepID1, stepID2 string) bool {
	if _, ok := p.steps[stepID1]; !ok {
		return false
	}
	if _, ok := p.steps[stepID2]; !ok {
		return false
	}

	active := p.GetActiveStepID()
	i, j := p.stepIndex(stepID1), p.stepIndex(stepID2)
	p.stepOrder[i], p.stepOrder[j] = p.stepOrder[j], p.stepOrder[i]
	p.activeStep = p.stepIndex(active)

	p.commit(true)
	return true
}

// StepSelectCurrent makes a step current.
func (p *Pool) StepSelectCurrent(stepID string) bool {
	if _, ok := p.steps[stepID]; !ok {
		return false
	}
	p.activeStep = p.stepIndex(stepID)
	p.commit(true)
	return true
}

// StepAdvanceDelta moves the current step by delta positions, wrapping at
// either end.
func (p *Pool) StepAdvanceDelta(delta int) bool {
	n := len(p.stepOrder)
	if n == 0 {
		return false
	}
	next := ((p.activeStep+delta)%n + n) % n
	return p.StepSelectCurrent(p.stepOrder[next])
}

// StepRename sets the user label of a step.
func (p *Pool) StepRename(stepID, name string) bool {
	st, ok := p.steps[stepID]
	if !ok {
		return false
	}
	st.name = name
	p.commit(true)
	return true
}

// SetRotaryActions adds or removes the rotate sets on every step.
func (p *Pool) SetRotaryActions(enabled bool) {
	if !p.desc.steps || p.rotaryActions == enabled {
		p.rotaryActions = enabled
		return
	}
	p.rotaryActions = enabled

	for _, id := range p.stepOrder {
		st := p.steps[id]
		if enabled {
			p.addRotarySets(st)
			continue
		}
		for _, setID := range []ActionSetID{ActionSetRotateLeft, ActionSetRotateRight} {
			if list, ok := st.sets[setID]; ok {
				list.Cleanup()
				delete(st.sets, setID)
			}
		}
	}
	p.commit(true)
}

// ActionSetAdd creates a numbered set 1000 above the largest existing one
// (1000 when there are none).
func (p *Pool) ActionSetAdd(stepID string) (ActionSetID, bool) {
	st, ok := p.steps[stepID]
	if !ok {
		return "", false
	}

	highest := 0
	for id := range st.sets {
		if n, ok := id.Number(); ok && n > highest {
			highest = n
		}
	}
	setID := ActionSetID(strconv.Itoa(highest + numberedSetStep))
	st.sets[setID] = entity.NewList(p.env, actionSetDefinition(setID))

	p.commit(true)
	return setID, true
}

// ActionSetRemove deletes a numbered set. Fixed sets cannot be removed.
func (p *Pool) ActionSetRemove(stepID string, setID ActionSetID) bool {
	st, ok := p.steps[stepID]
	if !ok || setID.IsFixed() {
		return false
	}
	list, ok := st.sets[setID]
	if !ok {
		return false
	}

	list.Cleanup()
	delete(st.sets, setID)
	delete(st.runWhileHeld, setID)

	p.commit(true)
	return true
}

// ActionSetRename moves a numbered set to a new numbered ID. It fails when
// either ID is fixed or the new ID is already in use.
func (p *Pool) ActionSetRename(stepID string, oldID, newID ActionSetID) bool {
	st, ok := p.steps[stepID]
	if !ok || oldID.IsFixed() || newID.IsFixed() {
		return false
	}
	if _, ok := newID.Number(); !ok {
		return false
	}
	list, ok := st.sets[oldID]
	if !ok {
		return false
	}
	if _, taken := st.sets[newID]; taken {
		return false
	}

	// Entities keep their identity; only the slot changes.
	models := list.AsModels(false)
	list.Cleanup()
	moved := entity.NewList(p.env, actionSetDefinition(newID))
	moved.LoadStorage(models, false, false)

	delete(st.sets, oldID)
	st.sets[newID] = moved
	if st.runWhileHeld[oldID] {
		st.runWhileHeld[newID] = true
	}
	delete(st.runWhileHeld, oldID)

	p.commit(true)
	return true
}

// ActionSetRunWhileHeld sets whether a numbered set fires while held. Fixed
// sets are not affected.
func (p *Pool) ActionSetRunWhileHeld(stepID string, setID ActionSetID, runWhileHeld bool) bool {
	st, ok := p.steps[stepID]
	if !ok || setID.IsFixed() {
		return false
	}
	if _, ok := st.sets[setID]; !ok {
		return false
	}

	if runWhileHeld {
		st.runWhileHeld[setID] = true
	} else {
		delete(st.runWhileHeld, setID)
	}

	p.commit(true)
	return true
}

func (p *Pool) stepIndex(stepID string) int {
	for i, id := range p.stepOrder {
		if id == stepID {
			return i
		}
	}
	return -1
}
