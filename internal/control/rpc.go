package control

import "github.com/nerrad567/gray-logic-controls/internal/pool"

// buttonOp runs a step or action-set operation. An unknown control yields
// (false, nil); a control without steps yields ErrUnsupportedOperation.
func (r *Registry) buttonOp(controlID string, fn func(p *pool.Pool) bool) (bool, error) {
	c, err := r.GetControl(controlID)
	if err != nil {
		return false, nil //nolint:nilerr // not-found is reported as false
	}
	if !c.SupportsSteps() {
		return false, ErrUnsupportedOperation
	}

	var ok bool
	_ = c.Edit(func(p *pool.Pool) error { //nolint:errcheck // fn never fails
		ok = fn(p)
		return nil
	})
	return ok, nil
}

// ActionSetAdd adds a numbered action set to a step.
func (r *Registry) ActionSetAdd(controlID, stepID string) (bool, error) {
	return r.buttonOp(controlID, func(p *pool.Pool) bool {
		_, ok := p.ActionSetAdd(stepID)
		return ok
	})
}

// ActionSetRemove removes a numbered action set from a step.
func (r *Registry) ActionSetRemove(controlID, stepID, setID string) (bool, error) {
	return r.buttonOp(controlID, func(p *pool.Pool) bool {
		id, ok := pool.ParseActionSetID(setID)
		return ok && p.ActionSetRemove(stepID, id)
	})
}

// ActionSetRename moves a numbered action set to a new numbered ID.
func (r *Registry) ActionSetRename(controlID, stepID, oldSetID, newSetID string) (bool, error) {
	return r.buttonOp(controlID, func(p *pool.Pool) bool {
		oldID, okOld := pool.ParseActionSetID(oldSetID)
		newID, okNew := pool.ParseActionSetID(newSetID)
		return okOld && okNew && p.ActionSetRename(stepID, oldID, newID)
	})
}

// ActionSetRunWhileHeld sets whether a numbered set fires while held.
func (r *Registry) ActionSetRunWhileHeld(controlID, stepID, setID string, runWhileHeld bool) (bool, error) {
	return r.buttonOp(controlID, func(p *pool.Pool) bool {
		id, ok := pool.ParseActionSetID(setID)
		return ok && p.ActionSetRunWhileHeld(stepID, id, runWhileHeld)
	})
}

// StepAdd appends a step.
func (r *Registry) StepAdd(controlID string) (bool, error) {
	return r.buttonOp(controlID, func(p *pool.Pool) bool {
		_, ok := p.StepAdd()
		return ok
	})
}

// StepDuplicate copies a step, inserting it after the original.
func (r *Registry) StepDuplicate(controlID, stepID string) (bool, error) {
	return r.buttonOp(controlID, func(p *pool.Pool) bool {
		_, ok := p.StepDuplicate(stepID)
		return ok
	})
}

// StepRemove deletes a step. The last step cannot be removed.
func (r *Registry) StepRemove(controlID, stepID string) (bool, error) {
	return r.buttonOp(controlID, func(p *pool.Pool) bool {
		return p.StepRemove(stepID)
	})
}

// StepSwap exchanges the positions of two steps.
func (r *Registry) StepSwap(controlID, stepID1, stepID2 string) (bool, error) {
	return r.buttonOp(controlID, func(p *pool.Pool) bool {
		return p.StepSwap(stepID1, stepID2)
	})
}

// StepSetCurrent makes a step current.
func (r *Registry) StepSetCurrent(controlID, stepID string) (bool, error) {
	return r.buttonOp(controlID, func(p *pool.Pool) bool {
		return p.StepSelectCurrent(stepID)
	})
}

// StepRename sets the user label of a step.
func (r *Registry) StepRename(controlID, stepID, name string) (bool, error) {
	return r.buttonOp(controlID, func(p *pool.Pool) bool {
		return p.StepRename(stepID, name)
	})
}

// StepAdvance moves the current step by delta positions, wrapping around.
func (r *Registry) StepAdvance(controlID string, delta int) (bool, error) {
	return r.buttonOp(controlID, func(p *pool.Pool) bool {
		return p.StepAdvanceDelta(delta)
	})
}
