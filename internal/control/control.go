package control

import (
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-controls/internal/entity"
	"github.com/nerrad567/gray-logic-controls/internal/pool"
)

// pendingEvents collects pool callbacks raised during one locked operation.
type pendingEvents struct {
	commit     bool
	redraw     bool
	invalidate bool
	localVars  []string
}

// eventSink receives a control's events after each operation. It is called
// with the control locked and must not call back into the control.
type eventSink interface {
	controlCommitted(rec Record, redraw bool)
	controlInvalidated(controlID string)
	localVariablesChanged(controlID string, names []string)
	conditionChanged(controlID string, value bool)
}

// Control is one button, trigger or expression variable. It owns its pool
// and serialises every access to it.
type Control struct {
	mu   sync.Mutex
	sink eventSink

	id            string
	kind          pool.Kind
	name          string
	rotaryActions bool
	createdAt     time.Time
	updatedAt     time.Time

	pool      *pool.Pool
	condition bool
	pending   pendingEvents
}

// controlDeps are the collaborators shared by all controls of a registry.
type controlDeps struct {
	host        entity.ConnectionHost
	definitions entity.Definitions
	logger      Logger
	sink        eventSink
}

// newControl builds a live control from its record. Entities are subscribed
// unless skipSubscribe is set; isImport gives every entity a fresh ID.
func newControl(rec Record, deps controlDeps, skipSubscribe, isImport bool) (*Control, error) {
	c := &Control{
		sink:          deps.sink,
		id:            rec.ID,
		kind:          rec.Kind,
		name:          rec.Name,
		rotaryActions: rec.RotaryActions,
		createdAt:     rec.CreatedAt,
		updatedAt:     rec.UpdatedAt,
	}

	p, err := pool.New(pool.Deps{
		Kind:          rec.Kind,
		ControlID:     rec.ID,
		Host:          deps.host,
		Definitions:   deps.definitions,
		Logger:        deps.logger,
		RotaryActions: rec.RotaryActions,
		Callbacks: pool.Callbacks{
			CommitChange: func(redraw bool) {
				c.pending.commit = true
				c.pending.redraw = c.pending.redraw || redraw
			},
			InvalidateControl: func() {
				c.pending.invalidate = true
			},
			LocalVariablesChanged: func(names []string) {
				c.pending.localVars = append(c.pending.localVars, names...)
			},
		},
	})
	if err != nil {
		return nil, err
	}

	p.LoadStorage(rec.Storage, skipSubscribe, isImport)
	c.pool = p
	c.condition = p.CheckConditionValue()
	return c, nil
}

// ID returns the control ID.
func (c *Control) ID() string { return c.id }

// Kind returns the control kind.
func (c *Control) Kind() pool.Kind { return c.kind }

// SupportsSteps reports whether the control has steps and action sets.
func (c *Control) SupportsSteps() bool {
	return c.kind == pool.KindButton
}

// Name returns the user label of the control.
func (c *Control) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Edit runs fn against the control's pool. Callbacks raised by fn are
// handled once fn returns.
func (c *Control) Edit(fn func(p *pool.Pool) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := fn(c.pool)
	c.flushLocked()
	return err
}

// View runs fn against the control's pool for reading. fn must not mutate
// the pool.
func (c *Control) View(fn func(p *pool.Pool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.pool)
}

// SetName changes the user label of the control.
func (c *Control) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.name == name {
		return
	}
	c.name = name
	c.pending.commit = true
	c.flushLocked()
}

// SetRotaryActions adds or removes the rotate action sets of a button.
func (c *Control) SetRotaryActions(enabled bool) bool {
	if !c.SupportsSteps() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rotaryActions = enabled
	c.pool.SetRotaryActions(enabled)
	c.flushLocked()
	return true
}

// Record returns the persisted shape of the control.
func (c *Control) Record() Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordLocked()
}

func (c *Control) recordLocked() Record {
	return Record{
		ID:            c.id,
		Kind:          c.kind,
		Name:          c.name,
		RotaryActions: c.rotaryActions,
		Storage:       c.pool.AsStorage(),
		CreatedAt:     c.createdAt,
		UpdatedAt:     c.updatedAt,
	}
}

// Snapshot returns the record plus runtime state.
func (c *Control) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Record:       c.recordLocked(),
		ActiveStepID: c.pool.GetActiveStepID(),
	}
	switch c.kind {
	case pool.KindButton:
		snap.Style = entity.MergeStyles(c.pool.GetFeedbackStyleOverrides())
	case pool.KindTrigger:
		cond := c.condition
		snap.Condition = &cond
	case pool.KindExpressionVariable:
	}
	return snap
}

// Style returns the merged style overrides of the control's feedbacks.
func (c *Control) Style() entity.Style {
	c.mu.Lock()
	defer c.mu.Unlock()
	return entity.MergeStyles(c.pool.GetFeedbackStyleOverrides())
}

// Condition returns the last evaluated condition of a trigger. Other kinds
// always report true.
func (c *Control) Condition() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.condition
}

func (c *Control) updateFeedbackValues(connectionID string, values []entity.FeedbackValue) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.pool.UpdateFeedbackValues(connectionID, values)
	c.flushLocked()
	return changed
}

func (c *Control) forgetConnection(connectionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.pool.ForgetConnection(connectionID)
	c.flushLocked()
	return changed
}

func (c *Control) clearConnectionValues(connectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pool.ClearConnectionValues(connectionID)
	c.flushLocked()
}

func (c *Control) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pool.Destroy()
	c.pending = pendingEvents{}
}

// flushLocked hands the collected callbacks to the sink. Structural edits can
// change a trigger's condition as well, so both commit and invalidate
// re-evaluate it.
func (c *Control) flushLocked() {
	ev := c.pending
	c.pending = pendingEvents{}

	conditionFlipped := false
	if c.kind == pool.KindTrigger && (ev.commit || ev.invalidate) {
		if v := c.pool.CheckConditionValue(); v != c.condition {
			c.condition = v
			conditionFlipped = true
		}
	}

	if ev.commit {
		c.updatedAt = time.Now().UTC()
	}

	if c.sink == nil {
		return
	}
	if ev.commit {
		c.sink.controlCommitted(c.recordLocked(), ev.redraw)
	}
	if ev.invalidate {
		c.sink.controlInvalidated(c.id)
	}
	if len(ev.localVars) > 0 {
		c.sink.localVariablesChanged(c.id, ev.localVars)
	}
	if conditionFlipped {
		c.sink.conditionChanged(c.id, c.condition)
	}
}
