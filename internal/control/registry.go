package control

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-controls/internal/entity"
	"github.com/nerrad567/gray-logic-controls/internal/learn"
	"github.com/nerrad567/gray-logic-controls/internal/pool"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// persistTimeout bounds each repository write triggered by a commit.
const persistTimeout = 5 * time.Second

// Deps holds the dependencies for a Registry. Only Repo is required.
type Deps struct {
	Repo        Repository
	Host        entity.ConnectionHost
	Definitions entity.Definitions
	Hub         WSHub
	History     FeedbackHistory
	Learn       LearnClient
	Logger      Logger

	// RotaryActions is the default for newly created buttons.
	RotaryActions bool
}

// Registry holds every live control.
//
// The cache is populated on startup via RefreshCache() and kept in sync by
// Create/Delete. Every committed change is written back to the repository.
type Registry struct {
	repo        Repository
	host        entity.ConnectionHost
	definitions entity.Definitions
	hub         WSHub
	history     FeedbackHistory
	learnClient LearnClient
	learner     *learn.Coordinator
	logger      Logger

	rotaryActions bool

	controls map[string]*Control
	mu       sync.RWMutex
}

// NewRegistry creates a new control registry.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{
		repo:          deps.Repo,
		host:          deps.Host,
		definitions:   deps.Definitions,
		hub:           deps.Hub,
		history:       deps.History,
		learnClient:   deps.Learn,
		logger:        deps.Logger,
		rotaryActions: deps.RotaryActions,
		controls:      make(map[string]*Control),
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	r.learner = learn.NewCoordinator(r.learnChanged)
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetHub attaches the WebSocket hub used for event broadcasts.
func (r *Registry) SetHub(hub WSHub) {
	r.hub = hub
}

func (r *Registry) deps() controlDeps {
	return controlDeps{
		host:        r.host,
		definitions: r.definitions,
		logger:      r.logger,
		sink:        r,
	}
}

// RefreshCache reloads every control from the repository, replacing (and
// unsubscribing) the current ones. This should be called on startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	records, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading controls: %w", err)
	}

	loaded := make(map[string]*Control, len(records))
	for i := range records {
		c, buildErr := newControl(records[i], r.deps(), false, false)
		if buildErr != nil {
			r.logger.Warn("skipping control", "id", records[i].ID, "kind", records[i].Kind, "error", buildErr)
			continue
		}
		loaded[c.ID()] = c
	}

	r.mu.Lock()
	old := r.controls
	r.controls = loaded
	r.mu.Unlock()

	for _, c := range old {
		c.destroy()
	}

	r.logger.Info("control cache refreshed", "count", len(loaded))
	return nil
}

// CreateControl creates, persists and caches a new empty control.
func (r *Registry) CreateControl(ctx context.Context, kind pool.Kind, name string) (*Control, error) {
	return r.ImportControl(ctx, Record{Kind: kind, Name: name, RotaryActions: r.rotaryActions && kind == pool.KindButton})
}

// ImportControl creates a control from an exported record. Every entity
// receives a fresh ID; a missing control ID is generated.
func (r *Registry) ImportControl(ctx context.Context, rec Record) (*Control, error) {
	if !validKind(rec.Kind) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, rec.Kind)
	}
	if rec.ID == "" {
		rec.ID = GenerateID()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	r.mu.RLock()
	_, exists := r.controls[rec.ID]
	r.mu.RUnlock()
	if exists {
		return nil, ErrControlExists
	}

	c, err := newControl(rec, r.deps(), true, true)
	if err != nil {
		return nil, err
	}

	final := c.Record()
	if err := r.repo.Create(ctx, &final); err != nil {
		c.destroy()
		return nil, err
	}

	r.mu.Lock()
	r.controls[c.ID()] = c
	r.mu.Unlock()

	_ = c.Edit(func(p *pool.Pool) error {
		p.SubscribeAll()
		return nil
	})

	r.logger.Info("control created", "id", c.ID(), "kind", c.Kind())
	r.broadcast(EventControlChanged, map[string]any{"control_id": c.ID(), "redraw": true})
	return c, nil
}

// GetControl returns a live control.
func (r *Registry) GetControl(id string) (*Control, error) {
	r.mu.RLock()
	c, ok := r.controls[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrControlNotFound
	}
	return c, nil
}

// ListControls returns snapshots of every control sorted by name then ID.
func (r *Registry) ListControls() []Snapshot {
	controls := r.snapshotControls()
	out := make([]Snapshot, 0, len(controls))
	for _, c := range controls {
		out = append(out, c.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DeleteControl removes a control, unsubscribing all of its entities.
func (r *Registry) DeleteControl(ctx context.Context, id string) error {
	c, err := r.GetControl(id)
	if err != nil {
		return err
	}
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.controls, id)
	r.mu.Unlock()

	c.destroy()

	r.logger.Info("control deleted", "id", id)
	r.broadcast(EventControlDeleted, map[string]any{"control_id": id})
	return nil
}

// GetControlCount returns the number of cached controls.
func (r *Registry) GetControlCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controls)
}

// TriggerConditions returns the current condition of every trigger, keyed
// by control ID.
func (r *Registry) TriggerConditions() map[string]bool {
	out := make(map[string]bool)
	for _, c := range r.snapshotControls() {
		if c.Kind() == pool.KindTrigger {
			out[c.ID()] = c.Condition()
		}
	}
	return out
}

func (r *Registry) snapshotControls() []*Control {
	r.mu.RLock()
	defer r.mu.RUnlock()

	controls := make([]*Control, 0, len(r.controls))
	for _, c := range r.controls {
		controls = append(controls, c)
	}
	return controls
}

// UpdateFeedbackValues routes a batch of values from one connection to every
// control. Values that changed are written to the feedback history.
func (r *Registry) UpdateFeedbackValues(connectionID string, values []entity.FeedbackValue) int {
	if len(values) == 0 {
		return 0
	}

	byID := make(map[string]any, len(values))
	for _, v := range values {
		byID[v.ID] = v.Value
	}

	total := 0
	for _, c := range r.snapshotControls() {
		changed := c.updateFeedbackValues(connectionID, values)
		total += len(changed)
		if r.history == nil {
			continue
		}
		for _, id := range changed {
			r.history.WriteFeedbackValue(c.ID(), id, connectionID, byID[id])
		}
	}
	return total
}

// ForgetConnection removes every entity of a deleted connection from every
// control.
func (r *Registry) ForgetConnection(connectionID string) int {
	affected := 0
	for _, c := range r.snapshotControls() {
		if c.forgetConnection(connectionID) {
			affected++
		}
	}
	if affected > 0 {
		r.logger.Info("connection forgotten", "connection_id", connectionID, "controls", affected)
	}
	return affected
}

// ClearConnectionValues drops every cached value from a connection, for
// example when it restarts.
func (r *Registry) ClearConnectionValues(connectionID string) {
	for _, c := range r.snapshotControls() {
		c.clearConnectionValues(connectionID)
	}
}

// ResubscribeConnection re-sends the subscriptions of every entity. It is
// used when a module host (re)connects; no unsubscribe notices are sent.
func (r *Registry) ResubscribeConnection() {
	for _, c := range r.snapshotControls() {
		_ = c.Edit(func(p *pool.Pool) error {
			p.AnnounceAll()
			return nil
		})
	}
}

// Close unsubscribes every control. The registry must not be used afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	controls := r.controls
	r.controls = make(map[string]*Control)
	r.mu.Unlock()

	for _, c := range controls {
		c.destroy()
	}
}

// ─── Event sink ─────────────────────────────────────────────────────────────

func (r *Registry) controlCommitted(rec Record, redraw bool) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := r.repo.Update(ctx, &rec); err != nil {
		r.logger.Error("persisting control", "id", rec.ID, "error", err)
	}
	r.broadcast(EventControlChanged, map[string]any{"control_id": rec.ID, "redraw": redraw})
}

func (r *Registry) controlInvalidated(controlID string) {
	r.broadcast(EventControlInvalidated, map[string]any{"control_id": controlID})
}

func (r *Registry) localVariablesChanged(controlID string, names []string) {
	r.broadcast(EventLocalVariablesChanged, map[string]any{"control_id": controlID, "names": names})
}

func (r *Registry) conditionChanged(controlID string, value bool) {
	r.logger.Debug("trigger condition changed", "id", controlID, "value", value)
	r.broadcast(EventTriggerCondition, map[string]any{"control_id": controlID, "value": value})
}

func (r *Registry) learnChanged(id string, active bool) {
	r.broadcast(EventLearnChanged, map[string]any{"entity_id": id, "active": active})
}

func (r *Registry) broadcast(channel string, payload any) {
	if r.hub != nil {
		r.hub.Broadcast(channel, payload)
	}
}

func validKind(kind pool.Kind) bool {
	for _, k := range pool.AllKinds() {
		if k == kind {
			return true
		}
	}
	return false
}
