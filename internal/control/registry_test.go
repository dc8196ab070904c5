package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-controls/internal/entity"
	"github.com/nerrad567/gray-logic-controls/internal/pool"
)

// mockRepository is an in-memory implementation of Repository for testing.
type mockRepository struct {
	mu       sync.Mutex
	records  map[string]Record
	updates  int
	failNext error
}

func newMockRepository() *mockRepository {
	return &mockRepository{records: make(map[string]Record)}
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrControlNotFound
	}
	return &rec, nil
}

func (m *mockRepository) List(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

func (m *mockRepository) Create(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	if _, exists := m.records[rec.ID]; exists {
		return ErrControlExists
	}
	m.records[rec.ID] = *rec
	return nil
}

func (m *mockRepository) Update(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.ID]; !exists {
		return ErrControlNotFound
	}
	m.records[rec.ID] = *rec
	m.updates++
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[id]; !exists {
		return ErrControlNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *mockRepository) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// recordingHub captures broadcasts by channel.
type recordingHub struct {
	mu     sync.Mutex
	events []string
	last   map[string]any
}

func (h *recordingHub) Broadcast(channel string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, channel)
	if h.last == nil {
		h.last = make(map[string]any)
	}
	h.last[channel] = payload
}

func (h *recordingHub) count(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == channel {
			n++
		}
	}
	return n
}

type recordingHost struct {
	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
}

func (h *recordingHost) SubscribeEntity(_ string, m entity.Model) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribed = append(h.subscribed, m.ID)
}

func (h *recordingHost) UnsubscribeEntity(_ string, m entity.Model) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribed = append(h.unsubscribed, m.ID)
}

type recordingHistory struct {
	mu     sync.Mutex
	writes []string
}

func (h *recordingHistory) WriteFeedbackValue(controlID, entityID, connectionID string, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes = append(h.writes, fmt.Sprintf("%s/%s/%s=%v", controlID, entityID, connectionID, value))
}

type staticDefinitions map[string]entity.Definition

func (d staticDefinitions) Lookup(_ entity.Type, connectionID, definitionID string) (entity.Definition, bool) {
	def, ok := d[connectionID+"/"+definitionID]
	return def, ok
}

type testEnv struct {
	repo     *mockRepository
	hub      *recordingHub
	host     *recordingHost
	history  *recordingHistory
	registry *Registry
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:    newMockRepository(),
		hub:     &recordingHub{},
		host:    &recordingHost{},
		history: &recordingHistory{},
	}
	env.registry = NewRegistry(Deps{
		Repo:    env.repo,
		Host:    env.host,
		Hub:     env.hub,
		History: env.history,
		Definitions: staticDefinitions{
			"conn1/bool":  {FeedbackType: entity.SubTypeBoolean},
			"conn1/value": {FeedbackType: entity.SubTypeValue},
		},
	})
	return env
}

func feedbackModel(id, definitionID string) entity.Model {
	return entity.Model{ID: id, Type: entity.TypeFeedback, DefinitionID: definitionID, ConnectionID: "conn1"}
}

func actionModel(id string) entity.Model {
	return entity.Model{ID: id, Type: entity.TypeAction, DefinitionID: "send", ConnectionID: "conn1"}
}

func TestRegistry_CreateControl(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	c, err := env.registry.CreateControl(ctx, pool.KindButton, "Lobby")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, "Lobby", c.Name())
	assert.Equal(t, 1, env.registry.GetControlCount())

	stored, err := env.repo.GetByID(ctx, c.ID())
	require.NoError(t, err)
	assert.Equal(t, pool.KindButton, stored.Kind)
	assert.Equal(t, []string{"0"}, stored.Storage.StepOrder)

	_, err = env.registry.CreateControl(ctx, "slider", "x")
	assert.True(t, errors.Is(err, ErrInvalidKind))
}

func TestRegistry_CreateControl_RepoFailure(t *testing.T) {
	env := newTestEnv()
	env.repo.failNext = errors.New("disk full")

	_, err := env.registry.CreateControl(context.Background(), pool.KindTrigger, "t")
	require.Error(t, err)
	assert.Equal(t, 0, env.registry.GetControlCount())
}

func TestRegistry_ImportControl_FreshIDs(t *testing.T) {
	env := newTestEnv()

	c, err := env.registry.ImportControl(context.Background(), Record{
		ID:   "imported",
		Kind: pool.KindTrigger,
		Storage: pool.Storage{
			Condition: []entity.Model{feedbackModel("c1", "bool")},
			Actions:   []entity.Model{actionModel("a1")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "imported", c.ID())

	rec := c.Record()
	require.Len(t, rec.Storage.Actions, 1)
	assert.NotEqual(t, "a1", rec.Storage.Actions[0].ID)
	assert.Len(t, env.host.subscribed, 2, "imported entities are subscribed once registered")

	_, err = env.registry.ImportControl(context.Background(), Record{ID: "imported", Kind: pool.KindTrigger})
	assert.ErrorIs(t, err, ErrControlExists)
}

func TestRegistry_RefreshCache(t *testing.T) {
	env := newTestEnv()
	env.repo.records["b1"] = Record{
		ID:   "b1",
		Kind: pool.KindButton,
		Storage: pool.Storage{
			Feedbacks: []entity.Model{feedbackModel("f1", "bool")},
		},
	}
	env.repo.records["bad"] = Record{ID: "bad", Kind: "unknown"}

	require.NoError(t, env.registry.RefreshCache(context.Background()))
	assert.Equal(t, 1, env.registry.GetControlCount(), "controls of unknown kind are skipped")
	assert.Equal(t, []string{"f1"}, env.host.subscribed)

	require.NoError(t, env.registry.RefreshCache(context.Background()))
	assert.Equal(t, []string{"f1"}, env.host.unsubscribed, "old controls are destroyed on refresh")
}

func TestRegistry_DeleteControl(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	c, err := env.registry.ImportControl(ctx, Record{
		Kind:    pool.KindTrigger,
		Storage: pool.Storage{Actions: []entity.Model{actionModel("a1")}},
	})
	require.NoError(t, err)

	require.NoError(t, env.registry.DeleteControl(ctx, c.ID()))
	assert.Len(t, env.host.unsubscribed, 1)

	_, err = env.registry.GetControl(c.ID())
	assert.ErrorIs(t, err, ErrControlNotFound)
	assert.ErrorIs(t, env.registry.DeleteControl(ctx, c.ID()), ErrControlNotFound)
	assert.Equal(t, 1, env.hub.count(EventControlDeleted))
}

func TestRegistry_ListControls(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	_, err := env.registry.CreateControl(ctx, pool.KindButton, "b")
	require.NoError(t, err)
	_, err = env.registry.CreateControl(ctx, pool.KindTrigger, "a")
	require.NoError(t, err)

	list := env.registry.ListControls()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	require.NotNil(t, list[0].Condition)
	assert.True(t, *list[0].Condition, "an empty trigger condition is true")
	assert.Equal(t, "0", list[1].ActiveStepID)
}

func TestRegistry_CommitPersists(t *testing.T) {
	env := newTestEnv()
	c, err := env.registry.CreateControl(context.Background(), pool.KindButton, "b")
	require.NoError(t, err)

	ok, err := env.registry.StepAdd(c.ID())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 1, env.repo.updateCount())
	stored, err := env.repo.GetByID(context.Background(), c.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, stored.Storage.StepOrder)
	assert.Equal(t, 2, env.hub.count(EventControlChanged), "create plus step add")
}

func TestRegistry_UpdateFeedbackValues(t *testing.T) {
	env := newTestEnv()
	env.repo.records["b1"] = Record{
		ID:   "b1",
		Kind: pool.KindButton,
		Storage: pool.Storage{
			Feedbacks: []entity.Model{{
				ID: "f1", Type: entity.TypeFeedback, DefinitionID: "bool", ConnectionID: "conn1",
				Style: entity.Style{"bgcolor": "red"},
			}},
		},
	}
	require.NoError(t, env.registry.RefreshCache(context.Background()))

	changed := env.registry.UpdateFeedbackValues("conn1", []entity.FeedbackValue{{ID: "f1", Value: true}})
	assert.Equal(t, 1, changed)
	assert.Equal(t, 1, env.hub.count(EventControlInvalidated))
	assert.Equal(t, []string{"b1/f1/conn1=true"}, env.history.writes)

	c, err := env.registry.GetControl("b1")
	require.NoError(t, err)
	assert.Equal(t, entity.Style{"bgcolor": "red"}, c.Style())

	assert.Equal(t, 0, env.registry.UpdateFeedbackValues("conn1", []entity.FeedbackValue{{ID: "f1", Value: true}}))
	assert.Equal(t, 1, env.hub.count(EventControlInvalidated), "repeated values do not invalidate")
	assert.Equal(t, 0, env.repo.updateCount(), "value changes are not persisted")
}

func TestRegistry_TriggerConditionFlip(t *testing.T) {
	env := newTestEnv()
	env.repo.records["t1"] = Record{
		ID:      "t1",
		Kind:    pool.KindTrigger,
		Storage: pool.Storage{Condition: []entity.Model{feedbackModel("c1", "bool")}},
	}
	require.NoError(t, env.registry.RefreshCache(context.Background()))

	c, err := env.registry.GetControl("t1")
	require.NoError(t, err)
	assert.False(t, c.Condition(), "no value yet")

	env.registry.UpdateFeedbackValues("conn1", []entity.FeedbackValue{{ID: "c1", Value: true}})
	assert.True(t, c.Condition())
	assert.Equal(t, 1, env.hub.count(EventTriggerCondition))

	env.registry.UpdateFeedbackValues("conn1", []entity.FeedbackValue{{ID: "c1", Value: false}})
	assert.False(t, c.Condition())
	assert.Equal(t, 2, env.hub.count(EventTriggerCondition))

	// Removing the only condition feedback makes the condition vacuously true.
	require.NoError(t, c.Edit(func(p *pool.Pool) error {
		return p.RemoveEntity(pool.ListLocation(pool.ListFeedbacks), "c1")
	}))
	assert.True(t, c.Condition())
	assert.Equal(t, 3, env.hub.count(EventTriggerCondition))
}

func TestRegistry_LocalVariablesChanged(t *testing.T) {
	env := newTestEnv()
	env.repo.records["e1"] = Record{
		ID:   "e1",
		Kind: pool.KindExpressionVariable,
		Storage: pool.Storage{
			LocalVariables: []entity.Model{{
				ID: "lv1", Type: entity.TypeLocalVariable, DefinitionID: "value", ConnectionID: "conn1", VariableName: "speed",
			}},
		},
	}
	require.NoError(t, env.registry.RefreshCache(context.Background()))

	env.registry.UpdateFeedbackValues("conn1", []entity.FeedbackValue{{ID: "lv1", Value: 3}})
	assert.Equal(t, 1, env.hub.count(EventLocalVariablesChanged))
	assert.Equal(t, 0, env.hub.count(EventControlInvalidated))
}

func TestRegistry_TriggerConditions(t *testing.T) {
	env := newTestEnv()
	env.repo.records["t1"] = Record{
		ID:      "t1",
		Kind:    pool.KindTrigger,
		Storage: pool.Storage{Condition: []entity.Model{feedbackModel("c1", "bool")}},
	}
	env.repo.records["t2"] = Record{ID: "t2", Kind: pool.KindTrigger}
	env.repo.records["b1"] = Record{ID: "b1", Kind: pool.KindButton}
	require.NoError(t, env.registry.RefreshCache(context.Background()))

	env.registry.UpdateFeedbackValues("conn1", []entity.FeedbackValue{{ID: "c1", Value: true}})
	assert.Equal(t, map[string]bool{"t1": true, "t2": true}, env.registry.TriggerConditions())
}

func TestRegistry_ForgetConnection(t *testing.T) {
	env := newTestEnv()
	env.repo.records["b1"] = Record{
		ID:   "b1",
		Kind: pool.KindButton,
		Storage: pool.Storage{
			Feedbacks: []entity.Model{feedbackModel("f1", "bool")},
		},
	}
	env.repo.records["t1"] = Record{ID: "t1", Kind: pool.KindTrigger}
	require.NoError(t, env.registry.RefreshCache(context.Background()))

	assert.Equal(t, 1, env.registry.ForgetConnection("conn1"))
	assert.Equal(t, 1, env.repo.updateCount())

	stored, err := env.repo.GetByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Empty(t, stored.Storage.Feedbacks)
}

func TestRegistry_ResubscribeConnection(t *testing.T) {
	env := newTestEnv()
	disabled := feedbackModel("f2", "bool")
	disabled.Disabled = true
	env.repo.records["b1"] = Record{
		ID:   "b1",
		Kind: pool.KindButton,
		Storage: pool.Storage{
			Feedbacks: []entity.Model{feedbackModel("f1", "bool"), disabled},
		},
	}
	require.NoError(t, env.registry.RefreshCache(context.Background()))
	assert.Equal(t, []string{"f1"}, env.host.subscribed)

	env.registry.ResubscribeConnection()
	env.registry.ResubscribeConnection()

	assert.Equal(t, []string{"f1", "f1", "f1"}, env.host.subscribed)
	assert.Empty(t, env.host.unsubscribed, "reconnect only re-sends subscribes")
	assert.Equal(t, 0, env.repo.updateCount())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	env := newTestEnv()
	c, err := env.registry.CreateControl(context.Background(), pool.KindButton, "b")
	require.NoError(t, err)
	id := c.ID()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = env.registry.StepAdd(id) //nolint:errcheck // result checked below
		}()
		go func() {
			defer wg.Done()
			env.registry.UpdateFeedbackValues("conn1", []entity.FeedbackValue{{ID: "x", Value: i}})
		}()
		go func() {
			defer wg.Done()
			_ = env.registry.ListControls()
		}()
	}
	wg.Wait()

	c.View(func(p *pool.Pool) {
		assert.Len(t, p.GetStepIDs(), 21)
	})
}
