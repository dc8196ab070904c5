package control

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-controls/internal/entity"
	"github.com/nerrad567/gray-logic-controls/internal/learn"
	"github.com/nerrad567/gray-logic-controls/internal/pool"
)

// blockingLearner returns options once released.
type blockingLearner struct {
	started chan struct{}
	release chan struct{}
	options map[string]any
	err     error
}

func (b *blockingLearner) LearnOptions(ctx context.Context, _ string, _ entity.Model) (map[string]any, error) {
	if b.started != nil {
		close(b.started)
	}
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b.options, b.err
}

func newLearnEnv(t *testing.T, learner LearnClient) (*testEnv, *Control) {
	t.Helper()
	env := newTestEnv()
	env.registry.learnClient = learner

	env.repo.records["t1"] = Record{
		ID:   "t1",
		Kind: pool.KindTrigger,
		Storage: pool.Storage{Actions: []entity.Model{{
			ID: "a1", Type: entity.TypeAction, DefinitionID: "send", ConnectionID: "conn1",
			Options: map[string]any{"channel": 1, "label": "keep"},
		}}},
	}
	require.NoError(t, env.registry.RefreshCache(context.Background()))

	c, err := env.registry.GetControl("t1")
	require.NoError(t, err)
	return env, c
}

func TestLearnEntityOptions_MergesOptions(t *testing.T) {
	env, c := newLearnEnv(t, &blockingLearner{options: map[string]any{"channel": 7}})
	loc := pool.ListLocation(pool.ListTriggerActions)

	ok, err := env.registry.LearnEntityOptions(context.Background(), "t1", loc, "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	var options map[string]any
	c.View(func(p *pool.Pool) {
		e, found := p.FindEntity(loc, "a1")
		require.True(t, found)
		options = e.Options()
	})
	assert.Equal(t, map[string]any{"channel": 7, "label": "keep"}, options)
	assert.Equal(t, 2, env.hub.count(EventLearnChanged), "added then removed")
}

func TestLearnEntityOptions_NotFound(t *testing.T) {
	env, _ := newLearnEnv(t, &blockingLearner{})
	loc := pool.ListLocation(pool.ListTriggerActions)

	ok, err := env.registry.LearnEntityOptions(context.Background(), "missing", loc, "a1")
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.registry.LearnEntityOptions(context.Background(), "t1", loc, "missing")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestLearnEntityOptions_AlreadyRunning(t *testing.T) {
	learner := &blockingLearner{
		started: make(chan struct{}),
		release: make(chan struct{}),
		options: map[string]any{"channel": 2},
	}
	env, _ := newLearnEnv(t, learner)
	loc := pool.ListLocation(pool.ListTriggerActions)

	done := make(chan error, 1)
	go func() {
		_, err := env.registry.LearnEntityOptions(context.Background(), "t1", loc, "a1")
		done <- err
	}()
	<-learner.started

	assert.Equal(t, []string{"a1"}, env.registry.LearningIDs())
	_, err := env.registry.LearnEntityOptions(context.Background(), "t1", loc, "a1")
	assert.True(t, errors.Is(err, learn.ErrLearnRunning))

	close(learner.release)
	require.NoError(t, <-done)
	assert.Empty(t, env.registry.LearningIDs())
}

func TestLearnEntityOptions_Failure(t *testing.T) {
	env, _ := newLearnEnv(t, &blockingLearner{err: errors.New("timeout")})
	loc := pool.ListLocation(pool.ListTriggerActions)

	ok, err := env.registry.LearnEntityOptions(context.Background(), "t1", loc, "a1")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Empty(t, env.registry.LearningIDs(), "learn state is cleared after failure")
}

func TestLearnEntityOptions_Unavailable(t *testing.T) {
	env, _ := newLearnEnv(t, nil)
	env.registry.learnClient = nil

	_, err := env.registry.LearnEntityOptions(context.Background(), "t1", pool.ListLocation(pool.ListTriggerActions), "a1")
	assert.ErrorIs(t, err, ErrLearnUnavailable)
}
