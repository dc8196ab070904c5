package control

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-controls/internal/pool"
)

func TestRPC_UnknownControlReturnsFalse(t *testing.T) {
	env := newTestEnv()
	r := env.registry

	calls := map[string]func() (bool, error){
		"actionSets.add":             func() (bool, error) { return r.ActionSetAdd("missing", "0") },
		"actionSets.remove":          func() (bool, error) { return r.ActionSetRemove("missing", "0", "1000") },
		"actionSets.rename":          func() (bool, error) { return r.ActionSetRename("missing", "0", "1000", "2000") },
		"actionSets.setRunWhileHeld": func() (bool, error) { return r.ActionSetRunWhileHeld("missing", "0", "1000", true) },
		"steps.add":                  func() (bool, error) { return r.StepAdd("missing") },
		"steps.duplicate":            func() (bool, error) { return r.StepDuplicate("missing", "0") },
		"steps.remove":               func() (bool, error) { return r.StepRemove("missing", "0") },
		"steps.swap":                 func() (bool, error) { return r.StepSwap("missing", "0", "1") },
		"steps.setCurrent":           func() (bool, error) { return r.StepSetCurrent("missing", "0") },
		"steps.rename":               func() (bool, error) { return r.StepRename("missing", "0", "x") },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			ok, err := call()
			assert.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRPC_NonButtonIsUnsupported(t *testing.T) {
	env := newTestEnv()
	r := env.registry

	for _, kind := range []pool.Kind{pool.KindTrigger, pool.KindExpressionVariable} {
		c, err := r.CreateControl(context.Background(), kind, "x")
		require.NoError(t, err)
		id := c.ID()

		calls := map[string]func() (bool, error){
			"actionSets.add":             func() (bool, error) { return r.ActionSetAdd(id, "0") },
			"actionSets.remove":          func() (bool, error) { return r.ActionSetRemove(id, "0", "1000") },
			"actionSets.rename":          func() (bool, error) { return r.ActionSetRename(id, "0", "1000", "2000") },
			"actionSets.setRunWhileHeld": func() (bool, error) { return r.ActionSetRunWhileHeld(id, "0", "1000", true) },
			"steps.add":                  func() (bool, error) { return r.StepAdd(id) },
			"steps.duplicate":            func() (bool, error) { return r.StepDuplicate(id, "0") },
			"steps.remove":               func() (bool, error) { return r.StepRemove(id, "0") },
			"steps.swap":                 func() (bool, error) { return r.StepSwap(id, "0", "1") },
			"steps.setCurrent":           func() (bool, error) { return r.StepSetCurrent(id, "0") },
			"steps.rename":               func() (bool, error) { return r.StepRename(id, "0", "x") },
		}

		for name, call := range calls {
			t.Run(string(kind)+"/"+name, func(t *testing.T) {
				ok, err := call()
				assert.False(t, ok)
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnsupportedOperation)
				assert.Equal(t, "Control does not support this operation", err.Error())
			})
		}
	}
}

func TestRPC_ButtonOperations(t *testing.T) {
	env := newTestEnv()
	r := env.registry
	c, err := r.CreateControl(context.Background(), pool.KindButton, "b")
	require.NoError(t, err)
	id := c.ID()

	mustTrue := func(ok bool, err error) {
		t.Helper()
		require.NoError(t, err)
		require.True(t, ok)
	}

	mustTrue(r.StepAdd(id))
	mustTrue(r.StepDuplicate(id, "1"))
	mustTrue(r.StepSwap(id, "0", "2"))
	mustTrue(r.StepSetCurrent(id, "1"))
	mustTrue(r.StepRename(id, "1", "Evening"))
	mustTrue(r.ActionSetAdd(id, "1"))
	mustTrue(r.ActionSetRename(id, "1", "1000", "1500"))
	mustTrue(r.ActionSetRunWhileHeld(id, "1", "1500", true))
	mustTrue(r.StepRemove(id, "0"))

	rec := c.Record()
	assert.Equal(t, []string{"2", "1"}, rec.Storage.StepOrder)
	assert.Equal(t, "Evening", rec.Storage.Steps["1"].Options.Name)
	assert.Equal(t, []int{1500}, rec.Storage.Steps["1"].Options.RunWhileHeld)
	assert.Equal(t, "1", c.Snapshot().ActiveStepID)

	ok, err := r.ActionSetRemove(id, "1", "bogus")
	require.NoError(t, err)
	assert.False(t, ok, "invalid set IDs are rejected")

	ok, err = r.ActionSetRemove(id, "1", "down")
	require.NoError(t, err)
	assert.False(t, ok, "fixed sets cannot be removed")

	mustTrue(r.ActionSetRemove(id, "1", "1500"))
	mustTrue(r.StepAdvance(id, 1))
	assert.Equal(t, "2", c.Snapshot().ActiveStepID)

	ok, err = r.StepRemove(id, "1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.StepRemove(id, "2")
	require.NoError(t, err)
	assert.False(t, ok, "the last step cannot be removed")
}

func TestControl_SetRotaryActions(t *testing.T) {
	env := newTestEnv()
	c, err := env.registry.CreateControl(context.Background(), pool.KindButton, "b")
	require.NoError(t, err)

	require.True(t, c.SetRotaryActions(true))
	rec := c.Record()
	assert.True(t, rec.RotaryActions)
	assert.Contains(t, rec.Storage.Steps["0"].ActionSets, "rotate_left")

	trigger, err := env.registry.CreateControl(context.Background(), pool.KindTrigger, "t")
	require.NoError(t, err)
	assert.False(t, trigger.SetRotaryActions(true))
}

func TestControl_SetName(t *testing.T) {
	env := newTestEnv()
	c, err := env.registry.CreateControl(context.Background(), pool.KindButton, "b")
	require.NoError(t, err)

	c.SetName("renamed")
	c.SetName("renamed")
	assert.Equal(t, 1, env.repo.updateCount())

	stored, err := env.repo.GetByID(context.Background(), c.ID())
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Name)
}
