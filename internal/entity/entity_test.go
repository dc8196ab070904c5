package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AssignsIDs(t *testing.T) {
	env, _ := newTestEnv()

	e := New(env, Model{Type: TypeAction, ConnectionID: "conn1", DefinitionID: "send"}, false)
	assert.NotEmpty(t, e.ID(), "missing IDs are generated")
	assert.NotNil(t, e.Options())

	kept := New(env, actionModel("a1"), false)
	assert.Equal(t, "a1", kept.ID())

	parent := Model{
		ID:           "and",
		Type:         TypeFeedback,
		DefinitionID: "logic_and",
		ConnectionID: "internal",
		Children:     map[string][]Model{"children": {feedbackModel("child", "bool")}},
	}
	cloned := New(env, parent, true)
	assert.NotEqual(t, "and", cloned.ID())
	children, ok := cloned.ChildList("children")
	require.True(t, ok)
	require.Equal(t, 1, children.Len())
	assert.NotEqual(t, "child", children.GetDirectEntities()[0].ID())
}

func TestEntity_SubscribeIsIdempotent(t *testing.T) {
	env, host := newTestEnv()
	e := New(env, actionModel("a1"), false)

	e.Subscribe(true)
	e.Subscribe(true)
	assert.Equal(t, []string{"a1"}, host.subscribed)

	e.Unsubscribe(true)
	e.Unsubscribe(true)
	assert.Equal(t, []string{"a1"}, host.unsubscribed)
}

func TestEntity_DisabledIsNotSubscribed(t *testing.T) {
	env, host := newTestEnv()
	m := actionModel("a1")
	m.Disabled = true
	e := New(env, m, false)

	e.Subscribe(true)
	assert.Empty(t, host.subscribed)

	e.SetEnabled(true)
	assert.Equal(t, []string{"a1"}, host.subscribed)
	assert.True(t, e.Subscribed())

	e.SetEnabled(false)
	assert.Equal(t, []string{"a1"}, host.unsubscribed)
	assert.True(t, e.Disabled())
}

func TestEntity_Announce(t *testing.T) {
	env, host := newTestEnv()
	parent := New(env, Model{
		ID:           "and",
		Type:         TypeFeedback,
		DefinitionID: "logic_and",
		ConnectionID: "internal",
		Children:     map[string][]Model{"children": {feedbackModel("child", "bool")}},
	}, false)

	parent.Subscribe(true)
	parent.Announce(true)
	assert.Equal(t, []string{"and", "child", "and", "child"}, host.subscribed)
	assert.Empty(t, host.unsubscribed)

	fresh := New(env, actionModel("a1"), false)
	fresh.Announce(false)
	assert.True(t, fresh.Subscribed())
	assert.Equal(t, "a1", host.subscribed[len(host.subscribed)-1])
}

func TestEntity_SetOption(t *testing.T) {
	env, host := newTestEnv()
	e := New(env, actionModel("a1"), false)
	e.Subscribe(false)

	assert.True(t, e.SetOption("text", "bye"))
	assert.False(t, e.SetOption("", "ignored"))
	assert.Equal(t, map[string]any{"text": "bye"}, e.Options())
	assert.Len(t, host.subscribed, 2, "option change re-sends the subscription")

	opts := e.Options()
	opts["text"] = "mutated"
	assert.Equal(t, "bye", e.Options()["text"], "Options returns a copy")
}

func TestEntity_FeedbackOnlySetters(t *testing.T) {
	env, _ := newTestEnv()
	action := New(env, actionModel("a1"), false)
	assert.False(t, action.SetInverted(true))
	assert.False(t, action.SetStyleValue("bgcolor", "red"))

	fb := New(env, feedbackModel("f1", "bool"), false)
	assert.True(t, fb.SetInverted(true))
	assert.True(t, fb.SetStyleValue("bgcolor", "red"))
	assert.Equal(t, Style{"bgcolor": "red"}, fb.Style())
	assert.True(t, fb.SetStyleValue("bgcolor", nil))
	assert.Empty(t, fb.Style())
}

func TestEntity_SetConnectionID(t *testing.T) {
	env, host := newTestEnv()
	list := feedbackList(env)
	require.True(t, list.AddEntity(New(env, feedbackModel("f1", "bool"), false)))
	list.UpdateFeedbackValues("conn1", []FeedbackValue{{ID: "f1", Value: true}})

	e := list.FindByID("f1")
	e.SetConnectionID("conn2")

	assert.Equal(t, "conn2", e.ConnectionID())
	_, has := e.Value()
	assert.False(t, has, "value from the old connection is dropped")
	assert.Equal(t, []string{"f1"}, host.unsubscribed)
	assert.Equal(t, []string{"f1", "f1"}, host.subscribed)
}

func TestEntity_ToModel(t *testing.T) {
	env, _ := newTestEnv()
	list := feedbackList(env)
	require.True(t, list.AddEntity(New(env, feedbackModel("f1", "bool"), false)))
	list.UpdateFeedbackValues("conn1", []FeedbackValue{{ID: "f1", Value: true}})
	e := list.FindByID("f1")

	assert.Nil(t, e.ToModel(false).CachedValue)
	assert.Equal(t, true, e.ToModel(true).CachedValue)
}

func TestEntity_LocalVariable(t *testing.T) {
	env, _ := newTestEnv()
	lv := New(env, Model{ID: "lv1", Type: TypeLocalVariable, ConnectionID: "conn1", DefinitionID: "value"}, false)
	assert.True(t, lv.SetVariableName("counter"))
	assert.Equal(t, "counter", lv.VariableName())

	action := New(env, actionModel("a1"), false)
	assert.False(t, action.SetVariableName("nope"))
}

func TestEnsureUniqueIDs(t *testing.T) {
	seen := map[string]struct{}{"a1": {}}
	parent := actionModel("p")
	parent.Children = map[string][]Model{"group": {actionModel("a1")}}

	out := EnsureUniqueIDs([]Model{actionModel("a1"), parent, actionModel("p")}, seen)

	require.Len(t, out, 3)
	assert.NotEqual(t, "a1", out[0].ID)
	assert.Equal(t, "p", out[1].ID)
	assert.NotEqual(t, "a1", out[1].Children["group"][0].ID)
	assert.NotEqual(t, "p", out[2].ID)
	assert.Equal(t, "a1", parent.Children["group"][0].ID, "input is not modified")
}
