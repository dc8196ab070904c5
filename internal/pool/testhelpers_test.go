package pool

import (
	"fmt"

	"github.com/nerrad567/gray-logic-controls/internal/entity"
)

type recordingHost struct {
	subscribed   []string
	unsubscribed []string
}

func (h *recordingHost) SubscribeEntity(_ string, m entity.Model) {
	h.subscribed = append(h.subscribed, m.ID)
}

func (h *recordingHost) UnsubscribeEntity(_ string, m entity.Model) {
	h.unsubscribed = append(h.unsubscribed, m.ID)
}

type staticDefinitions map[string]entity.Definition

func (d staticDefinitions) Lookup(_ entity.Type, connectionID, definitionID string) (entity.Definition, bool) {
	def, ok := d[fmt.Sprintf("%s/%s", connectionID, definitionID)]
	return def, ok
}

var testDefinitions = staticDefinitions{
	"conn1/bool":     {FeedbackType: entity.SubTypeBoolean},
	"conn1/advanced": {FeedbackType: entity.SubTypeAdvanced},
	"conn1/value":    {FeedbackType: entity.SubTypeValue},
}

// callbackRecorder counts pool callbacks.
type callbackRecorder struct {
	commits     []bool
	invalidates int
	localVars   [][]string
}

func (r *callbackRecorder) callbacks() Callbacks {
	return Callbacks{
		CommitChange:      func(redraw bool) { r.commits = append(r.commits, redraw) },
		InvalidateControl: func() { r.invalidates++ },
		LocalVariablesChanged: func(names []string) {
			r.localVars = append(r.localVars, names)
		},
	}
}

func (r *callbackRecorder) reset() {
	r.commits = nil
	r.invalidates = 0
	r.localVars = nil
}

func newTestPool(kind Kind) (*Pool, *callbackRecorder, *recordingHost) {
	rec := &callbackRecorder{}
	host := &recordingHost{}
	p, err := New(Deps{
		Kind:        kind,
		ControlID:   "bank:1",
		Host:        host,
		Definitions: testDefinitions,
		Callbacks:   rec.callbacks(),
	})
	if err != nil {
		panic(err)
	}
	return p, rec, host
}

func feedbackModel(id, definitionID string) entity.Model {
	return entity.Model{
		ID:           id,
		Type:         entity.TypeFeedback,
		DefinitionID: definitionID,
		ConnectionID: "conn1",
	}
}

func actionModel(id string) entity.Model {
	return entity.Model{
		ID:           id,
		Type:         entity.TypeAction,
		DefinitionID: "send",
		ConnectionID: "conn1",
		Options:      map[string]any{"text": "hello"},
	}
}

func localVariableModel(id, name string) entity.Model {
	return entity.Model{
		ID:           id,
		Type:         entity.TypeLocalVariable,
		DefinitionID: "value",
		ConnectionID: "conn1",
		VariableName: name,
	}
}
