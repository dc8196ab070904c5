package entity

import "fmt"

// recordingHost captures subscribe/unsubscribe calls.
type recordingHost struct {
	subscribed   []string
	unsubscribed []string
}

func (h *recordingHost) SubscribeEntity(_ string, m Model) {
	h.subscribed = append(h.subscribed, m.ID)
}

func (h *recordingHost) UnsubscribeEntity(_ string, m Model) {
	h.unsubscribed = append(h.unsubscribed, m.ID)
}

// staticDefinitions resolves definitions from a fixed table keyed by
// "connection/definition".
type staticDefinitions map[string]Definition

func (d staticDefinitions) Lookup(_ Type, connectionID, definitionID string) (Definition, bool) {
	def, ok := d[fmt.Sprintf("%s/%s", connectionID, definitionID)]
	return def, ok
}

func newTestEnv() (*Env, *recordingHost) {
	host := &recordingHost{}
	return &Env{
		ControlID: "bank:1",
		Host:      host,
		Definitions: staticDefinitions{
			"conn1/bool":     {FeedbackType: SubTypeBoolean},
			"conn1/advanced": {FeedbackType: SubTypeAdvanced},
			"conn1/value":    {FeedbackType: SubTypeValue},
			"internal/logic_and": {
				FeedbackType: SubTypeBoolean,
				ChildGroups: []ListDefinition{
					{GroupID: "children", Type: TypeFeedback, FeedbackSubType: SubTypeBoolean},
				},
			},
		},
	}, host
}

func feedbackModel(id, definitionID string) Model {
	return Model{
		ID:           id,
		Type:         TypeFeedback,
		DefinitionID: definitionID,
		ConnectionID: "conn1",
		Options:      map[string]any{},
	}
}

func actionModel(id string) Model {
	return Model{
		ID:           id,
		Type:         TypeAction,
		DefinitionID: "send",
		ConnectionID: "conn1",
		Options:      map[string]any{"text": "hello"},
	}
}
