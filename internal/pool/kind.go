package pool

import "github.com/nerrad567/gray-logic-controls/internal/entity"

// Kind is the control kind a pool serves.
type Kind string

const (
	KindButton             Kind = "button"
	KindTrigger            Kind = "trigger"
	KindExpressionVariable Kind = "expression_variable"
)

// AllKinds returns all valid control kinds.
func AllKinds() []Kind {
	return []Kind{KindButton, KindTrigger, KindExpressionVariable}
}

// Names of the fixed lists.
const (
	ListFeedbacks      = "feedbacks"
	ListLocalVariables = "local-variables"
	ListTriggerActions = "trigger_actions"
)

// notifyKind selects the upward channel used when a list's values change.
type notifyKind int

const (
	notifyNone notifyKind = iota
	notifyInvalidate
	notifyLocalVariables
)

// listSpec describes one fixed list of a pool kind and where it lives in
// the persisted Storage.
type listSpec struct {
	id     string
	def    entity.ListDefinition
	notify notifyKind
	load   func(s *Storage) []entity.Model
	save   func(s *Storage, models []entity.Model)
}

// descriptor is the data that distinguishes one pool kind from another.
type descriptor struct {
	lists []listSpec
	steps bool
}

var localVariablesSpec = listSpec{
	id:     ListLocalVariables,
	def:    entity.ListDefinition{GroupID: ListLocalVariables, Type: entity.TypeLocalVariable},
	notify: notifyLocalVariables,
	load:   func(s *Storage) []entity.Model { return s.LocalVariables },
	save:   func(s *Storage, m []entity.Model) { s.LocalVariables = m },
}

var descriptors = map[Kind]descriptor{
	KindButton: {
		steps: true,
		lists: []listSpec{
			{
				id:     ListFeedbacks,
				def:    entity.ListDefinition{GroupID: ListFeedbacks, Type: entity.TypeFeedback},
				notify: notifyInvalidate,
				load:   func(s *Storage) []entity.Model { return s.Feedbacks },
				save:   func(s *Storage, m []entity.Model) { s.Feedbacks = m },
			},
			localVariablesSpec,
		},
	},
	KindTrigger: {
		lists: []listSpec{
			{
				id: ListFeedbacks,
				def: entity.ListDefinition{
					GroupID:         ListFeedbacks,
					Type:            entity.TypeFeedback,
					FeedbackSubType: entity.SubTypeBoolean,
				},
				notify: notifyInvalidate,
				load:   func(s *Storage) []entity.Model { return s.Condition },
				save:   func(s *Storage, m []entity.Model) { s.Condition = m },
			},
			{
				id:     ListTriggerActions,
				def:    entity.ListDefinition{GroupID: ListTriggerActions, Type: entity.TypeAction},
				notify: notifyNone,
				load:   func(s *Storage) []entity.Model { return s.Actions },
				save:   func(s *Storage, m []entity.Model) { s.Actions = m },
			},
		},
	},
	KindExpressionVariable: {
		lists: []listSpec{
			{
				id: ListFeedbacks,
				def: entity.ListDefinition{
					GroupID:         ListFeedbacks,
					Type:            entity.TypeFeedback,
					FeedbackSubType: entity.SubTypeValue,
					MaximumChildren: 1,
				},
				notify: notifyInvalidate,
				load: func(s *Storage) []entity.Model {
					if s.Entity == nil {
						return nil
					}
					return []entity.Model{*s.Entity}
				},
				save: func(s *Storage, m []entity.Model) {
					s.Entity = nil
					if len(m) > 0 {
						s.Entity = &m[0]
					}
				},
			},
			localVariablesSpec,
		},
	},
}

// Storage is the persisted shape of a pool. Each kind uses its own subset:
// buttons Steps/Feedbacks/LocalVariables, triggers Condition/Actions,
// expression variables Entity/LocalVariables.
type Storage struct {
	Steps          map[string]StepModel `json:"steps,omitempty"`
	StepOrder      []string             `json:"step_order,omitempty"`
	Feedbacks      []entity.Model       `json:"feedbacks,omitempty"`
	LocalVariables []entity.Model       `json:"localVariables,omitempty"`
	Condition      []entity.Model       `json:"condition,omitempty"`
	Actions        []entity.Model       `json:"actions,omitempty"`
	Entity         *entity.Model        `json:"entity,omitempty"`
}

// StepModel is the persisted shape of one button step.
type StepModel struct {
	ActionSets map[string][]entity.Model `json:"action_sets"`
	Options    StepOptions               `json:"options"`
}

// StepOptions holds per-step settings.
type StepOptions struct {
	// RunWhileHeld lists the numbered sets that fire while the control is held.
	RunWhileHeld []int  `json:"runWhileHeld"`
	Name         string `json:"name,omitempty"`
}

// Location addresses one entity list of a pool: either a fixed list by name
// or (buttons only) the action set of a step.
type Location struct {
	List   string      `json:"list,omitempty"`
	StepID string      `json:"stepId,omitempty"`
	SetID  ActionSetID `json:"setId,omitempty"`
}

// ListLocation addresses a fixed list.
func ListLocation(id string) Location {
	return Location{List: id}
}

// ActionSetLocation addresses an action set of a step.
func ActionSetLocation(stepID string, setID ActionSetID) Location {
	return Location{StepID: stepID, SetID: setID}
}

// isActionSet reports whether the location refers to a step's action set.
func (l Location) isActionSet() bool {
	return l.List == "" && l.StepID != ""
}
