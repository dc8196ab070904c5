package entity

import "github.com/google/uuid"

// Type identifies what kind of node an entity is.
type Type string

const (
	TypeAction        Type = "action"
	TypeFeedback      Type = "feedback"
	TypeLocalVariable Type = "local-variable"
)

// AllTypes returns all valid entity types.
func AllTypes() []Type {
	return []Type{TypeAction, TypeFeedback, TypeLocalVariable}
}

// FeedbackSubType describes what a feedback produces.
type FeedbackSubType string

const (
	// SubTypeBoolean feedbacks yield true/false and apply their Style when true.
	SubTypeBoolean FeedbackSubType = "boolean"

	// SubTypeAdvanced feedbacks yield a style partial directly.
	SubTypeAdvanced FeedbackSubType = "advanced"

	// SubTypeValue feedbacks yield an arbitrary value (expression variables, local variables).
	SubTypeValue FeedbackSubType = "value"
)

// Style is a partial visual style override, keyed by style property.
type Style map[string]any

// Model is the persisted shape of an entity.
//
// CachedValue is runtime-only; it is populated only when a caller asks for
// values (editing UIs) and is never written to storage.
type Model struct {
	ID           string             `json:"id"`
	Type         Type               `json:"type"`
	DefinitionID string             `json:"definitionId"`
	ConnectionID string             `json:"connectionId"`
	Options      map[string]any     `json:"options"`
	Headline     string             `json:"headline,omitempty"`
	Disabled     bool               `json:"disabled,omitempty"`
	UpgradeIndex *int               `json:"upgradeIndex,omitempty"`
	IsInverted   bool               `json:"isInverted,omitempty"`
	Style        Style              `json:"style,omitempty"`
	VariableName string             `json:"variableName,omitempty"`
	Children     map[string][]Model `json:"children,omitempty"`
	CachedValue  any                `json:"cachedValue,omitempty"`
}

// DeepCopy creates a complete independent copy of the Model.
func (m *Model) DeepCopy() *Model {
	if m == nil {
		return nil
	}

	cpy := *m
	cpy.Options = deepCopyMap(m.Options)
	cpy.Style = Style(deepCopyMap(m.Style))
	cpy.CachedValue = deepCopyValue(m.CachedValue)
	if m.UpgradeIndex != nil {
		v := *m.UpgradeIndex
		cpy.UpgradeIndex = &v
	}
	if m.Children != nil {
		cpy.Children = make(map[string][]Model, len(m.Children))
		for group, children := range m.Children {
			copied := make([]Model, len(children))
			for i := range children {
				copied[i] = *children[i].DeepCopy()
			}
			cpy.Children[group] = copied
		}
	}
	return &cpy
}

// FeedbackValue is one result reported by a connection for a feedback it owns.
type FeedbackValue struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// StyleOverride is the style contributed by one active feedback.
type StyleOverride struct {
	EntityID string `json:"entity_id"`
	Style    Style  `json:"style"`
}

// MergeStyles folds overrides in order; later entries win on key collision.
func MergeStyles(overrides []StyleOverride) Style {
	merged := make(Style)
	for _, o := range overrides {
		for k, v := range o.Style {
			merged[k] = v
		}
	}
	return merged
}

// Owner addresses a child group of a parent entity within a list.
// A nil *Owner means the top level of the list.
type Owner struct {
	ParentID   string `json:"parentId"`
	ChildGroup string `json:"childGroup"`
}

// ListDefinition constrains the entities a List accepts.
type ListDefinition struct {
	// GroupID names the list (or the child group) for diagnostics.
	GroupID string

	// Type is the only entity type accepted. Empty accepts any type
	// (child groups whose definition is unknown).
	Type Type

	// FeedbackSubType restricts feedbacks to one sub-type. Empty accepts any.
	FeedbackSubType FeedbackSubType

	// MaximumChildren caps the number of direct entities. Zero is unlimited.
	MaximumChildren int
}

// Definition is what the connection layer knows about one entity definition.
type Definition struct {
	FeedbackType FeedbackSubType
	ChildGroups  []ListDefinition
}

// Definitions resolves entity definitions published by connections.
type Definitions interface {
	// Lookup returns the definition, or false when the connection or
	// definition is unknown (e.g. the connection is not loaded yet).
	Lookup(entityType Type, connectionID, definitionID string) (Definition, bool)
}

// ConnectionHost receives subscription lifecycle events for entities.
// Implementations forward them to the process hosting the connection.
type ConnectionHost interface {
	SubscribeEntity(controlID string, m Model)
	UnsubscribeEntity(controlID string, m Model)
}

// Env holds the collaborators shared by every entity of one control.
// Host and Definitions may be nil.
type Env struct {
	ControlID   string
	Host        ConnectionHost
	Definitions Definitions
}

func (env *Env) lookup(t Type, connectionID, definitionID string) (Definition, bool) {
	if env == nil || env.Definitions == nil {
		return Definition{}, false
	}
	return env.Definitions.Lookup(t, connectionID, definitionID)
}

// NewID creates a fresh entity ID.
func NewID() string {
	return uuid.New().String()
}
