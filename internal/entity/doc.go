// Package entity provides the live entity tree behind every control.
//
// An entity is one node of a control's configuration: an action to run, a
// feedback observing a connection, or a local variable computing a reusable
// value. Entities live in ordered, constrained lists; a list is the unit that
// enforces type filters and size caps, aggregates boolean feedbacks, and
// merges feedback values delivered by connections.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────┐
//	│                    List (list.go)                    │
//	│  ListDefinition: type filter, sub-type, max count    │
//	│  ┌───────────┐  ┌───────────┐  ┌───────────┐        │
//	│  │  Entity   │  │  Entity   │  │  Entity   │  ...   │
//	│  │ (options, │  │           │  │ children: │        │
//	│  │  value)   │  │           │  │  List ... │        │
//	│  └───────────┘  └───────────┘  └───────────┘        │
//	└─────────────────────────────────────────────────────┘
//	          ▲ UpdateFeedbackValues(connectionID, batch)
//	          │ (module host, any order, any time)
//
// # Key Types
//
//   - Model: persisted shape of an entity (JSON)
//   - Entity: live node with cached feedback value and subscription state
//   - List: ordered entities satisfying a ListDefinition
//   - Env: per-control collaborators shared by every entity of a control
//
// # Thread Safety
//
// Entities and lists are not safe for concurrent use. The owning control
// serialises all access.
package entity
