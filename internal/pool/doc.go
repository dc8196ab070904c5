// Package pool manages the entity lists owned by one control.
//
// Every control kind owns exactly one Pool. The kind selects a descriptor
// listing the pool's fixed, named entity lists and whether it carries the
// step/action-set state machine:
//
//	Kind                 Lists                                     Steps
//	button               feedbacks, local-variables                yes
//	trigger              feedbacks (boolean), trigger_actions      no
//	expression_variable  feedbacks (max 1), local-variables        no
//
// Edits arrive as method calls and complete synchronously. Feedback values
// arrive from connections in batches and are routed to every list; the pool
// reports upward through the Callbacks supplied at construction:
//
//   - CommitChange(redraw) after any structural edit
//   - InvalidateControl() when a style or condition list value changed
//   - LocalVariablesChanged(names) when a local variable value changed
//
// # Thread Safety
//
// A Pool is not safe for concurrent use. The owning control serialises
// access.
package pool
