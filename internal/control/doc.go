// Package control owns the controls of a site: buttons, triggers and
// expression variables.
//
// A Control wraps exactly one pool.Pool and serialises access to it. The
// Registry holds every control, loads them from the Repository at startup
// and fans external events out to them:
//
//	module host ──► Registry.UpdateFeedbackValues ──► Control ──► pool.Pool
//	                Registry.ForgetConnection
//	UI / API    ──► Registry.StepAdd, ActionSetAdd, ... (RPC surface)
//	            ──► Control.Edit (entity editing)
//
// Pool callbacks are collected while the control is locked and handled by
// the Registry once the edit completes:
//
//   - commitChange: the control's record is persisted and a
//     "control.changed" event is broadcast
//   - invalidateControl: "control.invalidated" is broadcast; for triggers
//     the condition is re-evaluated and "trigger.condition" is broadcast
//     when it flips
//   - local variable changes: "control.local_variables_changed"
//
// # RPC semantics
//
// The step and action-set operations return (false, nil) for an unknown
// control ID and ErrUnsupportedOperation for a control that is not a button.
//
// # Thread Safety
//
// All exported methods of Registry and Control are safe for concurrent use.
package control
