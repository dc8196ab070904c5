package control

import "errors"

// Domain errors for the control package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, control.ErrUnsupportedOperation) {
//	    // reject the RPC call
//	}
var (
	// ErrUnsupportedOperation is returned when a step or action-set operation
	// targets a control that has no steps.
	ErrUnsupportedOperation = errors.New("Control does not support this operation") //nolint:staticcheck // surfaced verbatim to RPC callers

	// ErrControlNotFound is returned when a control ID does not exist.
	ErrControlNotFound = errors.New("control: not found")

	// ErrControlExists is returned when creating a control with an ID already in use.
	ErrControlExists = errors.New("control: already exists")

	// ErrInvalidKind is returned when creating a control of an unknown kind.
	ErrInvalidKind = errors.New("control: invalid kind")

	// ErrLearnUnavailable is returned when no module host is attached for learning.
	ErrLearnUnavailable = errors.New("control: learn unavailable")
)
