package modulehost

import "errors"

var (
	// ErrLearnTimeout is returned when a connection does not answer a learn
	// request within the configured timeout.
	ErrLearnTimeout = errors.New("modulehost: learn request timed out")

	// ErrLearnFailed wraps an error reported by the connection itself.
	ErrLearnFailed = errors.New("modulehost: learn failed")

	// ErrNoConnection is returned when learning an entity without a connection.
	ErrNoConnection = errors.New("modulehost: entity has no connection")

	// ErrStopped is returned for requests made after Stop.
	ErrStopped = errors.New("modulehost: bridge stopped")
)
