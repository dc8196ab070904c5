package pool

import "errors"

// Domain errors for the pool package.
var (
	// ErrInvalidKind is returned when constructing a pool for an unknown control kind.
	ErrInvalidKind = errors.New("pool: invalid control kind")

	// ErrListNotFound is returned when a location does not name a list of this pool.
	ErrListNotFound = errors.New("pool: list not found")

	// ErrEntityNotFound is returned when an entity (or owner) ID does not exist in the list.
	ErrEntityNotFound = errors.New("pool: entity not found")

	// ErrEntityRejected is returned when a list's type filter or size cap rejects an entity.
	ErrEntityRejected = errors.New("pool: entity rejected by list")

	// ErrInvalidIndex is returned when a move refers to an index outside the list.
	ErrInvalidIndex = errors.New("pool: invalid index")
)
