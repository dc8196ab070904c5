// Package learn serialises "learn" requests: asking a connection for the
// current real-world value of an entity so its options can be pre-filled.
//
// At most one learn per entity ID runs at a time. Observers (the API's
// WebSocket hub) are told whenever an ID enters or leaves the in-flight set.
package learn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrLearnRunning is returned when a learn for the same ID is already in flight.
var ErrLearnRunning = errors.New("learn is already running")

// ChangeFunc observes the in-flight set. active is true when id was added
// and false when it was removed.
type ChangeFunc func(id string, active bool)

// Coordinator tracks in-flight learn requests.
type Coordinator struct {
	mu       sync.Mutex
	active   map[string]struct{}
	onChange ChangeFunc
}

// NewCoordinator creates a coordinator. onChange may be nil.
func NewCoordinator(onChange ChangeFunc) *Coordinator {
	return &Coordinator{
		active:   make(map[string]struct{}),
		onChange: onChange,
	}
}

// Run marks id as learning, runs work and clears the mark when work returns
// (or panics). It returns ErrLearnRunning without calling work when id is
// already learning.
func (c *Coordinator) Run(ctx context.Context, id string, work func(ctx context.Context) error) error {
	c.mu.Lock()
	if _, running := c.active[id]; running {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLearnRunning, id)
	}
	c.active[id] = struct{}{}
	c.mu.Unlock()

	c.notify(id, true)

	defer func() {
		c.mu.Lock()
		delete(c.active, id)
		c.mu.Unlock()
		c.notify(id, false)
	}()

	return work(ctx)
}

// IsActive reports whether a learn for id is in flight.
func (c *Coordinator) IsActive(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[id]
	return ok
}

// ActiveIDs returns the in-flight IDs, sorted.
func (c *Coordinator) ActiveIDs() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	sort.Strings(ids)
	return ids
}

func (c *Coordinator) notify(id string, active bool) {
	if c.onChange != nil {
		c.onChange(id, active)
	}
}
