package control

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-controls/internal/entity"
	"github.com/nerrad567/gray-logic-controls/internal/pool"
)

// LearnEntityOptions asks the entity's connection for its current real-world
// options and merges them into the entity. At most one learn per entity runs
// at a time; a second request fails with learn.ErrLearnRunning.
//
// It returns false without error when the control or entity does not exist.
func (r *Registry) LearnEntityOptions(ctx context.Context, controlID string, loc pool.Location, entityID string) (bool, error) {
	c, err := r.GetControl(controlID)
	if err != nil {
		return false, nil //nolint:nilerr // not-found is reported as false
	}

	var (
		model entity.Model
		found bool
	)
	c.View(func(p *pool.Pool) {
		if e, ok := p.FindEntity(loc, entityID); ok {
			model = e.ToModel(false)
			found = true
		}
	})
	if !found {
		return false, nil
	}
	if r.learnClient == nil {
		return false, ErrLearnUnavailable
	}

	learned := false
	err = r.learner.Run(ctx, entityID, func(ctx context.Context) error {
		options, learnErr := r.learnClient.LearnOptions(ctx, controlID, model)
		if learnErr != nil {
			return fmt.Errorf("learning options: %w", learnErr)
		}
		if len(options) == 0 {
			return nil
		}

		return c.Edit(func(p *pool.Pool) error {
			e, ok := p.FindEntity(loc, entityID)
			if !ok {
				// Removed while the learn was in flight.
				return nil
			}
			merged := e.Options()
			for k, v := range options {
				merged[k] = v
			}
			learned = true
			return p.SetEntityOptions(loc, entityID, merged)
		})
	})
	if err != nil {
		return false, err
	}
	return learned, nil
}

// LearningIDs returns the IDs of entities with a learn in flight.
func (r *Registry) LearningIDs() []string {
	return r.learner.ActiveIDs()
}
