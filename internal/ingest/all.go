package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/shelfwise/internal/model"
)

// RunAll synchronises every entity type of one store in parallel. Entity
// types share no mutable state, so one failing does not stop the other.
//
// runs is in model.EntityTypes order and always fully populated; err is the
// first failure in that order.
func (e *Engine) RunAll(ctx context.Context, storeID string, opts RunOptions) ([]model.SyncRun, error) {
	runs := make([]model.SyncRun, len(model.EntityTypes))
	errs := make([]error, len(model.EntityTypes))

	var g errgroup.Group
	for i, entity := range model.EntityTypes {
		i, entity := i, entity
		g.Go(func() error {
			runs[i], errs[i] = e.Run(ctx, storeID, entity, opts)
			return errs[i]
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return runs, err
		}
	}
	return runs, nil
}
