package phishetl

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// runCommitAhead overlaps fetching and committing. The producer runs on
// groupCtx so a failed commit stops it; commits run on the parent ctx so a
// batch already in flight completes when the producer fails first.
//
// The channel is unbuffered: one batch in flight, at most one waiting in the
// producer, and a single committer keeps fetch order.
func (r *run) runCommitAhead(ctx context.Context, stream Stream) error {
	group, groupCtx := errgroup.WithContext(ctx)
	batches := make(chan []Record)

	group.Go(func() error {
		defer close(batches)
		return r.produce(groupCtx, stream, func(ctx context.Context, batch []Record) error {
			select {
			case batches <- batch:
				return nil
			case <-ctx.Done():
				return &stageError{stage: StageCommit, err: context.Cause(ctx)}
			}
		})
	})

	group.Go(func() error {
		for batch := range batches {
			if err := r.commit(ctx, batch); err != nil {
				return err
			}
		}
		return nil
	})

	return group.Wait()
}
