package phishetl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// BatchStatus tags a BatchOutcome.
type BatchStatus string

const (
	BatchCommitted       BatchStatus = "committed"
	BatchPartiallyFailed BatchStatus = "partially_failed"
)

// BatchOutcome is the result of committing one batch.
//
// For a PartiallyFailed batch Inserted and Updated are what the store reports
// for the writes that did apply, and FailedKeys lists the refused IDs. The
// run summary credits a partially failed batch with zero unless the pipeline
// was built WithPartialCredit.
type BatchOutcome struct {
	Seq        int // 1-based commit number within the run
	Size       int
	Status     BatchStatus
	Inserted   int
	Updated    int
	FailedKeys []string
}

// Reconciler commits batches of records to a Store as unordered per-key upserts.
// Store writes are never retried.
type Reconciler struct {
	store  Store
	logger *slog.Logger
}

// NewReconciler returns a Reconciler writing to store.
func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger}
}

// Commit upserts a non-empty batch. A partial failure is absorbed: it is
// logged at warn level and reported as a BatchPartiallyFailed outcome with a
// nil error. Any other store error is returned wrapped in ErrCommit.
func (r *Reconciler) Commit(ctx context.Context, batch []Record) (BatchOutcome, error) {
	out := BatchOutcome{Size: len(batch)}
	if len(batch) == 0 {
		return out, fmt.Errorf("%w: empty batch", ErrCommit)
	}

	res, err := r.store.UpsertBatch(ctx, batch)
	if err == nil {
		out.Status = BatchCommitted
		out.Inserted = res.Inserted
		out.Updated = res.Updated
		return out, nil
	}

	var bwe *BulkWriteError
	if !errors.As(err, &bwe) {
		return out, fmt.Errorf("%w: %w", ErrCommit, err)
	}

	out.Status = BatchPartiallyFailed
	out.Inserted = bwe.Inserted
	out.Updated = bwe.Updated
	out.FailedKeys = bwe.Keys()
	r.logger.WarnContext(ctx, "partial batch failure",
		"size", len(batch),
		"failed", len(bwe.Failures),
		"applied_inserted", bwe.Inserted,
		"applied_updated", bwe.Updated,
		"error", bwe,
	)
	return out, nil
}
