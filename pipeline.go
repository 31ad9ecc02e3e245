package phishetl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is the position of a run in the pipeline's state machine:
//
//	Idle → Fetching → {Transforming ⇄ Committing} → Flushing → Done
//
// Aborted is reachable from every state after Idle.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateTransforming
	StateCommitting
	StateFlushing
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateFetching:     "fetching",
	StateTransforming: "transforming",
	StateCommitting:   "committing",
	StateFlushing:     "flushing",
	StateDone:         "done",
	StateAborted:      "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// Pipeline drives Source → Transformer → Reconciler in a single pass.
//
// Rows are pulled from the source one at a time and transformed; accepted
// records accumulate until the batch size is reached, then the batch is
// committed and the totals updated. When the feed ends, or the row cap is
// reached, the remaining partial batch is flushed.
//
// A Pipeline may be Run repeatedly, but not concurrently.
type Pipeline struct {
	source      Source
	store       Store
	transformer *Transformer

	maxRows        int
	batchSize      *int
	reportInterval *int
	batcher        Batcher[Record]
	commitAhead    bool
	creditPartial  bool

	logger *slog.Logger
	hooks  hookSet
	state  atomic.Int32
}

// New creates a Pipeline reading from source and writing to store. The store
// handle is owned by the caller: it must be connected and provisioned before
// Run, and is never closed by the pipeline.
// Panics if source or store is nil.
func New(source Source, store Store) *Pipeline {
	if source == nil {
		panic("phishetl: nil source")
	}
	if store == nil {
		panic("phishetl: nil store")
	}
	return &Pipeline{
		source:      source,
		store:       store,
		transformer: NewTransformer(),
		logger:      slog.Default(),
	}
}

// State returns the state of the current or last run.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Run executes one ingest. On success it returns the run Summary. On a fatal
// failure it returns a nil Summary and an *AbortError; use errors.Is with
// ErrSourceUnavailable, ErrStreamRead, ErrFeedSchema or ErrCommit to classify
// it, and AbortError.Ingested to learn whether the store was written to.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	r := &run{
		p:       p,
		summary: &Summary{RunID: uuid.NewString()},
	}
	r.logger = p.logger.With("run_id", r.summary.RunID)
	r.reconciler = NewReconciler(p.store, r.logger)
	p.state.Store(int32(StateIdle))

	ctx = p.hooks.start(ctx)

	err := r.execute(ctx)
	if err != nil {
		r.transition(ctx, StateAborted)
	} else {
		r.transition(ctx, StateDone)
	}

	p.hooks.stop(ctx, r.summary, err)

	if err != nil {
		return nil, err
	}
	return r.summary, nil
}

// stageError tags an error with the stage it came from until Run turns it
// into an AbortError.
type stageError struct {
	stage Stage
	err   error
}

func (e *stageError) Error() string { return string(e.stage) + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// run is the state of a single Pipeline.Run.
type run struct {
	p          *Pipeline
	logger     *slog.Logger
	summary    *Summary
	reconciler *Reconciler
}

func (r *run) execute(ctx context.Context) error {
	r.transition(ctx, StateFetching)
	stream, err := r.p.source.Open(ctx)
	if err != nil {
		return r.abort(&stageError{stage: StageFetch, err: err})
	}
	defer func() { _ = stream.Close() }()

	if r.p.commitAhead {
		err = r.runCommitAhead(ctx, stream)
	} else {
		err = r.produce(ctx, stream, r.commit)
	}
	if err != nil {
		return r.abort(err)
	}
	return nil
}

func (r *run) abort(err error) *AbortError {
	stage := StageFetch
	var se *stageError
	if errors.As(err, &se) {
		stage, err = se.stage, se.err
	}
	return &AbortError{
		Stage:            stage,
		Err:              err,
		CommittedBatches: r.summary.Batches(),
		CommittedRecords: r.summary.committedRecords(),
	}
}

func (r *run) transition(ctx context.Context, to State) {
	from := State(r.p.state.Swap(int32(to)))
	if from != to {
		r.logger.DebugContext(ctx, "pipeline state", "from", from, "to", to)
	}
}

// produce reads and transforms rows, handing every full batch to emit and
// flushing the remainder at the end.
func (r *run) produce(ctx context.Context, stream Stream, emit func(context.Context, []Record) error) error {
	batcher := r.p.resolveBatcher()
	batchSize := r.p.resolveBatchSize()
	reportEvery := int64(r.p.resolveReportInterval())
	maxRows := int64(r.p.maxRows)

	pending := make([]Record, 0, batchSize)
	flush := func() error {
		for _, batch := range batcher.Batch(pending) {
			if len(batch) == 0 {
				continue
			}
			if err := emit(ctx, batch); err != nil {
				return err
			}
		}
		// Emitted batches may still be in use by the committer.
		pending = make([]Record, 0, batchSize)
		return nil
	}

	r.transition(ctx, StateTransforming)
	for row, err := range stream.Rows() {
		if err != nil {
			return &stageError{stage: StageFetch, err: err}
		}
		if err := ctx.Err(); err != nil {
			return &stageError{stage: StageFetch, err: context.Cause(ctx)}
		}

		if rec, ok := r.p.transformer.Transform(row); ok {
			pending = append(pending, rec)
		} else {
			r.summary.incSkipped(1)
		}
		processed := r.summary.incProcessed(1)

		if processed%reportEvery == 0 {
			for _, pr := range r.p.hooks.progress {
				pr.OnProgress(ctx, r.summary)
			}
		}

		if len(pending) >= batchSize {
			r.transition(ctx, StateCommitting)
			if err := flush(); err != nil {
				return err
			}
			r.transition(ctx, StateTransforming)
		}

		// Checked after the row so the next one is never pulled.
		if maxRows > 0 && processed >= maxRows {
			r.logger.DebugContext(ctx, "row cap reached", "max_rows", maxRows)
			break
		}
	}

	r.transition(ctx, StateFlushing)
	if len(pending) > 0 {
		return flush()
	}
	return nil
}

// commit writes one batch and folds the outcome into the summary.
func (r *run) commit(ctx context.Context, batch []Record) error {
	out, err := r.reconciler.Commit(ctx, batch)
	if err != nil {
		if r.p.hooks.onError(ctx, StageCommit, err) == ActionSkip {
			r.summary.failedRecords.Add(int64(len(batch)))
			r.logger.WarnContext(ctx, "batch dropped", "size", len(batch), "error", err)
			return nil
		}
		return &stageError{stage: StageCommit, err: err}
	}

	out.Seq = int(r.summary.Batches()) + 1
	r.summary.addOutcome(out, r.p.creditPartial)
	r.logger.DebugContext(ctx, "batch committed",
		"seq", out.Seq,
		"size", out.Size,
		"status", out.Status,
		"inserted", out.Inserted,
		"updated", out.Updated,
	)
	r.p.hooks.onBatch(ctx, out)
	return nil
}
