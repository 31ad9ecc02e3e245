package phishetl

import "context"

// ErrorHandler decides what happens when the store fails a whole batch (any
// error other than a *BulkWriteError). Without an ErrorHandler such a failure
// aborts the run.
//
// Fetch failures are always fatal and never reach the handler: the fetch
// stage has its own retry, and a broken stream cannot be resumed. Partial
// batch failures never reach it either; they are absorbed by the Reconciler.
//
// Example:
//
//	func (h *Ops) OnError(ctx context.Context, stage phishetl.Stage, err error) phishetl.Action {
//	    if errors.Is(err, context.DeadlineExceeded) {
//	        return phishetl.ActionFail
//	    }
//	    slog.WarnContext(ctx, "dropping batch", "error", err)
//	    return phishetl.ActionSkip
//	}
//
// A skipped batch is not counted as a commit; its records are counted as
// failed.
type ErrorHandler interface {
	// OnError is called with the StageCommit stage and the wrapped ErrCommit
	// error. Return ActionSkip to continue, ActionFail to abort.
	OnError(ctx context.Context, stage Stage, err error) Action
}

// Starter is called before the feed is opened. The returned context is used
// for the whole run, which makes it the place to attach request-scoped values.
// Start is called exactly once per Run.
type Starter interface {
	Start(ctx context.Context) context.Context
}

// Stopper is called after the run ends, whether it completed or aborted.
//
// summary is the live run summary, including totals that the aborted run
// discards from its result; err is the error Run returns (an *AbortError or
// nil). Use it for final logging and metrics:
//
//	func (h *Ops) Stop(ctx context.Context, summary *phishetl.Summary, err error) {
//	    if err != nil {
//	        slog.ErrorContext(ctx, "ingest failed", "error", err, "summary", summary)
//	        return
//	    }
//	    slog.InfoContext(ctx, "ingest complete", "summary", summary)
//	}
type Stopper interface {
	Stop(ctx context.Context, summary *Summary, err error)
}

// BatchObserver is told about every committed batch, in commit order.
type BatchObserver interface {
	OnBatch(ctx context.Context, outcome BatchOutcome)
}

// hookSet holds the hooks detected by WithHooks, in registration order.
type hookSet struct {
	starters  []Starter
	stoppers  []Stopper
	progress  []ProgressReporter
	batches   []BatchObserver
	errors    []ErrorHandler
	intervals []ReportInterval
}

// add detects which optional interfaces h implements.
func (hs *hookSet) add(h any) {
	if s, ok := h.(Starter); ok {
		hs.starters = append(hs.starters, s)
	}
	if s, ok := h.(Stopper); ok {
		hs.stoppers = append(hs.stoppers, s)
	}
	if p, ok := h.(ProgressReporter); ok {
		hs.progress = append(hs.progress, p)
	} else if r, ok := h.(ReportInterval); ok {
		hs.intervals = append(hs.intervals, r)
	}
	if b, ok := h.(BatchObserver); ok {
		hs.batches = append(hs.batches, b)
	}
	if e, ok := h.(ErrorHandler); ok {
		hs.errors = append(hs.errors, e)
	}
}

func (hs *hookSet) start(ctx context.Context) context.Context {
	for _, s := range hs.starters {
		ctx = s.Start(ctx)
	}
	return ctx
}

func (hs *hookSet) stop(ctx context.Context, summary *Summary, err error) {
	for _, s := range hs.stoppers {
		s.Stop(ctx, summary, err)
	}
}

func (hs *hookSet) onBatch(ctx context.Context, o BatchOutcome) {
	for _, b := range hs.batches {
		b.OnBatch(ctx, o)
	}
}

// onError asks the handlers in order; the first ActionFail wins. With no
// handler registered the answer is ActionFail.
func (hs *hookSet) onError(ctx context.Context, stage Stage, err error) Action {
	if len(hs.errors) == 0 {
		return ActionFail
	}
	for _, h := range hs.errors {
		if h.OnError(ctx, stage, err) == ActionFail {
			return ActionFail
		}
	}
	return ActionSkip
}
