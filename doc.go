// Package phishetl ingests the PhishTank phishing-report feed into a document
// store keyed by phish_id, such that re-running the ingest is safe and
// produces no duplicates.
//
// A run is a single forward pass: the feed is opened (with retry), each line
// is normalized into a [Record] or skipped, and accepted records are
// committed to a [Store] in bounded batches of idempotent upserts.
//
// # Quick Start
//
//	store, err := sqlitestore.Open(ctx, "phish.db", sqlitestore.DefaultTable)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	if err := store.EnsureSchema(ctx); err != nil {
//	    return err
//	}
//
//	fetcher := phishetl.NewFetcher(os.Getenv("PHISHTANK_URL")).
//	    WithRetries(3).
//	    WithBackoff(5 * time.Second)
//
//	summary, err := phishetl.New(fetcher, store).
//	    WithBatchSize(500).
//	    WithMaxRows(500).
//	    Run(ctx)
//
// # Fetching
//
// [Fetcher] GETs the feed and parses it as CSV with a header line. Columns are
// reached by name through [Row.Get]; unknown columns are ignored, and a header
// without phish_id or url fails the run with [ErrFeedSchema].
//
// Connection failures (transport errors, timeouts, non-2xx statuses) are
// retried up to the configured number of attempts with a linear backoff: the
// wait after attempt n is n × backoff. When every attempt fails the run aborts
// with [ErrSourceUnavailable] before anything is processed. Once the body is
// streaming, a read failure aborts the run with [ErrStreamRead]; there is no
// resume.
//
// # Transforming
//
// [Transformer.Transform] trims phish_id and url and skips the row when either
// is empty. submission_time is parsed as ISO-8601 and left nil when absent or
// malformed. verified is true only for "yes", "y" and "true", in any case.
// IngestedAt is the wall-clock time of the transformation.
//
// # Committing
//
// Accepted records accumulate until the batch size is reached. The batch is
// then split by the [Batcher] (one commit per threshold by default) and each
// part is committed by the [Reconciler] as one unordered bulk upsert. A
// partial failure, reported by the store as a [*BulkWriteError], is absorbed:
// the batch outcome is tagged [BatchPartiallyFailed], a warning is logged, and
// the batch adds zero to the inserted and updated totals. Store writes are
// never retried.
//
// # Row Cap
//
// WithMaxRows bounds the rows processed, skipped ones included. Once the cap
// is reached no further row is pulled from the feed, and the pending partial
// batch is flushed as usual.
//
// # Errors
//
// Fatal failures are returned as an [*AbortError] and the run's totals are
// discarded. [AbortError.Ingested] distinguishes a run that failed before
// the store accepted any record from one that wrote records and then failed:
//
//	summary, err := p.Run(ctx)
//	var abort *phishetl.AbortError
//	switch {
//	case errors.As(err, &abort) && abort.Ingested():
//	    slog.Error("partial ingest", "records", abort.CommittedRecords, "error", err)
//	case err != nil:
//	    slog.Error("nothing ingested", "error", err)
//	default:
//	    slog.Info("ingest complete", "summary", summary)
//	}
//
// # Commit-Ahead Mode
//
// WithCommitAhead moves commits to a second goroutine so the next batch is
// fetched and transformed while the previous one is written. Exactly one
// commit is in flight at a time and batches are committed in fetch order, so
// the last write for a phish_id is the one latest in the feed, as in the
// sequential mode.
//
// # Lifecycle Hooks
//
// WithHooks accepts any value and detects [Starter], [Stopper],
// [ProgressReporter], [ReportInterval], [BatchObserver] and [ErrorHandler]:
//
//	func (h *Ops) Stop(ctx context.Context, s *phishetl.Summary, err error) {
//	    if err != nil {
//	        slog.ErrorContext(ctx, "ingest failed", "error", err)
//	        return
//	    }
//	    slog.InfoContext(ctx, "ingest complete", "summary", s)
//	}
//
//	p := phishetl.New(fetcher, store).WithHooks(&Ops{}, recorder)
//
// # Stores
//
// The store packages under store/ implement [Store] for MongoDB, PostgreSQL
// and SQLite. Each provisions the unique constraint on phish_id with
// EnsureSchema; the pipeline relies on it and never creates schema itself.
package phishetl
