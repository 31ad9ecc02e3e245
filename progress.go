package phishetl

import "context"

// ReportInterval controls how often progress is reported, measured in rows
// processed (skipped rows included).
//
// The value can be overridden at runtime via WithReportInterval, which takes
// precedence over this interface. If neither is set, DefaultReportInterval
// (10,000 rows) is used. When several registered hooks implement it, the
// first one wins.
//
// This interface is embedded in ProgressReporter, so implementing
// ProgressReporter automatically satisfies ReportInterval.
type ReportInterval interface {
	// ReportInterval returns how often to call OnProgress (in rows processed).
	ReportInterval() int
}

// ProgressReporter receives periodic progress updates during a run.
//
// OnProgress is called each time the processed count crosses a ReportInterval
// boundary. In commit-ahead mode it runs on the fetching goroutine while a
// commit may be in flight; the Summary is safe to read concurrently.
//
// Example:
//
//	func (h *Ops) ReportInterval() int { return 50000 }
//
//	func (h *Ops) OnProgress(ctx context.Context, s *phishetl.Summary) {
//	    slog.InfoContext(ctx, "progress",
//	        "processed", s.Processed(),
//	        "inserted", s.Inserted(),
//	        "skipped", s.Skipped(),
//	    )
//	}
type ProgressReporter interface {
	ReportInterval

	// OnProgress is called periodically during execution.
	OnProgress(ctx context.Context, summary *Summary)
}
