package phishetl

import (
	"log/slog"
	"time"
)

// Default run settings.
const (
	DefaultBatchSize      = 1000
	DefaultReportInterval = 10000
)

// WithMaxRows caps the number of rows processed, skipped rows included. Once
// the cap is reached no further row is pulled from the feed. Zero means
// unlimited; negative values are ignored.
func (p *Pipeline) WithMaxRows(n int) *Pipeline {
	if n >= 0 {
		p.maxRows = n
	}
	return p
}

// WithBatchSize sets how many accepted records accumulate before a commit.
// Values less than 1 are ignored.
func (p *Pipeline) WithBatchSize(n int) *Pipeline {
	if n >= 1 {
		p.batchSize = &n
	}
	return p
}

// WithBatcher replaces how a full pending batch is split into commits. The
// default is SizeBatcher with the resolved batch size, which yields exactly one
// commit per threshold.
func (p *Pipeline) WithBatcher(b Batcher[Record]) *Pipeline {
	p.batcher = b
	return p
}

// WithReportInterval overrides how often to report progress (in rows).
// Priority: this method > ReportInterval hook > DefaultReportInterval.
// Values less than 1 are ignored.
func (p *Pipeline) WithReportInterval(n int) *Pipeline {
	if n >= 1 {
		p.reportInterval = &n
	}
	return p
}

// WithCommitAhead overlaps fetching with committing: a second goroutine
// commits the previous batch while the next one fills. At most one commit is
// in flight and batches are committed in fetch order.
func (p *Pipeline) WithCommitAhead() *Pipeline {
	p.commitAhead = true
	return p
}

// WithPartialCredit counts the writes that did apply in a partially failed
// batch. By default such a batch contributes zero inserted and updated.
func (p *Pipeline) WithPartialCredit() *Pipeline {
	p.creditPartial = true
	return p
}

// WithClock sets the clock used to stamp IngestedAt.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.transformer.WithClock(now)
	return p
}

// WithLogger sets the logger. Defaults to slog.Default().
func (p *Pipeline) WithLogger(l *slog.Logger) *Pipeline {
	if l != nil {
		p.logger = l
	}
	return p
}

// WithHooks registers lifecycle hooks. Each value is checked for Starter,
// Stopper, ProgressReporter, ReportInterval, BatchObserver and ErrorHandler;
// a value may implement any number of them. Hooks run in registration order.
func (p *Pipeline) WithHooks(hooks ...any) *Pipeline {
	for _, h := range hooks {
		p.hooks.add(h)
	}
	return p
}

// resolveBatchSize returns the effective batch size.
func (p *Pipeline) resolveBatchSize() int {
	if p.batchSize != nil {
		return *p.batchSize
	}
	return DefaultBatchSize
}

// resolveReportInterval returns the effective report interval.
// Priority: WithReportInterval > first ReportInterval hook > DefaultReportInterval.
func (p *Pipeline) resolveReportInterval() int {
	if p.reportInterval != nil {
		return *p.reportInterval
	}
	for _, r := range p.hooks.progress {
		if n := r.ReportInterval(); n >= 1 {
			return n
		}
	}
	for _, r := range p.hooks.intervals {
		if n := r.ReportInterval(); n >= 1 {
			return n
		}
	}
	return DefaultReportInterval
}

// resolveBatcher returns the configured Batcher if set, otherwise SizeBatcher with
// the resolved batch size.
func (p *Pipeline) resolveBatcher() Batcher[Record] {
	if p.batcher != nil {
		return p.batcher
	}
	return SizeBatcher[Record](p.resolveBatchSize())
}
