package phishetl

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
)

// Summary is the outcome of one run. Counter fields use atomic operations
// because in commit-ahead mode the committing goroutine updates them while
// the fetching goroutine counts rows.
type Summary struct {
	RunID string

	inserted       atomic.Int64
	updated        atomic.Int64
	skipped        atomic.Int64
	processed      atomic.Int64
	batches        atomic.Int64
	partialBatches atomic.Int64
	failedRecords  atomic.Int64
	committed      atomic.Int64
}

// NewSummary creates a Summary with initial counter values.
func NewSummary(runID string, inserted, updated, skipped, processed int64) *Summary {
	s := &Summary{RunID: runID}
	s.inserted.Store(inserted)
	s.updated.Store(updated)
	s.skipped.Store(skipped)
	s.processed.Store(processed)
	return s
}

// Inserted returns the number of documents created.
func (s *Summary) Inserted() int64 { return s.inserted.Load() }

// Updated returns the number of existing documents matched and overwritten.
func (s *Summary) Updated() int64 { return s.updated.Load() }

// Skipped returns the number of rows missing phish_id or url.
func (s *Summary) Skipped() int64 { return s.skipped.Load() }

// Processed returns the number of rows handled, skipped ones included.
func (s *Summary) Processed() int64 { return s.processed.Load() }

// Batches returns the number of commits issued.
func (s *Summary) Batches() int64 { return s.batches.Load() }

// PartialBatches returns the number of commits that partially failed.
func (s *Summary) PartialBatches() int64 { return s.partialBatches.Load() }

// FailedRecords returns the number of records the store refused.
func (s *Summary) FailedRecords() int64 { return s.failedRecords.Load() }

// LogValue implements slog.LogValuer for structured logging.
func (s *Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("run_id", s.RunID),
		slog.Int64("inserted", s.Inserted()),
		slog.Int64("updated", s.Updated()),
		slog.Int64("skipped", s.Skipped()),
		slog.Int64("processed", s.Processed()),
		slog.Int64("batches", s.Batches()),
		slog.Int64("partial_batches", s.PartialBatches()),
		slog.Int64("failed_records", s.FailedRecords()),
	)
}

// summaryJSON is the JSON representation of Summary.
type summaryJSON struct {
	RunID          string `json:"run_id"`
	Inserted       int64  `json:"inserted"`
	Updated        int64  `json:"updated"`
	Skipped        int64  `json:"skipped"`
	Processed      int64  `json:"processed"`
	Batches        int64  `json:"batches"`
	PartialBatches int64  `json:"partial_batches"`
	FailedRecords  int64  `json:"failed_records"`
}

// MarshalJSON implements json.Marshaler.
func (s *Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		RunID:          s.RunID,
		Inserted:       s.Inserted(),
		Updated:        s.Updated(),
		Skipped:        s.Skipped(),
		Processed:      s.Processed(),
		Batches:        s.Batches(),
		PartialBatches: s.PartialBatches(),
		FailedRecords:  s.FailedRecords(),
	})
}

// Internal increment methods. These return the new value after incrementing.
func (s *Summary) incSkipped(n int64) int64   { return s.skipped.Add(n) }
func (s *Summary) incProcessed(n int64) int64 { return s.processed.Add(n) }

// addOutcome folds a committed batch into the totals.
func (s *Summary) addOutcome(o BatchOutcome, creditPartial bool) {
	s.batches.Add(1)
	s.committed.Add(int64(max(0, o.Size-len(o.FailedKeys))))
	if o.Status == BatchPartiallyFailed {
		s.partialBatches.Add(1)
		s.failedRecords.Add(int64(len(o.FailedKeys)))
		if !creditPartial {
			return
		}
	}
	s.inserted.Add(int64(o.Inserted))
	s.updated.Add(int64(o.Updated))
}

// committedRecords is the number of records the store accepted, refused
// writes of partially failed batches excluded.
func (s *Summary) committedRecords() int64 { return s.committed.Load() }
