package phishetl

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSourceUnavailable means every fetch attempt failed. Nothing was read.
	ErrSourceUnavailable = errors.New("phishetl: source unavailable")

	// ErrStreamRead means the feed failed after the connection was opened.
	// Mid-stream failures are never retried.
	ErrStreamRead = errors.New("phishetl: feed stream read failed")

	// ErrFeedSchema means the feed header lacks a required column.
	ErrFeedSchema = errors.New("phishetl: feed schema")

	// ErrCommit means the store could not process a batch at all (as opposed
	// to a partial failure, which is absorbed).
	ErrCommit = errors.New("phishetl: batch commit failed")

	// ErrNotFound is returned by store lookups for an unknown phish_id.
	ErrNotFound = errors.New("phishetl: record not found")
)

// AbortError is returned by Pipeline.Run when a fatal failure ends the run.
// Totals accumulated before the failure are discarded; CommittedBatches and
// CommittedRecords only say whether the store was already written to.
type AbortError struct {
	Stage            Stage
	Err              error
	CommittedBatches int64
	CommittedRecords int64
}

func (e *AbortError) Error() string {
	if e.Ingested() {
		return fmt.Sprintf("run aborted at %s after %d committed record(s) in %d batch(es): %v", e.Stage, e.CommittedRecords, e.CommittedBatches, e.Err)
	}
	return fmt.Sprintf("run aborted at %s, nothing ingested: %v", e.Stage, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// Ingested reports whether the store accepted any record before the abort. A
// batch whose every write was refused does not count.
func (e *AbortError) Ingested() bool { return e.CommittedRecords > 0 }

// WriteFailure is a single record that the store refused.
type WriteFailure struct {
	Index int    // position in the submitted batch
	Key   string // the record's ID
	Err   error
}

// BulkWriteError is the structured partial-failure result of
// Store.UpsertBatch. Writes not listed in Failures were applied, and Inserted
// and Updated count them.
type BulkWriteError struct {
	Inserted int
	Updated  int
	Failures []WriteFailure
}

func (e *BulkWriteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bulk write: %d record(s) failed", len(e.Failures))
	for i, f := range e.Failures {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Failures)-i)
			break
		}
		fmt.Fprintf(&b, "; %s: %v", f.Key, f.Err)
	}
	return b.String()
}

// Keys returns the IDs of the failed records in batch order.
func (e *BulkWriteError) Keys() []string {
	keys := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		keys[i] = f.Key
	}
	return keys
}
