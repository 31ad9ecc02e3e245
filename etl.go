package phishetl

import (
	"context"
	"iter"
	"time"
)

// Stage identifies where in the pipeline an event occurred.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageTransform Stage = "transform"
	StageCommit    Stage = "commit"
)

// Action tells the pipeline what to do after an error.
type Action string

const (
	ActionFail Action = "fail" // Stop pipeline and return error
	ActionSkip Action = "skip" // Drop this batch and continue
)

// Feed column names. Columns not listed here are ignored.
const (
	ColumnPhishID        = "phish_id"
	ColumnURL            = "url"
	ColumnSubmissionTime = "submission_time"
	ColumnVerified       = "verified"
)

// Record is the normalized unit persisted downstream, one document per ID.
//
// SubmittedAt is nil when the feed value is absent or unparseable. IngestedAt
// is stamped at transformation time, never read from the feed.
type Record struct {
	ID          string     `bson:"phish_id" json:"phish_id"`
	URL         string     `bson:"url" json:"url"`
	SubmittedAt *time.Time `bson:"submission_time" json:"submission_time"`
	Verified    bool       `bson:"verified" json:"verified"`
	IngestedAt  time.Time  `bson:"ingested_at" json:"ingested_at"`
}

// Source opens the feed for a single forward-only pass.
//
// Open is where retries happen: it either returns a stream whose header has
// been read and validated, or fails. [Fetcher] is the HTTP implementation.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an opened feed. Rows may be ranged over once; a non-nil error
// yielded by Rows is fatal and ends the sequence.
type Stream interface {
	Rows() iter.Seq2[Row, error]
	Close() error
}

// UpsertResult counts the outcome of a bulk upsert.
type UpsertResult struct {
	Inserted int // documents created
	Updated  int // existing documents matched and overwritten
}

// Store is the document store collaborator.
//
// UpsertBatch applies, for every record, "set all fields of the document whose
// phish_id equals ID, creating it if absent". The batch is unordered and not
// atomic: when some writes fail the others still apply, and the store returns
// a *[BulkWriteError] describing both. Any other error means the store could
// not process the batch at all.
//
// The store must enforce uniqueness of ID and make each per-key upsert atomic;
// the pipeline does no locking of its own.
type Store interface {
	UpsertBatch(ctx context.Context, batch []Record) (UpsertResult, error)
}
