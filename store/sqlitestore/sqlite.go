// Package sqlitestore is an embedded phishetl.Store backed by SQLite through
// the CGO-free modernc driver.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"modernc.org/sqlite"

	phishetl "github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28"
)

// DefaultTable matches the collection name the feed has always been loaded into.
const DefaultTable = "phishtank_raw"

// Primary result codes that concern a single record.
const (
	codeTooBig     = 18
	codeConstraint = 19
	codeMismatch   = 20
	codeRange      = 25
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is the concrete storage backed by SQLite.
type Store struct {
	db    *sql.DB
	table string
}

var _ phishetl.Store = (*Store)(nil)

// Open opens (and creates if missing) a SQLite database at path. Use
// ":memory:" for a private in-memory database.
func Open(ctx context.Context, path, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("sqlitestore: invalid table name %q", table)
	}
	// Pragmas via DSN keep it portable with the modernc driver.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite has a single writer, and an in-memory database
	// exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	return &Store{db: db, table: table}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// EnsureSchema creates the table, keyed and uniquely constrained on phish_id.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+s.table+` (
  phish_id        TEXT PRIMARY KEY CHECK (phish_id <> ''),
  url             TEXT NOT NULL CHECK (url <> ''),
  submission_time TEXT,             -- RFC3339Nano, NULL when unknown
  verified        INTEGER NOT NULL DEFAULT 0,
  ingested_at     TEXT NOT NULL     -- RFC3339Nano
);`)
	return err
}

// UpsertBatch upserts each record in its own transaction. A record the
// database rejects (constraint, type or size violation) is reported in a
// *phishetl.BulkWriteError while the others still apply; any other error
// stops the batch and is returned as is.
func (s *Store) UpsertBatch(ctx context.Context, batch []phishetl.Record) (phishetl.UpsertResult, error) {
	var res phishetl.UpsertResult
	var failures []phishetl.WriteFailure

	for i, rec := range batch {
		inserted, err := s.upsert(ctx, rec)
		if err != nil {
			if !isRecordError(err) {
				return res, fmt.Errorf("sqlitestore: upsert %s: %w", rec.ID, err)
			}
			failures = append(failures, phishetl.WriteFailure{Index: i, Key: rec.ID, Err: err})
			continue
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	if len(failures) > 0 {
		return res, &phishetl.BulkWriteError{Inserted: res.Inserted, Updated: res.Updated, Failures: failures}
	}
	return res, nil
}

func (s *Store) upsert(ctx context.Context, rec phishetl.Record) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+s.table+` WHERE phish_id = ?)`, rec.ID,
	).Scan(&exists); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+s.table+` (phish_id, url, submission_time, verified, ingested_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(phish_id) DO UPDATE SET url=excluded.url, submission_time=excluded.submission_time, verified=excluded.verified, ingested_at=excluded.ingested_at`,
		rec.ID, rec.URL, formatTimePtr(rec.SubmittedAt), rec.Verified, formatTime(rec.IngestedAt),
	); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return !exists, nil
}

// Get returns the stored record for id, or phishetl.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (phishetl.Record, error) {
	var (
		rec       phishetl.Record
		submitted sql.NullString
		ingested  string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT phish_id, url, submission_time, verified, ingested_at FROM `+s.table+` WHERE phish_id = ?`, id)
	if err := row.Scan(&rec.ID, &rec.URL, &submitted, &rec.Verified, &ingested); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return phishetl.Record{}, phishetl.ErrNotFound
		}
		return phishetl.Record{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, ingested)
	if err != nil {
		return phishetl.Record{}, fmt.Errorf("sqlitestore: ingested_at: %w", err)
	}
	rec.IngestedAt = t
	if submitted.Valid {
		t, err := time.Parse(time.RFC3339Nano, submitted.String)
		if err != nil {
			return phishetl.Record{}, fmt.Errorf("sqlitestore: submission_time: %w", err)
		}
		rec.SubmittedAt = &t
	}
	return rec, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.table).Scan(&n)
	return n, err
}

// isRecordError reports whether err concerns the record rather than the database.
func isRecordError(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case codeConstraint, codeMismatch, codeTooBig, codeRange:
		return true
	}
	return false
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
