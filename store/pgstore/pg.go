// Package pgstore is a phishetl.Store backed by PostgreSQL through pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	phishetl "github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28"
)

// DefaultTable matches the collection name the feed has always been loaded into.
const DefaultTable = "phishtank_raw"

// Store writes records to one table. Every record is a separate statement, so
// a failing row never rolls back its neighbours.
type Store struct {
	pool  *pgxpool.Pool
	table string // sanitized, possibly schema-qualified
	owned bool
}

var _ phishetl.Store = (*Store)(nil)

// Open connects a pool to dsn and pings it. maxConns <= 0 keeps the pgx default.
func Open(ctx context.Context, dsn, table string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	s := New(pool, table)
	s.owned = true
	return s, nil
}

// New wraps an existing pool. The pool stays owned by the caller.
func New(pool *pgxpool.Pool, table string) *Store {
	return &Store{pool: pool, table: QuoteTable(table)}
}

// QuoteTable quotes a table name, optionally schema-qualified ("audit.phish").
// An empty name yields DefaultTable.
func QuoteTable(table string) string {
	if table == "" {
		table = DefaultTable
	}
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

// Close closes the pool if Open created it.
func (s *Store) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// EnsureSchema creates the table, keyed and uniquely constrained on phish_id.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS `+s.table+` (
  phish_id        TEXT PRIMARY KEY CHECK (phish_id <> ''),
  url             TEXT NOT NULL CHECK (url <> ''),
  submission_time TIMESTAMPTZ,
  verified        BOOLEAN NOT NULL DEFAULT FALSE,
  ingested_at     TIMESTAMPTZ NOT NULL
)`)
	return err
}

// DropTable drops the table if it exists.
func (s *Store) DropTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS `+s.table)
	return err
}

// upsertSQL reports through xmax whether the row was inserted (xmax = 0) or
// an existing row was updated.
func (s *Store) upsertSQL() string {
	return `INSERT INTO ` + s.table + ` (phish_id, url, submission_time, verified, ingested_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (phish_id) DO UPDATE SET
  url = EXCLUDED.url,
  submission_time = EXCLUDED.submission_time,
  verified = EXCLUDED.verified,
  ingested_at = EXCLUDED.ingested_at
RETURNING (xmax = 0) AS inserted`
}

// UpsertBatch upserts each record. A record the server rejects with a data or
// integrity error is reported in a *phishetl.BulkWriteError while the others
// still apply; connection and context errors stop the batch.
func (s *Store) UpsertBatch(ctx context.Context, batch []phishetl.Record) (phishetl.UpsertResult, error) {
	var res phishetl.UpsertResult
	var failures []phishetl.WriteFailure
	q := s.upsertSQL()

	for i, rec := range batch {
		var inserted bool
		err := s.pool.QueryRow(ctx, q,
			rec.ID, rec.URL, rec.SubmittedAt, rec.Verified, rec.IngestedAt,
		).Scan(&inserted)
		if err != nil {
			if !IsRecordError(err) {
				return res, fmt.Errorf("pgstore: upsert %s: %w", rec.ID, err)
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

// Get returns the stored record for id, or phishetl.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (phishetl.Record, error) {
	var rec phishetl.Record
	err := s.pool.QueryRow(ctx,
		`SELECT phish_id, url, submission_time, verified, ingested_at FROM `+s.table+` WHERE phish_id = $1`, id,
	).Scan(&rec.ID, &rec.URL, &rec.SubmittedAt, &rec.Verified, &rec.IngestedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return phishetl.Record{}, phishetl.ErrNotFound
	}
	return rec, err
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+s.table).Scan(&n)
	return n, err
}

// IsRecordError reports whether err is a server error about the row itself:
// SQLSTATE class 22 (data exception) or 23 (integrity constraint violation).
func IsRecordError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")
}
