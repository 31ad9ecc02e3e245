// Package storetest is a conformance suite for phishetl.Store
// implementations.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	phishetl "github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28"
)

// Store is what the suite needs beyond phishetl.Store.
type Store interface {
	phishetl.Store
	EnsureSchema(ctx context.Context) error
	Get(ctx context.Context, id string) (phishetl.Record, error)
	Count(ctx context.Context) (int64, error)
}

// Open returns an empty store, already provisioned with EnsureSchema. It is
// called once per subtest and must register its own cleanup.
type Open func(t *testing.T) Store

// Run exercises the upsert contract every store must honour.
func Run(t *testing.T, open Open) {
	t.Helper()

	t.Run("EnsureSchema is idempotent", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.EnsureSchema(t.Context()))
		require.NoError(t, s.EnsureSchema(t.Context()))
	})

	t.Run("insert then update", func(t *testing.T) {
		s := open(t)
		ctx := t.Context()
		batch := []phishetl.Record{Record("1", "http://a.example"), Record("2", "http://b.example")}

		res, err := s.UpsertBatch(ctx, batch)
		require.NoError(t, err)
		require.Equal(t, phishetl.UpsertResult{Inserted: 2}, res)

		res, err = s.UpsertBatch(ctx, batch)
		require.NoError(t, err)
		require.Equal(t, phishetl.UpsertResult{Updated: 2}, res)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), n)
	})

	t.Run("mixed batch", func(t *testing.T) {
		s := open(t)
		ctx := t.Context()

		_, err := s.UpsertBatch(ctx, []phishetl.Record{Record("1", "http://a.example")})
		require.NoError(t, err)

		res, err := s.UpsertBatch(ctx, []phishetl.Record{
			Record("1", "http://a.example"),
			Record("2", "http://b.example"),
			Record("3", "http://c.example"),
		})
		require.NoError(t, err)
		require.Equal(t, phishetl.UpsertResult{Inserted: 2, Updated: 1}, res)
	})

	t.Run("last write wins", func(t *testing.T) {
		s := open(t)
		ctx := t.Context()

		first := Record("7", "http://old.example")
		_, err := s.UpsertBatch(ctx, []phishetl.Record{first})
		require.NoError(t, err)

		second := Record("7", "http://new.example")
		second.Verified = true
		second.IngestedAt = first.IngestedAt.Add(time.Hour)
		_, err = s.UpsertBatch(ctx, []phishetl.Record{second})
		require.NoError(t, err)

		got, err := s.Get(ctx, "7")
		require.NoError(t, err)
		require.Equal(t, "http://new.example", got.URL)
		require.True(t, got.Verified)
		require.WithinDuration(t, second.IngestedAt, got.IngestedAt, time.Millisecond)
	})

	t.Run("round trips fields", func(t *testing.T) {
		s := open(t)
		ctx := t.Context()

		rec := Record("42", "http://phish.example/login")
		submitted := time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC)
		rec.SubmittedAt = &submitted
		rec.Verified = true
		_, err := s.UpsertBatch(ctx, []phishetl.Record{rec})
		require.NoError(t, err)

		got, err := s.Get(ctx, "42")
		require.NoError(t, err)
		require.Equal(t, rec.ID, got.ID)
		require.Equal(t, rec.URL, got.URL)
		require.True(t, got.Verified)
		require.NotNil(t, got.SubmittedAt)
		require.WithinDuration(t, submitted, *got.SubmittedAt, time.Millisecond)
		require.WithinDuration(t, rec.IngestedAt, got.IngestedAt, time.Millisecond)
	})

	t.Run("absent submission time stays absent", func(t *testing.T) {
		s := open(t)
		ctx := t.Context()

		_, err := s.UpsertBatch(ctx, []phishetl.Record{Record("9", "http://x.example")})
		require.NoError(t, err)

		got, err := s.Get(ctx, "9")
		require.NoError(t, err)
		require.Nil(t, got.SubmittedAt)
	})

	t.Run("Get unknown id", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(t.Context(), "missing")
		require.ErrorIs(t, err, phishetl.ErrNotFound)
	})
}

// Record returns a valid record with a fixed, millisecond-aligned IngestedAt.
func Record(id, url string) phishetl.Record {
	return phishetl.Record{
		ID:         id,
		URL:        url,
		IngestedAt: time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC),
	}
}
