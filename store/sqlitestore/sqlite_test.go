package sqlitestore_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	phishetl "github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28"
	"github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28/store/sqlitestore"
	"github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28/store/storetest"
)

func openStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.Open(t.Context(), filepath.Join(t.TempDir(), "phish.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(t.Context()))
	return s
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return openStore(t) })
}

func TestStore_InMemory(t *testing.T) {
	s, err := sqlitestore.Open(t.Context(), ":memory:", "phish")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EnsureSchema(t.Context()))
	_, err = s.UpsertBatch(t.Context(), []phishetl.Record{storetest.Record("1", "http://a.example")})
	require.NoError(t, err)

	n, err := s.Count(t.Context())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestStore_PartialFailure(t *testing.T) {
	s := openStore(t)
	ctx := t.Context()

	_, err := s.UpsertBatch(ctx, []phishetl.Record{storetest.Record("1", "http://a.example")})
	require.NoError(t, err)

	// The empty URL violates the CHECK constraint; its neighbours still apply.
	res, err := s.UpsertBatch(ctx, []phishetl.Record{
		storetest.Record("1", "http://a2.example"),
		storetest.Record("2", ""),
		storetest.Record("3", "http://c.example"),
	})

	var bwe *phishetl.BulkWriteError
	require.True(t, errors.As(err, &bwe), "want *BulkWriteError, got %v", err)
	require.Equal(t, []string{"2"}, bwe.Keys())
	require.Equal(t, 1, bwe.Failures[0].Index)
	require.Equal(t, 1, bwe.Inserted)
	require.Equal(t, 1, bwe.Updated)
	require.Equal(t, phishetl.UpsertResult{Inserted: 1, Updated: 1}, res)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	got, err := s.Get(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "http://a2.example", got.URL)
}

func TestStore_FatalErrorIsNotPartial(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Close())

	_, err := s.UpsertBatch(t.Context(), []phishetl.Record{storetest.Record("1", "http://a.example")})
	require.Error(t, err)

	var bwe *phishetl.BulkWriteError
	require.False(t, errors.As(err, &bwe))
}

func TestOpen_InvalidTable(t *testing.T) {
	_, err := sqlitestore.Open(t.Context(), ":memory:", "phish; DROP TABLE x")
	require.Error(t, err)
}
