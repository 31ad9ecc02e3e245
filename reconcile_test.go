package phishetl_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	phishetl "github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28"
)

// storeFunc adapts a function to phishetl.Store.
type storeFunc func(ctx context.Context, batch []phishetl.Record) (phishetl.UpsertResult, error)

func (f storeFunc) UpsertBatch(ctx context.Context, batch []phishetl.Record) (phishetl.UpsertResult, error) {
	return f(ctx, batch)
}

func TestReconciler_Commit(t *testing.T) {
	partial := &phishetl.BulkWriteError{
		Inserted: 1,
		Updated:  1,
		Failures: []phishetl.WriteFailure{{Index: 2, Key: "c", Err: errors.New("E11000 duplicate key")}},
	}
	lost := errors.New("connection reset")

	tests := []struct {
		name    string
		result  phishetl.UpsertResult
		err     error
		want    phishetl.BatchOutcome
		wantErr error
	}{
		{
			name:   "committed",
			result: phishetl.UpsertResult{Inserted: 2, Updated: 1},
			want:   phishetl.BatchOutcome{Size: 3, Status: phishetl.BatchCommitted, Inserted: 2, Updated: 1},
		},
		{
			name: "partial failure is absorbed",
			err:  partial,
			want: phishetl.BatchOutcome{Size: 3, Status: phishetl.BatchPartiallyFailed, Inserted: 1, Updated: 1, FailedKeys: []string{"c"}},
		},
		{
			name:    "any other error is a commit failure",
			err:     lost,
			want:    phishetl.BatchOutcome{Size: 3},
			wantErr: lost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			store := storeFunc(func(context.Context, []phishetl.Record) (phishetl.UpsertResult, error) {
				return tt.result, tt.err
			})

			got, err := phishetl.NewReconciler(store, logger).Commit(context.Background(), recs("a", "b", "c"))
			require.Equal(t, tt.want, got)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, phishetl.ErrCommit)
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.want.Status == phishetl.BatchPartiallyFailed {
				require.Contains(t, buf.String(), "level=WARN")
				require.Contains(t, buf.String(), "partial batch failure")
			}
		})
	}
}

func TestReconciler_WrappedPartialFailure(t *testing.T) {
	store := storeFunc(func(context.Context, []phishetl.Record) (phishetl.UpsertResult, error) {
		return phishetl.UpsertResult{}, errors.Join(errors.New("bulk write"), &phishetl.BulkWriteError{
			Failures: []phishetl.WriteFailure{{Index: 0, Key: "a"}},
		})
	})

	got, err := phishetl.NewReconciler(store, nil).Commit(context.Background(), recs("a"))
	require.NoError(t, err)
	require.Equal(t, phishetl.BatchPartiallyFailed, got.Status)
}

func TestReconciler_EmptyBatch(t *testing.T) {
	called := false
	store := storeFunc(func(context.Context, []phishetl.Record) (phishetl.UpsertResult, error) {
		called = true
		return phishetl.UpsertResult{}, nil
	})

	_, err := phishetl.NewReconciler(store, nil).Commit(context.Background(), nil)
	require.ErrorIs(t, err, phishetl.ErrCommit)
	require.False(t, called)
}

func TestReconciler_NeverRetries(t *testing.T) {
	calls := 0
	store := storeFunc(func(context.Context, []phishetl.Record) (phishetl.UpsertResult, error) {
		calls++
		return phishetl.UpsertResult{}, errors.New("timeout")
	})

	_, err := phishetl.NewReconciler(store, nil).Commit(context.Background(), recs("a"))
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
