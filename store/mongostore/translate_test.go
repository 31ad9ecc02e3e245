package mongostore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	phishetl "github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28"
)

func TestTranslate(t *testing.T) {
	batch := []phishetl.Record{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	t.Run("success", func(t *testing.T) {
		res, err := translate(batch, &mongo.BulkWriteResult{UpsertedCount: 2, MatchedCount: 1}, nil)
		require.NoError(t, err)
		require.Equal(t, phishetl.UpsertResult{Inserted: 2, Updated: 1}, res)
	})

	t.Run("write errors become a partial failure", func(t *testing.T) {
		exc := mongo.BulkWriteException{
			WriteErrors: []mongo.BulkWriteError{
				{WriteError: mongo.WriteError{Index: 1, Code: 11000, Message: "E11000 duplicate key"}},
			},
		}
		res, err := translate(batch, &mongo.BulkWriteResult{UpsertedCount: 1, MatchedCount: 1}, exc)

		var bwe *phishetl.BulkWriteError
		require.True(t, errors.As(err, &bwe))
		require.Equal(t, []string{"b"}, bwe.Keys())
		require.Equal(t, 1, bwe.Failures[0].Index)
		require.Equal(t, 1, bwe.Inserted)
		require.Equal(t, 1, bwe.Updated)
		require.Equal(t, phishetl.UpsertResult{Inserted: 1, Updated: 1}, res)
	})

	t.Run("write concern only is fatal", func(t *testing.T) {
		exc := mongo.BulkWriteException{WriteConcernError: &mongo.WriteConcernError{Code: 64, Message: "waiting for replication timed out"}}
		_, err := translate(batch, nil, exc)

		var bwe *phishetl.BulkWriteError
		require.Error(t, err)
		require.False(t, errors.As(err, &bwe))
	})

	t.Run("other errors pass through", func(t *testing.T) {
		boom := errors.New("server selection timeout")
		_, err := translate(batch, nil, boom)
		require.ErrorIs(t, err, boom)
	})

	t.Run("out of range index keeps an empty key", func(t *testing.T) {
		exc := mongo.BulkWriteException{
			WriteErrors: []mongo.BulkWriteError{{WriteError: mongo.WriteError{Index: 9, Code: 2}}},
		}
		_, err := translate(batch, nil, exc)

		var bwe *phishetl.BulkWriteError
		require.True(t, errors.As(err, &bwe))
		require.Equal(t, []string{""}, bwe.Keys())
	})
}
