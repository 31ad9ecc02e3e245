package mongostore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28/store/mongostore"
	"github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28/store/storetest"
)

// Set PHISHETL_TEST_MONGO_URI to run against a live server, for example
// mongodb://localhost:27017.
func testURI(t *testing.T) string {
	t.Helper()
	uri := os.Getenv("PHISHETL_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PHISHETL_TEST_MONGO_URI not set")
	}
	return uri
}

func TestStore_Conformance(t *testing.T) {
	uri := testURI(t)

	storetest.Run(t, func(t *testing.T) storetest.Store {
		coll := "phishetl_test_" + uuid.NewString()[:8]
		s, err := mongostore.Connect(t.Context(), uri, "phishetl_test", coll)
		require.NoError(t, err)
		t.Cleanup(func() {
			ctx := context.Background()
			_ = s.Drop(ctx)
			_ = s.Close(ctx)
		})
		require.NoError(t, s.EnsureSchema(t.Context()))
		return s
	})
}

func TestConnect_Unreachable(t *testing.T) {
	testURI(t)

	saved := mongostore.ServerSelectionTimeout
	mongostore.ServerSelectionTimeout = 200 * time.Millisecond
	t.Cleanup(func() { mongostore.ServerSelectionTimeout = saved })

	_, err := mongostore.Connect(t.Context(), "mongodb://127.0.0.1:1/?connectTimeoutMS=100", "", "")
	require.Error(t, err)
}
