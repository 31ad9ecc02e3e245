package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28/store/sqlitestore"
)

const feedCSV = `phish_id,url,phish_detail_url,submission_time,verified,verification_time,online,target
101,http://paypal.example.login.test/,http://www.phishtank.com/phish_detail.php?phish_id=101,2024-03-09T18:30:00+00:00,yes,2024-03-09T18:41:02+00:00,yes,PayPal
102,http://bank.example.test/verify,http://www.phishtank.com/phish_detail.php?phish_id=102,2024-03-09T18:31:00+00:00,no,,yes,Other
,http://missing-id.example.test/,,2024-03-09T18:32:00+00:00,yes,,yes,Other
103,http://mail.example.test/,http://www.phishtank.com/phish_detail.php?phish_id=103,not-a-date,TRUE,,yes,Other
`

// clearEnv keeps the developer's environment out of the run.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PHISHTANK_URL", "MONGO_URI", "PHISHETL_STORE_DRIVER", "PHISHETL_STORE_DSN",
		"PHISHETL_MAX_ROWS", "PHISHETL_BATCH_SIZE", "PHISHETL_LOG_FORMAT",
		"PHISHETL_LOG_LEVEL", "PHISHETL_METRICS_ADDR", "PHISHETL_PUSHGATEWAY_URL",
		"PHISHETL_RETRIES", "PHISHETL_BACKOFF", "PHISHETL_MAX_BATCH_BYTES",
	} {
		t.Setenv(k, "")
	}
}

// fastConfig writes a config with no retry backoff.
func fastConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "phishetl.yml")
	body := "source:\n  retries: 2\n  backoff: 0s\n  timeout: 5s\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func decodeSummary(t *testing.T, out string) map[string]any {
	t.Helper()
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary), "stdout: %q", out)
	return summary
}

func TestRun_IngestsThenUpdates(t *testing.T) {
	clearEnv(t)
	srv := feedServer(t, feedCSV)
	t.Setenv("PHISHTANK_URL", srv.URL)
	dbPath := filepath.Join(t.TempDir(), "phish.db")
	args := []string{"-config", fastConfig(t, ""), "-store", "sqlite", "-dsn", dbPath, "-once"}

	first := runCLI(t, args...)
	require.Equal(t, exitOK, first.code, first.stderr)
	summary := decodeSummary(t, first.stdout)
	require.EqualValues(t, 3, summary["inserted"])
	require.EqualValues(t, 0, summary["updated"])
	require.EqualValues(t, 1, summary["skipped"])
	require.EqualValues(t, 4, summary["processed"])
	require.NotEmpty(t, summary["run_id"])

	second := runCLI(t, args...)
	require.Equal(t, exitOK, second.code, second.stderr)
	summary = decodeSummary(t, second.stdout)
	require.EqualValues(t, 0, summary["inserted"])
	require.EqualValues(t, 3, summary["updated"])
	require.NotEqual(t, decodeSummary(t, first.stdout)["run_id"], summary["run_id"])

	store, err := sqlitestore.Open(t.Context(), dbPath, "")
	require.NoError(t, err)
	defer store.Close()
	n, err := store.Count(t.Context())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	rec, err := store.Get(t.Context(), "103")
	require.NoError(t, err)
	require.True(t, rec.Verified)
	require.Nil(t, rec.SubmittedAt)
}

func TestRun_MaxRowsAndBatchSize(t *testing.T) {
	clearEnv(t)
	srv := feedServer(t, feedCSV)
	t.Setenv("PHISHTANK_URL", srv.URL)
	dbPath := filepath.Join(t.TempDir(), "phish.db")

	res := runCLI(t, "-config", fastConfig(t, ""), "-store", "sqlite", "-dsn", dbPath,
		"-max-rows", "2", "-batch-size", "1", "-commit-ahead")
	require.Equal(t, exitOK, res.code, res.stderr)

	summary := decodeSummary(t, res.stdout)
	require.EqualValues(t, 2, summary["processed"])
	require.EqualValues(t, 2, summary["inserted"])
	require.EqualValues(t, 2, summary["batches"])
}

func TestRun_EnvSelectsStore(t *testing.T) {
	clearEnv(t)
	srv := feedServer(t, feedCSV)
	t.Setenv("PHISHTANK_URL", srv.URL)
	t.Setenv("PHISHETL_STORE_DRIVER", "sqlite")
	t.Setenv("PHISHETL_STORE_DSN", filepath.Join(t.TempDir(), "phish.db"))
	t.Setenv("PHISHETL_LOG_FORMAT", "text")

	res := runCLI(t, "-config", fastConfig(t, ""))
	require.Equal(t, exitOK, res.code, res.stderr)
	require.Contains(t, res.stderr, "ingest complete")
}

func TestRun_SourceUnavailable(t *testing.T) {
	clearEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	t.Setenv("PHISHTANK_URL", srv.URL)

	res := runCLI(t, "-config", fastConfig(t, ""), "-store", "sqlite", "-dsn", filepath.Join(t.TempDir(), "phish.db"))
	require.Equal(t, exitAborted, res.code)
	require.Empty(t, res.stdout)
	require.Contains(t, res.stderr, "nothing ingested")
}

func TestRun_PartialIngest(t *testing.T) {
	clearEnv(t)
	// Announce more bytes than are sent so the body ends with an unexpected EOF.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		body := "phish_id,url\n1,http://a.example/\n2,http://b.example/\n"
		w.Header().Set("Content-Length", fmt.Sprint(len(body)+1024))
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()
	t.Setenv("PHISHTANK_URL", srv.URL)

	res := runCLI(t, "-config", fastConfig(t, ""), "-store", "sqlite",
		"-dsn", filepath.Join(t.TempDir(), "phish.db"), "-batch-size", "1")
	require.Equal(t, exitPartial, res.code, res.stderr)
	require.Empty(t, res.stdout)
	require.Contains(t, res.stderr, "partial commit")
}

func TestRun_RetriesAndBackoffFlags(t *testing.T) {
	clearEnv(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	t.Setenv("PHISHTANK_URL", srv.URL)
	cfg := fastConfig(t, "")

	res := runCLI(t, "-config", cfg, "-store", "sqlite", "-dsn", filepath.Join(t.TempDir(), "phish.db"),
		"-retries", "4", "-backoff", "1ms")
	require.Equal(t, exitAborted, res.code)
	require.Equal(t, int32(4), hits.Load())

	hits.Store(0)
	t.Setenv("PHISHETL_RETRIES", "1")
	res = runCLI(t, "-config", cfg, "-store", "sqlite", "-dsn", filepath.Join(t.TempDir(), "phish.db"))
	require.Equal(t, exitAborted, res.code)
	require.Equal(t, int32(1), hits.Load())
}

func TestRun_MaxBatchBytes(t *testing.T) {
	clearEnv(t)
	srv := feedServer(t, feedCSV)
	t.Setenv("PHISHTANK_URL", srv.URL)

	res := runCLI(t, "-config", fastConfig(t, ""), "-store", "sqlite", "-dsn", filepath.Join(t.TempDir(), "phish.db"),
		"-max-batch-bytes", "1")
	require.Equal(t, exitOK, res.code, res.stderr)

	summary := decodeSummary(t, res.stdout)
	require.EqualValues(t, 3, summary["inserted"])
	require.EqualValues(t, 3, summary["batches"], "every record exceeds the limit and is committed alone")
}

func TestRun_IntervalStopsOnCancel(t *testing.T) {
	clearEnv(t)
	srv := feedServer(t, feedCSV)
	t.Setenv("PHISHTANK_URL", srv.URL)
	cfg := fastConfig(t, "metrics:\n  listen_address: 127.0.0.1:0\n")

	args := []string{"-config", cfg, "-store", "sqlite", "-dsn", filepath.Join(t.TempDir(), "phish.db"), "-interval", "1h"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan int, 1)
	go func() {
		var stdout, stderr bytes.Buffer
		done <- run(ctx, args, &stdout, &stderr)
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case code := <-done:
		require.Equal(t, exitOK, code)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{
			name: "missing feed url",
			args: []string{"-store", "sqlite", "-dsn", "phish.db"},
			want: "source.url",
		},
		{
			name: "unknown driver",
			env:  map[string]string{"PHISHTANK_URL": "http://feed.example/"},
			args: []string{"-store", "redis", "-dsn", "x"},
			want: "store.driver",
		},
		{
			name: "bad batch size",
			env:  map[string]string{"PHISHTANK_URL": "http://feed.example/"},
			args: []string{"-store", "sqlite", "-dsn", "phish.db", "-batch-size", "0"},
			want: "run.batch_size",
		},
		{
			name: "unknown flag",
			args: []string{"-verbose"},
			want: "flag provided but not defined",
		},
		{
			name: "missing config file",
			args: []string{"-config", "/nonexistent/phishetl.yml"},
			want: "load config",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			res := runCLI(t, tt.args...)
			require.Equal(t, exitConfig, res.code)
			require.True(t, strings.Contains(res.stderr, tt.want), "stderr: %s", res.stderr)
		})
	}
}

func TestRun_StoreUnavailable(t *testing.T) {
	clearEnv(t)
	t.Setenv("PHISHTANK_URL", "http://feed.example/")

	res := runCLI(t, "-store", "sqlite", "-dsn", filepath.Join(t.TempDir(), "missing-dir", "phish.db"))
	require.Equal(t, exitAborted, res.code)
	require.Contains(t, res.stderr, "store unavailable")
}

func TestExitCode(t *testing.T) {
	require.Equal(t, exitOK, exitCode(nil))
}
