// Package metrics exposes pipeline activity as Prometheus metrics. A Recorder
// is registered on the pipeline as a hook and on the fetcher as its attempt
// callback.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	phishetl "github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28"
)

const namespace = "phishetl"

// Run results.
const (
	ResultSuccess = "success"
	ResultPartial = "partial" // aborted after committing at least one batch
	ResultFailed  = "failed"  // aborted before anything was committed
)

// Recorder owns a private registry so tests and pushes see only its metrics.
type Recorder struct {
	reg *prometheus.Registry
	now func() time.Time

	records       *prometheus.CounterVec
	rows          prometheus.Counter
	batches       *prometheus.CounterVec
	runs          *prometheus.CounterVec
	fetchAttempts *prometheus.CounterVec
	runDuration   prometheus.Histogram
	lastSuccess   prometheus.Gauge

	mu      sync.Mutex
	started time.Time
}

var (
	_ phishetl.Starter       = (*Recorder)(nil)
	_ phishetl.Stopper       = (*Recorder)(nil)
	_ phishetl.BatchObserver = (*Recorder)(nil)
)

// NewRecorder registers the phishetl metrics on a new registry. With
// processMetrics the Go runtime and process collectors are added too.
func NewRecorder(processMetrics bool) *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		now: time.Now,
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records by outcome: inserted, updated, skipped or failed",
		}, []string{"outcome"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_processed_total",
			Help:      "Feed rows processed, skipped rows included",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Committed batches by status",
		}, []string{"status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Ingest runs by result",
		}, []string{"result"}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Feed connection attempts by result",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of an ingest run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34m
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
	}
	r.reg.MustRegister(r.records, r.rows, r.batches, r.runs, r.fetchAttempts, r.runDuration, r.lastSuccess)
	if processMetrics {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// WithClock replaces the clock used for durations and timestamps.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	if now != nil {
		r.now = now
	}
	return r
}

// Registry returns the registry the metrics live in.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) Start(ctx context.Context) context.Context {
	r.mu.Lock()
	r.started = r.now()
	r.mu.Unlock()
	return ctx
}

func (r *Recorder) OnBatch(_ context.Context, o phishetl.BatchOutcome) {
	r.batches.WithLabelValues(string(o.Status)).Inc()
}

// Stop folds the run's totals into the counters. Summary counts are recorded
// even for an aborted run: they describe what reached the store.
func (r *Recorder) Stop(_ context.Context, s *phishetl.Summary, err error) {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()

	end := r.now()
	if !started.IsZero() {
		r.runDuration.Observe(end.Sub(started).Seconds())
	}

	if s != nil {
		r.records.WithLabelValues("inserted").Add(float64(s.Inserted()))
		r.records.WithLabelValues("updated").Add(float64(s.Updated()))
		r.records.WithLabelValues("skipped").Add(float64(s.Skipped()))
		r.records.WithLabelValues("failed").Add(float64(s.FailedRecords()))
		r.rows.Add(float64(s.Processed()))
	}

	result := Result(err)
	r.runs.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		r.lastSuccess.Set(float64(end.Unix()))
	}
}

// FetchAttempt is the phishetl.Fetcher attempt callback.
func (r *Recorder) FetchAttempt(_ int, err error) {
	if err != nil {
		r.fetchAttempts.WithLabelValues("error").Inc()
		return
	}
	r.fetchAttempts.WithLabelValues("ok").Inc()
}

// Result classifies the error returned by Pipeline.Run.
func Result(err error) string {
	if err == nil {
		return ResultSuccess
	}
	var abort *phishetl.AbortError
	if errors.As(err, &abort) && abort.Ingested() {
		return ResultPartial
	}
	return ResultFailed
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Serve exposes /metrics and /healthz on addr until ctx is done, then shuts
// the server down gracefully.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Push sends the current values to a Prometheus Pushgateway, replacing the
// job's previous group.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	return push.New(gatewayURL, job).Gatherer(r.reg).PushContext(ctx)
}
