// Command phishetl loads the PhishTank feed into a store keyed by phish_id.
//
//	phishetl [-config f] [-max-rows n] [-batch-size n] [-max-batch-bytes n]
//	         [-retries n] [-backoff d] [-store driver] [-dsn s]
//	         [-once] [-interval d] [-commit-ahead]
//
// The run summary is printed to stdout as JSON; logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	phishetl "github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28"
	"github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28/internal/config"
	"github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28/internal/logging"
	"github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28/internal/metrics"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitAborted = 1 // nothing was ingested
	exitConfig  = 2
	exitPartial = 3 // records were written before the run aborted
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("phishetl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath     = fs.String("config", "", "path to YAML config (optional)")
		maxRows     = fs.Int("max-rows", 0, "stop after this many rows, 0 = whole feed")
		batchSize   = fs.Int("batch-size", 0, "records per commit")
		batchBytes  = fs.Int("max-batch-bytes", 0, "approximate size limit per commit, 0 = none")
		retries     = fs.Int("retries", 0, "fetch attempts before giving up")
		backoff     = fs.Duration("backoff", 0, "linear fetch backoff unit")
		driver      = fs.String("store", "", "store driver: mongo, postgres or sqlite")
		dsn         = fs.String("dsn", "", "store URI, DSN or sqlite path")
		once        = fs.Bool("once", false, "run a single ingest then exit, even if an interval is configured")
		interval    = fs.Duration("interval", 0, "re-run on this interval until interrupted")
		commitAhead = fs.Bool("commit-ahead", false, "fetch the next batch while committing the previous one")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(stderr, "phishetl: %v\n", err)
		return exitConfig
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "phishetl: load config: %v\n", err)
		return exitConfig
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "max-rows":
			cfg.Run.MaxRows = *maxRows
		case "batch-size":
			cfg.Run.BatchSize = *batchSize
		case "max-batch-bytes":
			cfg.Run.MaxBatchBytes = *batchBytes
		case "retries":
			cfg.Source.Retries = *retries
		case "backoff":
			cfg.Source.Backoff = *backoff
		case "store":
			cfg.Store.Driver = *driver
		case "dsn":
			cfg.Store.URI = *dsn
		case "interval":
			cfg.Run.Interval = *interval
		case "commit-ahead":
			cfg.Run.CommitAhead = *commitAhead
		}
	})
	if *once {
		cfg.Run.Interval = 0
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "phishetl: invalid config: %v\n", err)
		return exitConfig
	}

	logger := logging.InitLogger(stderr, cfg.Logging.Format, cfg.Logging.Level)
	logger.Info("phishetl starting", "version", Version, "store", cfg.Store.Driver, "interval", cfg.Run.Interval)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Error("store unavailable", "driver", cfg.Store.Driver, "error", err)
		return exitAborted
	}
	defer func() { _ = store.Close() }()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("provision store", "error", err)
		return exitAborted
	}

	recorder := metrics.NewRecorder(true)
	fetcher := phishetl.NewFetcher(cfg.Source.URL).
		WithClient(phishetl.NewHTTPClient(cfg.Source.Timeout)).
		WithRetries(cfg.Source.Retries).
		WithBackoff(cfg.Source.Backoff).
		WithUserAgent(cfg.Source.UserAgent).
		WithLogger(logger).
		WithAttemptHook(recorder.FetchAttempt)

	pipeline := phishetl.New(fetcher, store).
		WithMaxRows(cfg.Run.MaxRows).
		WithBatchSize(cfg.Run.BatchSize).
		WithLogger(logger).
		WithHooks(&runLog{logger: logger}, recorder)
	if n := cfg.Run.MaxBatchBytes; n > 0 {
		pipeline.WithBatcher(phishetl.CombineBatchers(
			phishetl.SizeBatcher[phishetl.Record](cfg.Run.BatchSize),
			phishetl.WeightedBatcher(phishetl.RecordWeight, n),
		))
	}
	if cfg.Run.CommitAhead {
		pipeline.WithCommitAhead()
	}
	if cfg.Run.CreditPartial {
		pipeline.WithPartialCredit()
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	group, serveCtx := errgroup.WithContext(serveCtx)
	if addr := cfg.Metrics.ListenAddress; addr != "" {
		group.Go(func() error {
			logger.Info("serving metrics", "addr", addr)
			return recorder.Serve(serveCtx, addr)
		})
	}
	defer func() {
		stopServe()
		if err := group.Wait(); err != nil {
			logger.Error("metrics server", "error", err)
		}
	}()

	ingest := &ingester{
		pipeline: pipeline,
		store:    store,
		recorder: recorder,
		metrics:  cfg.Metrics,
		logger:   logger,
		out:      stdout,
	}

	code := ingest.once(ctx)
	if cfg.Run.Interval <= 0 {
		return code
	}

	ticker := time.NewTicker(cfg.Run.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping", "cause", context.Cause(ctx))
			return exitOK
		case <-serveCtx.Done():
			if ctx.Err() != nil {
				logger.Info("stopping", "cause", context.Cause(ctx))
				return exitOK
			}
			// The metrics server failed; the deferred Wait reports why.
			return exitAborted
		case <-ticker.C:
			ingest.once(ctx)
		}
	}
}

// ingester performs one run and reports it.
type ingester struct {
	pipeline *phishetl.Pipeline
	store    provisionedStore
	recorder *metrics.Recorder
	metrics  config.MetricsConfig
	logger   *slog.Logger
	out      io.Writer
}

func (in *ingester) once(ctx context.Context) int {
	if err := in.store.Ping(ctx); err != nil {
		in.logger.Error("store unreachable", "error", err)
		return exitAborted
	}

	summary, err := in.pipeline.Run(ctx)

	if gw := in.metrics.PushGateway; gw != "" {
		if perr := in.recorder.Push(context.WithoutCancel(ctx), gw, in.metrics.Job); perr != nil {
			in.logger.Warn("push metrics", "gateway", gw, "error", perr)
		}
	}

	if err != nil {
		return exitCode(err)
	}
	if err := json.NewEncoder(in.out).Encode(summary); err != nil {
		in.logger.Error("write summary", "error", err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch metrics.Result(err) {
	case metrics.ResultSuccess:
		return exitOK
	case metrics.ResultPartial:
		return exitPartial
	default:
		return exitAborted
	}
}

// runLog reports progress and the end of every run.
type runLog struct {
	logger *slog.Logger
}

var (
	_ phishetl.ProgressReporter = (*runLog)(nil)
	_ phishetl.Stopper          = (*runLog)(nil)
)

func (h *runLog) ReportInterval() int { return 0 } // use the pipeline default

func (h *runLog) OnProgress(ctx context.Context, s *phishetl.Summary) {
	h.logger.InfoContext(ctx, "progress", "summary", s)
}

func (h *runLog) Stop(ctx context.Context, s *phishetl.Summary, err error) {
	var abort *phishetl.AbortError
	switch {
	case errors.As(err, &abort) && abort.Ingested():
		h.logger.ErrorContext(ctx, "ingest failed after partial commit",
			"stage", abort.Stage,
			"committed_batches", abort.CommittedBatches,
			"committed_records", abort.CommittedRecords,
			"error", err,
		)
	case err != nil:
		h.logger.ErrorContext(ctx, "ingest failed, nothing ingested", "error", err)
	default:
		h.logger.InfoContext(ctx, "ingest complete", "summary", s)
	}
}
