// Package config loads the phishetl process configuration from an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type SourceConfig struct {
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"` // connect + response headers, per attempt
	Retries   int           `yaml:"retries"` // total attempts
	Backoff   time.Duration `yaml:"backoff"` // linear unit: attempt n waits n × backoff
	UserAgent string        `yaml:"user_agent"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver"`     // mongo | postgres | sqlite
	URI        string `yaml:"uri"`        // mongo URI, postgres DSN or sqlite path
	Database   string `yaml:"database"`   // mongo only
	Collection string `yaml:"collection"` // mongo only
	Table      string `yaml:"table"`      // postgres and sqlite
}

type RunConfig struct {
	MaxRows       int           `yaml:"max_rows"`        // 0 = unlimited
	BatchSize     int           `yaml:"batch_size"`
	MaxBatchBytes int           `yaml:"max_batch_bytes"` // 0 = no weight limit per commit
	CommitAhead   bool          `yaml:"commit_ahead"`
	CreditPartial bool          `yaml:"credit_partial"`
	Interval      time.Duration `yaml:"interval"` // 0 = run once
}

type LoggingConfig struct {
	Format string `yaml:"format"` // json | text
	Level  string `yaml:"level"`  // debug | info | warn | error
}

type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address"` // e.g. :9108; empty disables /metrics
	PushGateway   string `yaml:"push_gateway"`   // e.g. http://pushgateway:9091
	Job           string `yaml:"job"`
}

type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Store   StoreConfig   `yaml:"store"`
	Run     RunConfig     `yaml:"run"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Source: SourceConfig{
			Timeout:   30 * time.Second,
			Retries:   3,
			Backoff:   5 * time.Second,
			UserAgent: "phishetl/1.0",
		},
		Store: StoreConfig{
			Driver:     DriverMongo,
			Database:   "etl_db",
			Collection: "phishtank_raw",
			Table:      "phishtank_raw",
		},
		Run: RunConfig{
			BatchSize: 1000,
		},
		Logging: LoggingConfig{
			Format: "json",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Job: "phishetl",
		},
	}
}

// LoadDotEnv loads variables from the given files (".env" when none) into the
// environment. Missing files are ignored and variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load returns the defaults, overlaid with the YAML file at path (skipped when
// path is empty) and then the environment. The result is not validated.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("PHISHTANK_URL", &c.Source.URL)
	str("PHISHETL_STORE_DRIVER", &c.Store.Driver)
	str("MONGO_URI", &c.Store.URI)
	// The generic DSN wins over the mongo-specific variable.
	str("PHISHETL_STORE_DSN", &c.Store.URI)
	str("PHISHETL_LOG_FORMAT", &c.Logging.Format)
	str("PHISHETL_LOG_LEVEL", &c.Logging.Level)
	str("PHISHETL_METRICS_ADDR", &c.Metrics.ListenAddress)
	str("PHISHETL_PUSHGATEWAY_URL", &c.Metrics.PushGateway)

	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	return errors.Join(
		num("PHISHETL_RETRIES", &c.Source.Retries),
		dur("PHISHETL_BACKOFF", &c.Source.Backoff),
		num("PHISHETL_MAX_ROWS", &c.Run.MaxRows),
		num("PHISHETL_BATCH_SIZE", &c.Run.BatchSize),
		num("PHISHETL_MAX_BATCH_BYTES", &c.Run.MaxBatchBytes),
	)
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Source.URL) == "" {
		errs = append(errs, errors.New("source.url is required (PHISHTANK_URL)"))
	}
	if c.Source.Retries < 1 {
		errs = append(errs, fmt.Errorf("source.retries must be at least 1, got %d", c.Source.Retries))
	}
	if c.Source.Backoff < 0 {
		errs = append(errs, fmt.Errorf("source.backoff must not be negative, got %s", c.Source.Backoff))
	}
	switch c.Store.Driver {
	case DriverMongo, DriverPostgres, DriverSQLite:
		if strings.TrimSpace(c.Store.URI) == "" {
			errs = append(errs, fmt.Errorf("store.uri is required for driver %q", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of mongo, postgres, sqlite", c.Store.Driver))
	}
	if c.Run.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("run.batch_size must be positive, got %d", c.Run.BatchSize))
	}
	if c.Run.MaxBatchBytes < 0 {
		errs = append(errs, fmt.Errorf("run.max_batch_bytes must not be negative, got %d", c.Run.MaxBatchBytes))
	}
	if c.Run.MaxRows < 0 {
		errs = append(errs, fmt.Errorf("run.max_rows must not be negative, got %d", c.Run.MaxRows))
	}
	if c.Run.Interval < 0 {
		errs = append(errs, fmt.Errorf("run.interval must not be negative, got %s", c.Run.Interval))
	}
	return errors.Join(errs...)
}
