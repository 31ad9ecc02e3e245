package phishetl

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Default fetch settings.
const (
	DefaultRetries      = 3
	DefaultBackoffUnit  = 5 * time.Second
	DefaultFetchTimeout = 30 * time.Second
)

// NewHTTPClient returns a client suited to long streaming downloads: timeout
// bounds connecting and waiting for response headers, not reading the body.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{Transport: tr}
}

// Fetcher is the HTTP Source. It GETs a delimited text feed whose first line
// names the columns.
//
// Opening the connection is retried: a transport error, a timeout or a
// non-2xx status abandons the attempt, and after attempt n the fetcher waits
// n × backoff before trying again (linear, no wait after the last attempt).
// Once a response body is streaming nothing is retried.
type Fetcher struct {
	url       string
	client    *http.Client
	retries   int
	backoff   time.Duration
	userAgent string
	logger    *slog.Logger
	onAttempt func(attempt int, err error)
	sleep     func(ctx context.Context, d time.Duration) error
}

var _ Source = (*Fetcher)(nil)

// NewFetcher returns a Fetcher for url with DefaultRetries and
// DefaultBackoffUnit.
func NewFetcher(url string) *Fetcher {
	return &Fetcher{
		url:     url,
		retries: DefaultRetries,
		backoff: DefaultBackoffUnit,
		sleep:   sleepContext,
	}
}

// WithClient overrides the HTTP client. Defaults to NewHTTPClient(DefaultFetchTimeout).
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	if c != nil {
		f.client = c
	}
	return f
}

// WithRetries sets the total number of connection attempts. Values less than 1
// are ignored.
func (f *Fetcher) WithRetries(n int) *Fetcher {
	if n >= 1 {
		f.retries = n
	}
	return f
}

// WithBackoff sets the linear backoff unit. Negative values are ignored.
func (f *Fetcher) WithBackoff(d time.Duration) *Fetcher {
	if d >= 0 {
		f.backoff = d
	}
	return f
}

// WithUserAgent sets the User-Agent request header.
func (f *Fetcher) WithUserAgent(ua string) *Fetcher {
	f.userAgent = ua
	return f
}

// WithLogger sets the logger for attempt failures. Defaults to slog.Default().
func (f *Fetcher) WithLogger(l *slog.Logger) *Fetcher {
	f.logger = l
	return f
}

// WithAttemptHook registers a callback invoked after every connection
// attempt; err is nil for the successful one.
func (f *Fetcher) WithAttemptHook(fn func(attempt int, err error)) *Fetcher {
	f.onAttempt = fn
	return f
}

// WithSleep replaces the backoff wait. Intended for tests.
func (f *Fetcher) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Fetcher {
	if fn != nil {
		f.sleep = fn
	}
	return f
}

// Open connects to the feed and reads its header. It fails with
// ErrSourceUnavailable once every attempt has failed, with ErrStreamRead if the
// header cannot be read, and with ErrFeedSchema if the header lacks phish_id
// or url. An empty body opens as a feed with no rows.
func (f *Fetcher) Open(ctx context.Context) (Stream, error) {
	logger := f.logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= f.retries; attempt++ {
		body, err := f.connect(ctx)
		if f.onAttempt != nil {
			f.onAttempt(attempt, err)
		}
		if err == nil {
			stream, err := newFeed(body)
			if err != nil {
				return nil, err
			}
			return stream, nil
		}
		lastErr = err
		logger.WarnContext(ctx, "fetch attempt failed", "attempt", attempt, "of", f.retries, "error", err)

		if ctx.Err() != nil {
			break
		}
		if attempt < f.retries {
			wait := f.backoff * time.Duration(attempt)
			logger.DebugContext(ctx, "retrying fetch", "wait", wait)
			if err := f.sleep(ctx, wait); err != nil {
				lastErr = err
				break
			}
		}
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, f.url, lastErr)
}

// connect performs one attempt and returns the response body on a 2xx status.
func (f *Fetcher) connect(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")

	client := f.client
	if client == nil {
		client = NewHTTPClient(DefaultFetchTimeout)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// feed is a Stream over an open response body.
type feed struct {
	body   io.ReadCloser
	reader *csv.Reader
	header *Header
	used   bool
}

// NewStream reads the header of a delimited feed from r and returns a Stream
// over its remaining lines. It is what Fetcher.Open uses once connected, and
// is exported for feeds that arrive by other means (files, stdin).
func NewStream(r io.Reader) (Stream, error) {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	stream, err := newFeed(rc)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func newFeed(body io.ReadCloser) (*feed, error) {
	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	// A quote inside an unquoted field is kept as a literal character.
	reader.LazyQuotes = true

	cols, err := reader.Read()
	if errors.Is(err, io.EOF) {
		// An empty body is an empty feed.
		return &feed{body: body, reader: reader, header: NewHeader(nil)}, nil
	}
	if err != nil {
		_ = body.Close()
		return nil, fmt.Errorf("%w: header: %w", ErrStreamRead, err)
	}
	header := NewHeader(cols)
	if missing := header.Missing(ColumnPhishID, ColumnURL); len(missing) > 0 {
		_ = body.Close()
		return nil, fmt.Errorf("%w: header lacks required column(s) %v", ErrFeedSchema, missing)
	}
	return &feed{body: body, reader: reader, header: header}, nil
}

// Rows yields one Row per line after the header. A read failure is yielded
// once, wrapped in ErrStreamRead, and ends the sequence. Rows may only be
// ranged over once; later calls yield nothing.
func (f *feed) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		if f.used {
			return
		}
		f.used = true
		for {
			values, err := f.reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Row{}, fmt.Errorf("%w: %w", ErrStreamRead, err))
				return
			}
			line, _ := f.reader.FieldPos(0)
			if !yield(f.header.Row(line, values), nil) {
				return
			}
		}
	}
}

func (f *feed) Close() error { return f.body.Close() }
