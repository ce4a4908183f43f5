// Package fetcher issues rate-limited HTTP GETs against the eCFR API.
//
// A Fetcher owns a single rate gate: every outbound request, from any
// goroutine, waits for the gate before it is issued, so the configured delay
// holds between consecutive requests regardless of URL. The fetcher never
// retries; callers decide whether a *domain.FetchError is worth another try.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
)

const (
	defaultUserAgent    = "regcount/1.0 (+https://github.com/jonesrussell/north-cloud)"
	defaultTimeout      = 240 * time.Second
	defaultMaxBodyBytes = 1 << 30 // 1 GiB; the largest titles are a few hundred MB of XML
)

// Observer receives one call per completed request. status is zero when the
// request failed before a response arrived.
type Observer interface {
	ObserveFetch(status int, elapsed time.Duration, err error)
}

// Guard wraps each request, e.g. with a circuit breaker.
type Guard interface {
	Execute(ctx context.Context, fn func() error) error
}

// Config configures a Fetcher.
type Config struct {
	// Delay is the minimum spacing between consecutive requests. Zero disables the gate.
	Delay time.Duration
	// Timeout is used when Fetch is called with a non-positive timeout.
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

// WithDefaults returns a copy of the config with default values applied for zero-value fields.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	return c
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	cfg      Config
	log      logger.Logger
	observer Observer
	guard    Guard
}

// Option configures optional Fetcher collaborators.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithObserver attaches a request observer (metrics).
func WithObserver(o Observer) Option {
	return func(f *Fetcher) { f.observer = o }
}

// WithGuard wraps every request in the given guard.
func WithGuard(g Guard) Option {
	return func(f *Fetcher) { f.guard = g }
}

// New creates a Fetcher.
func New(cfg Config, log logger.Logger, opts ...Option) *Fetcher {
	cfg = cfg.WithDefaults()

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	f := &Fetcher{
		client:  NewHTTPClient(ClientConfig{}),
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		log:     log.With(logger.Component("fetcher")),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Delay returns the configured spacing between requests.
func (f *Fetcher) Delay() time.Duration {
	return f.cfg.Delay
}

// Fetch GETs url and returns the body. A non-positive timeout uses the
// configured default. Failures are *domain.FetchError unless the caller's
// context ended while waiting for the rate gate.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate gate: %w", err)
	}

	var body []byte
	do := func() error {
		var err error
		body, err = f.do(ctx, url, timeout)
		return err
	}

	var err error
	if f.guard != nil {
		err = f.guard.Execute(ctx, do)
	} else {
		err = do()
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) do(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		fetchErr := domain.NewTransportError(url, err)
		f.observe(0, start, fetchErr)
		f.log.Debug("request failed",
			logger.String("url", url),
			logger.Bool("retryable", fetchErr.Retryable),
			logger.Error(err),
		)
		return nil, fetchErr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		fetchErr := domain.NewStatusError(url, resp.StatusCode)
		f.observe(resp.StatusCode, start, fetchErr)
		f.log.Debug("non-success status",
			logger.String("url", url),
			logger.Int("status", resp.StatusCode),
			logger.Bool("retryable", fetchErr.Retryable),
		)
		return nil, fetchErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		fetchErr := domain.NewTransportError(url, fmt.Errorf("read response body: %w", err))
		f.observe(resp.StatusCode, start, fetchErr)
		return nil, fetchErr
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		// a truncated document would parse into a wrong count
		fetchErr := &domain.FetchError{
			URL: url,
			Err: fmt.Errorf("%w: limit %d bytes", domain.ErrBodyTooLarge, f.cfg.MaxBodyBytes),
		}
		f.observe(resp.StatusCode, start, fetchErr)
		f.log.Warn("response body exceeds limit",
			logger.String("url", url),
			logger.Int64("limit", f.cfg.MaxBodyBytes),
		)
		return nil, fetchErr
	}

	f.observe(resp.StatusCode, start, nil)
	f.log.Debug("fetched",
		logger.String("url", url),
		logger.Int("bytes", len(body)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return body, nil
}

func (f *Fetcher) observe(status int, start time.Time, err error) {
	if f.observer != nil {
		f.observer.ObserveFetch(status, time.Since(start), err)
	}
}
