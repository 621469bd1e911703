// Package enrich talks to a libpostal-style address parser over HTTP
// (GET /parse?text=...) and turns its answer into labeled components.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/addrnorm/internal/metrics"
)

// Defaults used when Config fields are zero.
const (
	DefaultBaseURL = "http://localhost:8080"
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 1
)

// ErrUnavailable matches every *UnavailableError via errors.Is.
var ErrUnavailable = errors.New("enrichment unavailable")

// UnavailableError reports that the parser could not be reached or answered
// badly on every attempt.
type UnavailableError struct {
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("enrichment unavailable after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Outcome is either a successful parse or an unavailable result. The zero
// value is a success with no components.
type Outcome struct {
	components Components
	err        *UnavailableError
}

// Success wraps parsed components.
func Success(c Components) Outcome { return Outcome{components: c} }

// Unavailable wraps a failure.
func Unavailable(err *UnavailableError) Outcome { return Outcome{err: err} }

// Components returns the parsed components and true, or nil and false when
// the parser was unavailable.
func (o Outcome) Components() (Components, bool) {
	if o.err != nil {
		return nil, false
	}
	return o.components, true
}

// Err returns the *UnavailableError, or nil on success.
func (o Outcome) Err() error {
	if o.err == nil {
		return nil
	}
	return o.err
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
	// RatePerSec caps outgoing requests across all callers. Zero disables
	// the limiter.
	RatePerSec float64
	Cache      Cache
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	attempts   int
	backoff    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// NewClient builds a client, filling zero fields with defaults. Negative
// retry counts are treated as zero.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		attempts:   cfg.Retries + 1,
		backoff:    cfg.RetryBackoff,
		httpClient: cfg.HTTPClient,
		cache:      cfg.Cache,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
	}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return c
}

// BaseURL returns the parser endpoint root.
func (c *Client) BaseURL() string { return c.baseURL }

// Parse sends text to the parser. Empty text succeeds with no components
// without a request. Failures are retried up to the configured budget and
// then reported as Unavailable; Parse never returns a Go error.
func (c *Client) Parse(ctx context.Context, text string) Outcome {
	text = strings.TrimSpace(text)
	if text == "" {
		return Success(nil)
	}

	if c.cache != nil {
		if comps, ok := c.cache.Get(ctx, text); ok {
			c.metrics.ObserveCache(true)
			return Success(comps)
		}
		c.metrics.ObserveCache(false)
	}

	start := time.Now()
	var lastErr error
	tried := 0
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 && c.backoff > 0 {
			if err := sleep(ctx, c.backoff); err != nil {
				lastErr = err
				break
			}
		}

		tried++
		comps, err := c.parseOnce(ctx, text)
		if err == nil {
			if c.cache != nil {
				c.cache.Set(ctx, text, comps)
			}
			c.metrics.ObserveEnrich("ok", start)
			return Success(comps)
		}
		lastErr = err
		c.log.Debug("enrichment attempt failed", "attempt", attempt, "error", err)

		if ctx.Err() != nil {
			break
		}
	}

	c.metrics.ObserveEnrich("unavailable", start)
	return Unavailable(&UnavailableError{Attempts: tried, Err: lastErr})
}

func (c *Client) parseOnce(ctx context.Context, text string) (Components, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := c.get(ctx, "/parse", url.Values{"text": {text}})
	if err != nil {
		return nil, err
	}
	return decodeComponents(body)
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// Health sends a single probe query without retries or caching.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.get(ctx, "/parse", url.Values{"text": {"1 Main Street"}})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
