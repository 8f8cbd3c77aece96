// Package httpclient provides an HTTP client with bounded retries for
// transient upstream failures. Rate limiting (429) and server-side errors
// (5xx) are retried with exponential backoff; everything else is returned
// to the caller on the first attempt.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/alumnium-hq/alumnium/pkg/logger"
)

// RetryStrategy describes how a response status should be retried.
type RetryStrategy int

const (
	// NoRetry returns the response immediately.
	NoRetry RetryStrategy = iota
	// BackoffRetry retries with exponential backoff.
	BackoffRetry
	// RateLimitRetry honors the Retry-After header, falling back to
	// exponential backoff when the header is absent.
	RateLimitRetry
)

// StrategyFunc picks a retry strategy for a response status code.
type StrategyFunc func(statusCode int) RetryStrategy

// DefaultRetryStrategy retries throttling and server-side failures only.
// Client errors (auth, validation, schema mismatch) propagate immediately.
func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return RateLimitRetry
	case statusCode >= 500 && statusCode <= 504:
		return BackoffRetry
	default:
		return NoRetry
	}
}

// Client wraps http.Client with retry behavior.
type Client struct {
	httpClient    *http.Client
	maxAttempts   int
	baseDelay     time.Duration
	backoffFactor float64
	strategy      StrategyFunc
	logger        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxAttempts bounds the total number of attempts (first try included).
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithRetryStrategy overrides the status code classification.
func WithRetryStrategy(fn StrategyFunc) Option {
	return func(c *Client) { c.strategy = fn }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New builds a Client. Defaults: 8 attempts, 1s base delay, factor 2.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: 120 * time.Second},
		maxAttempts:   8,
		baseDelay:     time.Second,
		backoffFactor: 2,
		strategy:      DefaultRetryStrategy,
		logger:        logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes the request, retrying per the configured strategy. The request
// must carry GetBody (true for requests built with http.NewRequest and a
// byte buffer) so the body can be replayed across attempts. Context
// cancellation aborts the retry loop between attempts.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	delay := c.baseDelay
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("recreating request body: %w", err)
			}
			req.Body = body
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			lastErr = err
			c.logger.Debug("request failed, retrying",
				"attempt", attempt, "url", req.URL.String(), "error", err)
			if waitErr := c.wait(req.Context(), delay); waitErr != nil {
				return nil, waitErr
			}
			delay = c.nextDelay(delay)
			continue
		}

		strategy := c.strategy(resp.StatusCode)
		if strategy == NoRetry || attempt == c.maxAttempts {
			return resp, nil
		}

		retryDelay := delay
		if strategy == RateLimitRetry {
			if after := parseRetryAfter(resp.Header.Get("Retry-After")); after > 0 {
				retryDelay = after
			}
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		c.logger.Debug("retrying after transient status",
			"attempt", attempt, "status", resp.StatusCode, "delay", retryDelay)
		if waitErr := c.wait(req.Context(), retryDelay); waitErr != nil {
			return nil, waitErr
		}
		delay = c.nextDelay(delay)
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) nextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * c.backoffFactor)
	// Up to 10% jitter keeps concurrent retries from synchronizing.
	jitter := time.Duration(rand.Int63n(int64(next)/10 + 1))
	return next + jitter
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
