// Package client is a Go client for the site stats HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sitestats/internal/domain"
	"sitestats/pkg/logger"
)

// Defaults for stats polling
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// APIError is a non-2xx response from the stats API
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("stats api: status %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("stats api: status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed when repeated
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Client calls the stats API
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	logger     *logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets how many times GetStats is retried and the first backoff delay
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
	}
}

// WithLogger sets the logger used for retry warnings
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.logger = log }
}

// New creates a client for the API rooted at baseURL, e.g. "https://blog.example"
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		logger:     logger.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	ErrorType string          `json:"error_type"`
}

// RecordVisit records one page view. It is not retried: a repeated visit is not a no-op.
func (c *Client) RecordVisit(ctx context.Context, isNewSession bool) (*domain.VisitResult, error) {
	body, err := json.Marshal(map[string]bool{"is_new_session": isNewSession})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var result domain.VisitResult
	if err := c.do(ctx, http.MethodPost, "/api/site-stats/visit", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStats fetches the aggregate counters, retrying transient failures with exponential backoff
func (c *Client) GetStats(ctx context.Context) (*domain.StatsSnapshot, error) {
	var stats domain.StatsSnapshot
	err := c.withRetry(ctx, "get_stats", func() error {
		return c.do(ctx, http.MethodPost, "/api/site-stats/stats", nil, &stats)
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetConfig fetches the display configuration
func (c *Client) GetConfig(ctx context.Context) (*domain.DisplayConfig, error) {
	var cfg domain.DisplayConfig
	err := c.withRetry(ctx, "get_config", func() error {
		return c.do(ctx, http.MethodGet, "/api/site-stats/config", nil, &cfg)
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// withRetry runs fn until it succeeds, fails permanently or runs out of retries.
// The n-th retry waits 2^n times the base delay, counting from zero.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseDelay << uint(attempt-1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}

		c.logger.WithError(lastErr).WithFields(map[string]interface{}{
			"op":      op,
			"attempt": attempt + 1,
		}).Warn("Stats request failed")
	}
	return lastErr
}

// permanentError marks failures that no retry can fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &permanentError{err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call stats api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return &permanentError{err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Type: env.ErrorType, Message: env.Error}
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return &permanentError{err: fmt.Errorf("failed to parse response data: %w", err)}
	}
	return nil
}
