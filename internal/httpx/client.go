// Package httpx is the shared HTTP client for the LM, TTS and ASR
// providers and the model downloader: bounded retries with backoff, a
// simple circuit breaker per client, and transparent gzip/brotli
// response decompression.
package httpx

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
)

// Config tunes one provider client.
type Config struct {
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	// Circuit breaker: after FailureThreshold consecutive failures
	// requests short-circuit until RecoveryTimeout elapses.
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// DefaultConfig returns sensible provider defaults. The 600 s timeout
// accommodates long LM generations.
func DefaultConfig() Config {
	return Config{
		Timeout:          600 * time.Second,
		MaxRetries:       3,
		RetryDelay:       500 * time.Millisecond,
		RetryMaxDelay:    10 * time.Second,
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Client wraps http.Client with retry and breaker behavior.
type Client struct {
	http   *http.Client
	config Config

	mu          sync.Mutex
	failures    int
	openedAt    time.Time
	breakerOpen bool
}

// New creates a client from config. Zero values fall back to the
// defaults.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = def.RetryMaxDelay
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}
}

// Do executes the request with retries. The request must carry a
// context; bodies needing replay must set req.GetBody (true for
// bytes.Reader/strings.Reader bodies built via http.NewRequest).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if !c.allow() {
		return nil, fmt.Errorf("circuit breaker open")
	}

	req.Header.Set("Accept-Encoding", "gzip, br")

	var lastErr error
	delay := c.config.RetryDelay
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.config.RetryMaxDelay {
				delay = c.config.RetryMaxDelay
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("rewinding request body: %w", err)
				}
				req.Body = body
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.recordFailure()
			continue
		}
		if isRetryableStatus(resp.StatusCode) {
			resp.Body.Close()
			lastErr = fmt.Errorf("server returned %s", resp.Status)
			c.recordFailure()
			continue
		}

		c.recordSuccess()
		if err := decompress(resp); err != nil {
			resp.Body.Close()
			return nil, err
		}
		return resp, nil
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// Get is a convenience wrapper for context-bound GETs.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func (c *Client) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.breakerOpen {
		return true
	}
	if time.Since(c.openedAt) >= c.config.RecoveryTimeout {
		// half-open: let one attempt through
		c.breakerOpen = false
		c.failures = c.config.FailureThreshold - 1
		return true
	}
	return false
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= c.config.FailureThreshold {
		c.breakerOpen = true
		c.openedAt = time.Now()
	}
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.breakerOpen = false
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// decompress swaps the response body for a decoding reader when the
// server honored our Accept-Encoding.
func decompress(resp *http.Response) error {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("gzip reader: %w", err)
		}
		resp.Body = &compositeCloser{Reader: gz, closers: []io.Closer{gz, resp.Body}}
		resp.Header.Del("Content-Encoding")
	case "br":
		resp.Body = &compositeCloser{Reader: brotli.NewReader(resp.Body), closers: []io.Closer{resp.Body}}
		resp.Header.Del("Content-Encoding")
	}
	return nil
}

type compositeCloser struct {
	io.Reader
	closers []io.Closer
}

func (c *compositeCloser) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
