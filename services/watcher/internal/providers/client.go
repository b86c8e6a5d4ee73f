// Package providers fetches current readings from the PurpleAir, IQAir and
// WAQI APIs.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	initialDelay = time.Second
	maxDelay     = 10 * time.Second
)

// ErrMaxRetries is returned once every attempt hit a rate limit or a network error.
var ErrMaxRetries = errors.New("max retries reached")

// StatusError is a non-2xx response that is not worth retrying.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client issues GET requests, retrying rate limits and network errors with a
// doubling delay.
type Client struct {
	HTTP        *http.Client
	MaxAttempts int
	// Sleep waits between attempts; nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewClient returns a client with a per-request timeout.
func NewClient(timeout time.Duration, maxAttempts int) *Client {
	return &Client{HTTP: &http.Client{Timeout: timeout}, MaxAttempts: maxAttempts}
}

// GetJSON fetches url and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, v any) error {
	body, err := c.get(ctx, url, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	delay := initialDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		body, status, err := c.once(ctx, url, header)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("network error: %v | retrying in %s (attempt %d/%d)", err, delay, attempt, attempts)
		case status == http.StatusTooManyRequests:
			log.Printf("rate limited: waiting %s (attempt %d/%d)", delay, attempt, attempts)
		case status < 200 || status >= 300:
			return nil, &StatusError{Code: status, Body: truncate(string(body), 200)}
		default:
			return body, nil
		}

		if attempt == attempts {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay = min(delay*2, maxDelay)
	}
	return nil, fmt.Errorf("%w for %s", ErrMaxRetries, redact(url))
}

func (c *Client) once(ctx context.Context, url string, header http.Header) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// redact drops the query string, which carries API keys for some providers.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
