// Package httpclient is the JSON-over-HTTP helper shared by the remote model
// clients. It retries transport errors, 429 and 5xx responses with
// exponential backoff and honours Retry-After.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// StatusError is returned for a non-retryable or exhausted HTTP failure.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return e.Status
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Body)
}

// Client posts JSON bodies and returns raw response payloads.
type Client struct {
	HTTP       *http.Client
	MaxRetries int
	// Header is added to every request.
	Header http.Header
	// BaseDelay is the first backoff step; zero means 200ms.
	BaseDelay time.Duration
}

// New returns a client with the given per-request timeout and retry budget.
func New(timeout time.Duration, maxRetries int) *Client {
	return &Client{
		HTTP:       &http.Client{Timeout: timeout},
		MaxRetries: maxRetries,
		Header:     make(http.Header),
	}
}

// PostJSON marshals body, posts it to url and returns the response payload.
func (c *Client) PostJSON(ctx context.Context, url string, body any) ([]byte, error) {
	return c.Do(ctx, http.MethodPost, url, body)
}

// Do sends a JSON request with the given method. A nil body sends no payload.
func (c *Client) Do(ctx context.Context, method, url string, body any) ([]byte, error) {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.retryDelay(attempt-1, lastErr)); err != nil {
				return nil, err
			}
		}

		var reader io.Reader
		if data != nil {
			reader = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, vs := range c.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &retryAfterError{
				StatusError: StatusError{Code: resp.StatusCode, Status: resp.Status, Body: truncate(payload)},
				after:       parseRetryAfter(resp.Header.Get("Retry-After")),
			}
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: truncate(payload)}
		}
		return payload, nil
	}
	if ra, ok := lastErr.(*retryAfterError); ok {
		return nil, &ra.StatusError
	}
	return nil, lastErr
}

type retryAfterError struct {
	StatusError
	after time.Duration
}

func (c *Client) retryDelay(attempt int, lastErr error) time.Duration {
	if ra, ok := lastErr.(*retryAfterError); ok && ra.after > 0 {
		return ra.after
	}
	base := c.BaseDelay
	if base == 0 {
		base = 200 * time.Millisecond
	}
	return RetryDelay(base, attempt)
}

// RetryDelay is exponential backoff from base, capped at 5s.
func RetryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
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

func truncate(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
