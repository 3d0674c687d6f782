// Package httpclient provides the HTTP client used to reach embedding
// providers: bounded retries on 5xx, typed status errors and W3C trace
// context propagation.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/kart-io/vecstore/pkg/utils/json"
)

// maxErrorBody caps how much of an error response body is kept.
const maxErrorBody = 4 << 10

// StatusError is returned by DoJSON for responses with status >= 400.
type StatusError struct {
	StatusCode int
	Body       string
	// RetryAfter is parsed from the Retry-After header when present.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, e.Body)
}

// RateLimited reports whether the server asked the caller to slow down.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Temporary reports whether the failure is transient.
func (e *StatusError) Temporary() bool {
	return e.RateLimited() || e.StatusCode >= http.StatusInternalServerError
}

// Client is a wrapper around http.Client with additional functionality.
type Client struct {
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewClient creates a new HTTP client wrapper.
// maxRetries applies to transport errors and 5xx responses only.
func NewClient(timeout time.Duration, maxRetries int) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
	}
}

// WithBackoff overrides the linear backoff step between retries.
func (c *Client) WithBackoff(d time.Duration) *Client {
	c.backoff = d
	return c
}

// DoRequest executes an HTTP request with retry logic.
// The request body is buffered so it can be replayed across attempts.
func (c *Client) DoRequest(req *http.Request) (*http.Response, error) {
	c.injectTraceContext(req)

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		_ = req.Body.Close()
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			if resp.StatusCode < http.StatusInternalServerError || i == c.maxRetries {
				return resp, nil
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server error, status code %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		if i < c.maxRetries {
			if err := sleep(req.Context(), time.Duration(i+1)*c.backoff); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// DoJSON executes a JSON request, decodes the response, and ensures the body is closed.
// Responses with status >= 400 are returned as *StatusError.
func (c *Client) DoJSON(req *http.Request, v interface{}) error {
	resp, err := c.DoRequest(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// PostJSON marshals payload, posts it to url and decodes the response into v.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, payload, v interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vals := range header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	return c.DoJSON(req, v)
}

// injectTraceContext 将 W3C Trace Context 头注入到 HTTP 请求中。
// Context 中无活跃 Span 时传播器不写入任何头。
func (c *Client) injectTraceContext(req *http.Request) {
	if req == nil {
		return
	}

	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return
	}
	propagator.Inject(req.Context(), propagation.HeaderCarrier(req.Header))
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
