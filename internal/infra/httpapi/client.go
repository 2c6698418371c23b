// Package httpapi provides a retry-backed client for external HTTP APIs.
package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vietddude/resilience/internal/retry"
)

// StatusError reports a non-2xx response. Carrying the code as a field lets
// retry conditions classify it without parsing message text.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.Status)
}

// HTTPStatus satisfies retry.StatusCoder.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// Response is a fully-read HTTP response, safe to use after the call returns.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client wraps an http.Client with its own retry policy: transport failures
// and status 408, 429, 500, 502, 503, 504 are retried; other statuses fail
// after one attempt.
type Client struct {
	hc    *http.Client
	retry *retry.Manager
}

// Option configures a Client at construction.
type Option func(*settings)

type settings struct {
	hc        *http.Client
	codes     []int
	retryOpts []retry.Option
}

// WithHTTPClient replaces the default 30s-timeout http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) { s.hc = hc }
}

// WithRetryCodes replaces the default set of retryable status codes.
func WithRetryCodes(codes ...int) Option {
	return func(s *settings) { s.codes = codes }
}

// WithRetryOptions appends options to the client's retry policy, so
// payment-critical callers can run a stricter policy than best-effort ones.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(s *settings) { s.retryOpts = append(s.retryOpts, opts...) }
}

// NewClient builds a client with HTTP-tuned retry defaults
// (3 retries, 1s base delay, 15s cap).
func NewClient(opts ...Option) (*Client, error) {
	s := settings{
		hc: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(&s)
	}

	base := []retry.Option{
		retry.WithMaxRetries(3),
		retry.WithBaseDelay(1 * time.Second),
		retry.WithMaxDelay(15 * time.Second),
		retry.WithConditions(retry.HTTPTransient(s.codes...)),
	}
	r, err := retry.New(append(base, s.retryOpts...)...)
	if err != nil {
		return nil, err
	}
	return &Client{hc: s.hc, retry: r}, nil
}

// Get issues a retried GET.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, fmt.Sprintf("GET %s", url), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
}

// Post issues a retried POST. The body is replayed from scratch on every
// attempt.
func (c *Client) Post(ctx context.Context, url, contentType string, body []byte) (*Response, error) {
	return c.Do(ctx, fmt.Sprintf("POST %s", url), func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
}

// Do executes a request built by newReq under the retry policy. A factory is
// required rather than a prebuilt request because request bodies cannot be
// reread across attempts.
func (c *Client) Do(
	ctx context.Context,
	name string,
	newReq func(ctx context.Context) (*http.Request, error),
) (*Response, error) {
	result, err := c.retry.Execute(ctx, name, func(ctx context.Context) (any, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 400 {
			return nil, &StatusError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       body,
			}
		}

		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Response), nil
}
