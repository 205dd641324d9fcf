// Package retry runs HTTP requests through a failsafe retry policy driven by
// the max_retries and retry_delay settings.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
)

// Config controls retries.
type Config struct {
	MaxRetries int
	Delay      time.Duration
}

// StatusError is returned for responses outside the 2xx range. The body has
// already been drained and closed.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// RequestError wraps a failure to build a request. Building again would fail
// the same way, so it is never retried.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string { return "failed to build request: " + e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

// Retryable reports whether err is worth another attempt: transport errors,
// rate limiting and server errors. Context cancellation and request
// construction errors never are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re *RequestError
	if errors.As(err, &re) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	return true
}

// NewPolicy builds the retry policy for cfg.
//
//nolint:bodyclose // [*http.Response] is a type parameter, not a response
func NewPolicy(cfg Config) retrypolicy.RetryPolicy[*http.Response] {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	builder := retrypolicy.NewBuilder[*http.Response]().
		WithMaxRetries(cfg.MaxRetries).
		HandleIf(func(_ *http.Response, err error) bool {
			return Retryable(err)
		})
	if cfg.Delay > 0 {
		builder = builder.WithDelay(cfg.Delay)
	}
	return builder.Build()
}

// Client executes requests with retries.
type Client struct {
	HTTP   *http.Client
	policy retrypolicy.RetryPolicy[*http.Response]
	log    logrus.FieldLogger
}

// NewClient wraps httpClient with a retry policy built from cfg.
func NewClient(httpClient *http.Client, cfg Config, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{HTTP: httpClient, policy: NewPolicy(cfg), log: log}
}

// Do sends the request built by newReq until it succeeds or retries are
// exhausted. newReq is called once per attempt so request bodies can be
// replayed. Non-2xx responses come back as *StatusError.
func (c *Client) Do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	attempt := 0
	return failsafe.With(c.policy).WithContext(ctx).Get(func() (*http.Response, error) {
		attempt++
		req, err := newReq(ctx)
		if err != nil {
			return nil, &RequestError{Err: err}
		}
		if attempt > 1 {
			c.log.WithFields(logrus.Fields{
				"url":     req.URL.Redacted(),
				"attempt": attempt,
			}).Warn("retrying request")
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return resp, nil
	})
}
