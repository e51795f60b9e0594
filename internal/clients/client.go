// internal/clients/client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"booktracker/internal/domain"
	"booktracker/internal/web"
)

// APIError is a non-2xx response of the API. It unwraps to the domain error kind
// named by its code, so callers can match it with errors.Is.
type APIError struct {
	Status int
	web.ErrorBody
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

var codeKinds = map[string]error{
	"VALIDATION_FAILED":     domain.ErrValidation,
	"NOT_FOUND":             domain.ErrNotFound,
	"DUPLICATE_KEY":         domain.ErrDuplicateKey,
	"HAS_BORROWING_HISTORY": domain.ErrHasBorrowingHistory,
	"BOOK_UNAVAILABLE":      domain.ErrBookUnavailable,
	"ALREADY_RETURNED":      domain.ErrAlreadyReturned,
	"PATRON_INELIGIBLE":     domain.ErrPatronIneligible,
	"TRANSIENT_FAILURE":     domain.ErrTransient,
}

func (e *APIError) Unwrap() error {
	return codeKinds[e.Code]
}

// Options tune a Client.
type Options struct {
	HTTPClient *http.Client
	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries int
	// RetryWait is used when the server sends no Retry-After header.
	RetryWait time.Duration
	// BreakerFailures consecutive server-side failures open the circuit.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client calls the booktracker HTTP API.
type Client struct {
	baseURL    string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	retryWait  time.Duration
}

// New creates a client for the API rooted at baseURL (for example
// "http://localhost:8080/api/v1").
func New(baseURL string, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 200 * time.Millisecond
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 10 * time.Second
	}

	failures := opts.BreakerFailures
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    opts.HTTPClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "booktracker-api",
			Timeout: opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					return apiErr.Status < http.StatusInternalServerError
				}
				return err == nil
			},
		}),
		maxRetries: opts.MaxRetries,
		retryWait:  opts.RetryWait,
	}
}

// do sends one request and decodes a 2xx body into out. Transient failures are
// retried up to maxRetries times.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		wait, err := c.attempt(ctx, method, path, body, out)
		if err == nil || !domain.IsRetryable(err) || attempt >= c.maxRetries {
			return err
		}
		if wait <= 0 {
			wait = c.retryWait
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) attempt(ctx context.Context, method, path string, body []byte, out any) (time.Duration, error) {
	var retryAfter time.Duration
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			if s, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil {
				retryAfter = time.Duration(s) * time.Second
			}
			apiErr := &APIError{Status: resp.StatusCode}
			if decErr := json.NewDecoder(resp.Body).Decode(&apiErr.ErrorBody); decErr != nil {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
			return nil, apiErr
		}

		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if err != nil {
		return retryAfter, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return 0, nil
}
