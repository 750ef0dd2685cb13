// Package retry provides the exponential-backoff wrapper used for every
// outbound LLM and generator call, plus the per-service pacer that enforces
// a minimum delay between successive calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// quotaMarkers are substrings that identify quota/throttle failures from
// upstream providers. Errors carrying any of them are always retryable.
var quotaMarkers = []string{"429", "RESOURCE_EXHAUSTED", "Quota exceeded"}

// Config configures retry behavior for a named operation.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	// A value of 0 means a single attempt with no retries.
	MaxRetries int
	// BaseDelay is the backoff unit: retry n waits BaseDelay * 2^n.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff. Zero means no cap.
	MaxDelay time.Duration
	// Name identifies the operation in logs and exhaustion errors.
	Name string
}

// DefaultConfig returns the retry configuration used for provider calls
// when no overrides are set: 5 retries on a 2s base delay.
func DefaultConfig(name string) Config {
	return Config{
		MaxRetries: 5,
		BaseDelay:  2 * time.Second,
		Name:       name,
	}
}

// ExhaustedError is returned when all retry attempts have been used up.
type ExhaustedError struct {
	// Name is the operation name from the config.
	Name string
	// Attempts is the total number of attempts made (initial + retries).
	Attempts int
	// TotalDuration is the wall time spent across attempts and backoffs.
	TotalDuration time.Duration
	// LastError is the error from the final attempt.
	LastError error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: retry exhausted after %d attempts over %v: %v", e.Name, e.Attempts, e.TotalDuration, e.LastError)
}

// Unwrap returns the underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.LastError
}

// HTTPStatusError carries an HTTP failure status with a body excerpt so
// callers can branch on the class of failure.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// nonRetryableError pins an error as non-retryable regardless of its shape.
type nonRetryableError struct{ err error }

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable marks an error so Do fails immediately without retrying.
// Used for validation and unsupported-input failures.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// retryableError pins an error as retryable regardless of its shape.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks an error so Do always retries it within budget.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable classifies an error. Retryable failures are quota/throttle
// errors (429, RESOURCE_EXHAUSTED, Quota exceeded), connect timeouts,
// transient network errors, and HTTP 429/5xx. Non-retryable failures are
// other 4xx, validation errors, and user cancellation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pinned *nonRetryableError
	if errors.As(err, &pinned) {
		return false
	}
	var forced *retryableError
	if errors.As(err, &forced) {
		return true
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		if httpErr.StatusCode >= 500 {
			return true
		}
		if httpErr.StatusCode >= 400 {
			return false
		}
	}

	msg := err.Error()
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.IsTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return false
}

// Do executes op with exponential backoff. Retry n (0-based) waits
// BaseDelay * 2^n, capped at MaxDelay when set. All waits abort on context
// cancellation. On exhaustion the last error is surfaced inside an
// *ExhaustedError carrying the attempt count.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := backoffDelay(cfg, attempt)
		slog.Warn("Retryable failure, backing off",
			"name", cfg.Name,
			"attempt", attempt+1,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return &ExhaustedError{
		Name:          cfg.Name,
		Attempts:      cfg.MaxRetries + 1,
		TotalDuration: time.Since(start),
		LastError:     lastErr,
	}
}

// backoffDelay computes BaseDelay * 2^attempt with the optional cap.
func backoffDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if cfg.MaxDelay > 0 && delay >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return delay
}
