package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")

	// ErrBlockedContent signals a DLP policy rejection. User-correctable.
	ErrBlockedContent = errors.New("blocked content")
	// ErrAdapterUnavailable signals a failed or unreachable external adapter.
	ErrAdapterUnavailable = errors.New("adapter unavailable")
	// ErrAdapterTimeout signals an adapter call that ran past its deadline. Retryable.
	ErrAdapterTimeout = errors.New("adapter timeout")
	// ErrConfiguration signals a fatal startup configuration violation.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation signals malformed input rejected before any adapter call.
	ErrValidation = errors.New("validation error")
)

// BlockedContentError carries the scan that rejected the request.
type BlockedContentError struct {
	ScanID    string
	DataTypes []string
}

func (e *BlockedContentError) Error() string {
	return fmt.Sprintf("%s: scan %s detected %s", ErrBlockedContent, e.ScanID, strings.Join(e.DataTypes, ", "))
}

func (e *BlockedContentError) Unwrap() error { return ErrBlockedContent }

// AdapterUnavailableError wraps the failure of a named external adapter.
type AdapterUnavailableError struct {
	Adapter string
	Err     error
}

func (e *AdapterUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrAdapterUnavailable, e.Adapter)
	}
	return fmt.Sprintf("%s: %s: %v", ErrAdapterUnavailable, e.Adapter, e.Err)
}

func (e *AdapterUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAdapterUnavailable}
	}
	return []error{ErrAdapterUnavailable, e.Err}
}

// AdapterTimeoutError reports how long a call ran before its deadline fired.
type AdapterTimeoutError struct {
	Adapter string
	Elapsed time.Duration
	Err     error
}

func (e *AdapterTimeoutError) Error() string {
	return fmt.Sprintf("%s: %s after %s", ErrAdapterTimeout, e.Adapter, e.Elapsed.Round(time.Millisecond))
}

func (e *AdapterTimeoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAdapterTimeout}
	}
	return []error{ErrAdapterTimeout, e.Err}
}

// ConfigurationError lists every violation found by a startup check.
type ConfigurationError struct {
	Violations []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfiguration, strings.Join(e.Violations, "; "))
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ValidationError names the rejected field and value.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s (got %v)", ErrValidation, e.Field, e.Reason, e.Value)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error.
func NewValidationError(field string, value any, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// CallAdapter runs fn under a per-adapter timeout and classifies its failure.
// A deadline (ours or the caller's) becomes AdapterTimeoutError. Any other error
// becomes AdapterUnavailableError unless it already carries a domain kind.
func CallAdapter(ctx context.Context, adapter string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	if err == nil {
		return nil
	}
	return ClassifyAdapterError(ctx, adapter, time.Since(start), err)
}

// ClassifyAdapterError maps a raw adapter error onto the domain taxonomy.
func ClassifyAdapterError(ctx context.Context, adapter string, elapsed time.Duration, err error) error {
	switch {
	case errors.Is(err, ErrAdapterTimeout),
		errors.Is(err, ErrAdapterUnavailable),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrBlockedContent):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		ctx.Err() != nil:
		return &AdapterTimeoutError{Adapter: adapter, Elapsed: elapsed, Err: err}
	default:
		return &AdapterUnavailableError{Adapter: adapter, Err: err}
	}
}
