package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for classifying provider errors.

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

var (
	// ErrNoProvidersConfigured means neither slot has a usable backend.
	// It is the only gateway error that callers should treat as a batch abort.
	ErrNoProvidersConfigured = NewFatalError(errors.New("no model providers configured"))

	// ErrProviderNotConfigured stands in for the error of an empty slot.
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrCircuitOpen means the slot was skipped because its circuit breaker is open.
	ErrCircuitOpen = errors.New("provider circuit open")

	// ErrEmptyContent means the provider reported success with no text.
	ErrEmptyContent = errors.New("provider returned empty content")

	// ErrCompletionFailed means the provider reported the completion as failed.
	ErrCompletionFailed = errors.New("completion failed")

	// ErrCompletionIncomplete means the completion never reached a terminal status.
	ErrCompletionIncomplete = errors.New("completion incomplete")

	// ErrPollUnsupported means a backend returned a pending handle it cannot fetch.
	ErrPollUnsupported = errors.New("provider returned a pending handle but cannot poll")

	// ErrMissingCredentials means the API key environment variable is unset.
	ErrMissingCredentials = errors.New("missing provider credentials")
)

// AllProvidersFailedError reports the captured error of every slot after failover
// ran out of options. A slot with no backend carries ErrProviderNotConfigured.
type AllProvidersFailedError struct {
	Primary   error
	Secondary error
}

func (e *AllProvidersFailedError) Error() string {
	var b strings.Builder
	b.WriteString("all providers failed: primary: ")
	b.WriteString(errString(e.Primary))
	b.WriteString("; secondary: ")
	b.WriteString(errString(e.Secondary))
	return b.String()
}

// Unwrap exposes both slot errors to errors.Is and errors.As.
func (e *AllProvidersFailedError) Unwrap() []error {
	var errs []error
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	if e.Secondary != nil {
		errs = append(errs, e.Secondary)
	}
	return errs
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

// PollError reports why polling a handle stopped before a terminal status.
type PollError struct {
	HandleID string
	Attempt  int
	Err      error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s (attempt %d): %v", e.HandleID, e.Attempt, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}
