package resilience

import (
	"errors"
	"os"
	"strings"
)

// Common retry-related errors.
var (
	// ErrMaxRetriesExceeded is returned when all retry attempts are exhausted.
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")

	// ErrNonRetryable marks an error as explicitly non-retryable.
	ErrNonRetryable = errors.New("error is not retryable")
)

// Sentinel kinds used across the protocol and workflow layers to classify
// command failures for retry eligibility (spec: a retry is triggered only by
// Timeout or ResponseMismatch, never by a transport error).
var (
	// ErrCommandTimeout marks a command that did not receive a terminator
	// before its per-command timeout elapsed.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrResponseMismatch marks a command whose response did not satisfy its
	// expected_response validation (literal or regex).
	ErrResponseMismatch = errors.New("response did not match expectation")

	// ErrTransportError marks a failure in the underlying WireTransport
	// (open/write/read/close) that is not itself retry-eligible at the
	// command level.
	ErrTransportError = errors.New("transport error")
)

// DefaultErrorChecker treats every non-nil error as retryable unless it is
// explicitly wrapped in ErrNonRetryable. It is the generic fallback used by
// ad-hoc callers of WithRetry that don't need fine-grained classification.
type DefaultErrorChecker struct{}

// IsRetryable implements RetryableErrorChecker.
func (c *DefaultErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNonRetryable) {
		return false
	}
	return true
}

// CommandErrorChecker implements the command-retry eligibility rule: only
// Timeout and ResponseMismatch are retryable; transport errors are not,
// since retrying a broken transport rarely helps and would mask the real
// failure.
type CommandErrorChecker struct{}

// IsRetryable implements RetryableErrorChecker.
func (c *CommandErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrCommandTimeout) || errors.Is(err, ErrResponseMismatch)
}

// TransientIOErrorChecker treats common transient filesystem errors (the
// kind seen probing a log directory that may be on a flaky mount) as
// retryable, and everything else as not.
type TransientIOErrorChecker struct{}

// IsRetryable implements RetryableErrorChecker.
func (c *TransientIOErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{"timeout", "temporarily unavailable", "resource busy", "i/o timeout"} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}

// ChainedErrorChecker chains multiple checkers; an error is retryable if any
// checker in the chain says so.
type ChainedErrorChecker struct {
	Checkers []RetryableErrorChecker
}

// IsRetryable implements RetryableErrorChecker.
func (c *ChainedErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, checker := range c.Checkers {
		if checker.IsRetryable(err) {
			return true
		}
	}
	return false
}

// NeverRetryChecker always returns false.
type NeverRetryChecker struct{}

// IsRetryable implements RetryableErrorChecker.
func (c *NeverRetryChecker) IsRetryable(err error) bool { return false }

// AlwaysRetryChecker returns true for any non-nil error.
type AlwaysRetryChecker struct{}

// IsRetryable implements RetryableErrorChecker.
func (c *AlwaysRetryChecker) IsRetryable(err error) bool { return err != nil }
