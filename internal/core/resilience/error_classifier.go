package resilience

import (
	"context"
	"errors"
)

// ClassifyError classifies an error into a short label used for metrics and
// logging. It mirrors the retry-eligibility kinds used throughout the
// protocol layer.
//
// Labels: "none", "timeout", "response_mismatch", "transport",
// "context_cancelled", "context_deadline", "unknown".
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, context.Canceled):
		return "context_cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "context_deadline"
	case errors.Is(err, ErrCommandTimeout):
		return "timeout"
	case errors.Is(err, ErrResponseMismatch):
		return "response_mismatch"
	case errors.Is(err, ErrTransportError):
		return "transport"
	default:
		return "unknown"
	}
}
