// Package llm defines the port interface for the external language model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Client is the port interface for a single model completion call.
// Structured call sites expect JSON-shaped answers and tolerate a JSON block
// embedded in a larger text reply.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Error wraps a provider failure with status metadata so the dispatcher can
// classify it without knowing the provider.
type Error struct {
	Status    int
	Temporary bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return "model error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("model error (status=%d)", e.Status)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsRetryable reports whether an error is safe to retry: timeouts,
// connection resets, rate limiting (429) and server errors (5xx).
// Everything else surfaces immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var modelErr *Error
	if errors.As(err, &modelErr) {
		if modelErr.Temporary {
			return true
		}
		if modelErr.Status == 429 || (modelErr.Status >= 500 && modelErr.Status <= 599) {
			return true
		}
	}
	return false
}
