package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spreadwatch/internal/pricing"
)

// RPCTimeoutError reports a state read that exceeded the per-fetch timeout.
type RPCTimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *RPCTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s: %v", e.Op, e.Timeout, e.Err)
}

func (e *RPCTimeoutError) Unwrap() error { return e.Err }

// RPCConnectionError reports a failed state read.
type RPCConnectionError struct {
	Op  string
	Err error
}

func (e *RPCConnectionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *RPCConnectionError) Unwrap() error { return e.Err }

// SubscriptionLostError is returned by Run once the head subscription could
// not be re-established.
type SubscriptionLostError struct {
	Attempts int
	Err      error
}

func (e *SubscriptionLostError) Error() string {
	return fmt.Sprintf("head subscription lost after %d reconnect attempts: %v", e.Attempts, e.Err)
}

func (e *SubscriptionLostError) Unwrap() error { return e.Err }

var errSubscriptionClosed = errors.New("subscription closed")

// classifyRPCError wraps a fetch error. Cancellation of the parent context
// passes through unwrapped.
func classifyRPCError(parent context.Context, op string, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RPCTimeoutError{Op: op, Timeout: timeout, Err: err}
	}
	return &RPCConnectionError{Op: op, Err: err}
}

// failureReason maps a cycle error to a metric label.
func failureReason(err error) string {
	var (
		reserveErr *pricing.InvalidReserveError
		sqrtErr    *pricing.InvalidSqrtPriceError
		timeoutErr *RPCTimeoutError
		connErr    *RPCConnectionError
	)
	switch {
	case errors.As(err, &reserveErr):
		return "invalid_reserves"
	case errors.As(err, &sqrtErr):
		return "invalid_sqrt_price"
	case errors.As(err, &timeoutErr):
		return "rpc_timeout"
	case errors.As(err, &connErr):
		return "rpc_error"
	default:
		return "error"
	}
}
