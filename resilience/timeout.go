package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when an operation times out
var ErrTimeout = errors.New("operation timed out")

// WithTimeout executes a function with a timeout
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Channel to receive the result
	done := make(chan error, 1)

	// Execute function in goroutine
	go func() {
		done <- fn(ctx)
	}()

	// Wait for completion or timeout
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

// WithTimeoutResult executes a function with a timeout and returns a result
func WithTimeoutResult[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Result channel
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	// Execute function in goroutine
	go func() {
		val, err := fn(ctx)
		done <- result{value: val, err: err}
	}()

	// Wait for completion or timeout
	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		var zeroValue T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zeroValue, ErrTimeout
		}
		return zeroValue, ctx.Err()
	}
}
