package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/utkarsh5026/papply/internal/algorithms"
	"golang.org/x/time/rate"
)

// ProcessFunc processes a single item.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// RunnerConfig holds the per-item execution policy shared by every unit
// working on one batch.
type RunnerConfig[T, R any] struct {
	// MaxAttempts is the number of tries per item; values below 1 mean 1.
	MaxAttempts int

	// Backoff computes the wait between attempts (nil = retry immediately).
	Backoff algorithms.Backoff

	// RateLimiter throttles item starts across the whole batch (may be nil).
	RateLimiter *rate.Limiter

	BeforeTaskStart func(T)
	OnTaskEnd       func(T, R, error)
	OnRetry         func(T, int, error)
}

// PanicError is the error recorded for an item whose function panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panic: %v\nstack trace:\n%s", e.Value, e.Stack)
}

// Execute runs fn for item with rate limiting, hooks, retries and panic
// recovery. It never panics on behalf of fn.
func Execute[T, R any](ctx context.Context, conf *RunnerConfig[T, R], item T, fn ProcessFunc[T, R]) (R, error) {
	if conf.RateLimiter != nil {
		if err := conf.RateLimiter.Wait(ctx); err != nil {
			var zero R
			// the limiter does not wrap context errors
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			return zero, err
		}
	}

	if conf.BeforeTaskStart != nil {
		conf.BeforeTaskStart(item)
	}

	result, err := processWithRetry(ctx, conf, item, fn)

	if conf.OnTaskEnd != nil {
		conf.OnTaskEnd(item, result, err)
	}
	return result, err
}

func processWithRetry[T, R any](ctx context.Context, conf *RunnerConfig[T, R], item T, fn ProcessFunc[T, R]) (R, error) {
	var result R
	var err error
	attempts := max(conf.MaxAttempts, 1)

	for attempt := range attempts {
		if attempt > 0 && conf.Backoff != nil {
			if delay := conf.Backoff.Delay(attempt - 1); delay > 0 {
				t := time.NewTimer(delay)
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
					return result, ctx.Err()
				}
			}
		}

		result, err = processWithRecovery(ctx, item, fn)
		if err == nil {
			return result, nil
		}

		if conf.OnRetry != nil && attempt < attempts-1 {
			conf.OnRetry(item, attempt+1, err)
		}
	}
	return result, err
}

// processWithRecovery converts a panic in fn into a *PanicError.
func processWithRecovery[T, R any](ctx context.Context, item T, fn ProcessFunc[T, R]) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = &PanicError{Value: r, Stack: buf[:n]}
		}
	}()
	return fn(ctx, item)
}
