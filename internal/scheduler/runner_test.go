package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/utkarsh5026/papply/internal/algorithms"
	"golang.org/x/time/rate"
)

func TestExecute_Success(t *testing.T) {
	conf := &RunnerConfig[int, int]{}
	got, err := Execute(context.Background(), conf, 7, func(_ context.Context, x int) (int, error) {
		return x * x, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 49 {
		t.Errorf("expected 49, got %d", got)
	}
}

func TestExecute_PanicBecomesError(t *testing.T) {
	conf := &RunnerConfig[int, int]{}
	_, err := Execute(context.Background(), conf, 1, func(context.Context, int) (int, error) {
		panic("boom")
	})

	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError, got %T %v", err, err)
	}
	if pe.Value != "boom" {
		t.Errorf("expected panic value boom, got %v", pe.Value)
	}
	if !strings.Contains(err.Error(), "worker panic: boom") || !strings.Contains(err.Error(), "stack trace:") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestExecute_RetryUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	var retries []int
	conf := &RunnerConfig[int, int]{
		MaxAttempts: 3,
		Backoff:     algorithms.NewBackoff(algorithms.BackoffConstant, time.Millisecond, 0, 0),
		OnRetry: func(_ int, attempt int, _ error) {
			retries = append(retries, attempt)
		},
	}

	got, err := Execute(context.Background(), conf, 5, func(_ context.Context, x int) (int, error) {
		if calls.Add(1) < 3 {
			return 0, errors.New("transient")
		}
		return x + 1, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 6 {
		t.Errorf("expected 6, got %d", got)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("unexpected retry attempts %v", retries)
	}
}

func TestExecute_RetriesExhausted(t *testing.T) {
	want := errors.New("permanent")
	var calls atomic.Int32
	conf := &RunnerConfig[int, int]{MaxAttempts: 4}

	_, err := Execute(context.Background(), conf, 0, func(context.Context, int) (int, error) {
		calls.Add(1)
		return 0, want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
	if calls.Load() != 4 {
		t.Errorf("expected 4 calls, got %d", calls.Load())
	}
}

func TestExecute_BackoffHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conf := &RunnerConfig[int, int]{
		MaxAttempts: 2,
		Backoff:     algorithms.NewBackoff(algorithms.BackoffConstant, time.Hour, 0, 0),
	}

	_, err := Execute(ctx, conf, 0, func(context.Context, int) (int, error) {
		cancel()
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExecute_Hooks(t *testing.T) {
	var before, after atomic.Int32
	var gotResult int
	var gotErr error
	conf := &RunnerConfig[int, int]{
		BeforeTaskStart: func(int) { before.Add(1) },
		OnTaskEnd: func(_ int, r int, err error) {
			after.Add(1)
			gotResult, gotErr = r, err
		},
	}

	_, _ = Execute(context.Background(), conf, 3, func(_ context.Context, x int) (int, error) {
		return x * 10, nil
	})
	if before.Load() != 1 || after.Load() != 1 {
		t.Errorf("expected each hook once, got before=%d after=%d", before.Load(), after.Load())
	}
	if gotResult != 30 || gotErr != nil {
		t.Errorf("OnTaskEnd saw (%d, %v)", gotResult, gotErr)
	}
}

func TestExecute_RateLimitCancelled(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	limiter.Allow() // drain the burst

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	conf := &RunnerConfig[int, int]{RateLimiter: limiter}
	_, err := Execute(ctx, conf, 0, func(context.Context, int) (int, error) {
		calls.Add(1)
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("function ran despite rate limiter rejection")
	}
}
