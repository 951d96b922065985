package apply

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFuture_ForceIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	f := NewFuture(func(context.Context) (int, error) {
		calls.Add(1)
		return 42, nil
	})

	if f.State() != Pending || f.IsResolved() {
		t.Fatalf("new future should be pending, got %s", f.State())
	}

	v1, err1 := f.Force()
	v2, err2 := f.Force()
	if v1 != 42 || v2 != 42 || err1 != nil || err2 != nil {
		t.Errorf("unexpected outcomes (%d, %v) (%d, %v)", v1, err1, v2, err2)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 evaluation, got %d", calls.Load())
	}
	if f.State() != Resolved || !f.IsResolved() {
		t.Errorf("expected resolved, got %s", f.State())
	}
}

func TestFuture_FailureIsCached(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	f := NewFuture(func(context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	})

	_, err1 := f.Force()
	_, err2 := f.Force()
	if err1 != boom || err2 != boom {
		t.Errorf("expected the same error twice, got %v and %v", err1, err2)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 evaluation, got %d", calls.Load())
	}
	if f.State() != Failed {
		t.Errorf("expected failed, got %s", f.State())
	}
}

func TestFuture_ConcurrentForceEvaluatesOnce(t *testing.T) {
	var calls atomic.Int32
	f := NewFuture(func(context.Context) (int, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return 7, nil
	})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := f.Force(); v != 7 || err != nil {
				t.Errorf("unexpected outcome (%d, %v)", v, err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected 1 evaluation, got %d", calls.Load())
	}
}

func TestFuture_CancelOnlyWhilePending(t *testing.T) {
	var calls atomic.Int32
	f := NewFuture(func(context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	})

	if !f.Cancel() {
		t.Fatal("expected cancel of pending future to succeed")
	}
	if f.Cancel() {
		t.Error("second cancel should report false")
	}
	if _, err := f.Force(); !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("cancelled future was evaluated")
	}
	if !f.IsResolved() || f.State() != Failed {
		t.Errorf("expected failed, got %s", f.State())
	}

	resolved := NewFuture(func(context.Context) (int, error) { return 2, nil })
	_, _ = resolved.Force()
	if resolved.Cancel() {
		t.Error("cancel after resolution should report false")
	}
}

func TestFuture_CancelDuringEvaluationHasNoEffect(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	f := NewFuture(func(context.Context) (int, error) {
		close(started)
		<-release
		return 5, nil
	}).Go()

	<-started
	if f.State() != Evaluating {
		t.Errorf("expected evaluating, got %s", f.State())
	}
	if f.Cancel() {
		t.Error("cancel during evaluation should report false")
	}
	close(release)

	if v, err := f.Force(); v != 5 || err != nil {
		t.Errorf("unexpected outcome (%d, %v)", v, err)
	}
}

func TestFuture_ForceContextBoundsWaitOnly(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	f := NewFuture(func(context.Context) (int, error) {
		close(started)
		<-release
		return 9, nil
	}).Go()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.ForceContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	close(release)
	<-f.Done()
	if v, err := f.Force(); v != 9 || err != nil {
		t.Errorf("evaluation should survive the waiter's timeout, got (%d, %v)", v, err)
	}
}

func TestFuture_EvaluationIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFuture(func(ctx context.Context) (int, error) {
		return 3, ctx.Err()
	})
	if v, err := f.ForceContext(ctx); v != 3 || err != nil {
		t.Errorf("expected (3, nil), got (%d, %v)", v, err)
	}
}

func TestFuture_TryGet(t *testing.T) {
	f := NewFuture(func(context.Context) (int, error) { return 11, nil })

	if _, _, ok := f.TryGet(); ok {
		t.Error("TryGet should not report a pending outcome")
	}
	_, _ = f.Force()
	v, err, ok := f.TryGet()
	if !ok || v != 11 || err != nil {
		t.Errorf("unexpected TryGet (%d, %v, %v)", v, err, ok)
	}

	r := Ready("done")
	if v, err, ok := r.TryGet(); !ok || v != "done" || err != nil {
		t.Errorf("unexpected ready outcome (%s, %v, %v)", v, err, ok)
	}
}

func TestFuture_PanicBecomesFailure(t *testing.T) {
	f := NewFuture(func(context.Context) (int, error) {
		panic("thunk exploded")
	})

	_, err := f.Force()
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError, got %v", err)
	}
	if f.State() != Failed {
		t.Errorf("expected failed, got %s", f.State())
	}
}

func TestDefer_NothingRunsUntilForced(t *testing.T) {
	runPlanTest(t, 2, func(t *testing.T, s *Session) {
		var calls atomic.Int32
		fn := func(_ context.Context, x int, _ Args) (int, error) {
			calls.Add(1)
			return x * x, nil
		}

		items := ints(4)
		f := DeferIn(s, items, fn)
		items[0] = 100 // the batch was captured at Defer time

		time.Sleep(5 * time.Millisecond)
		if calls.Load() != 0 || f.State() != Pending {
			t.Fatalf("deferred batch started early (%d calls, %s)", calls.Load(), f.State())
		}
		if s.Active() {
			t.Error("worker units started before forcing")
		}

		results, err := f.Force()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[0].Value != 1 {
			t.Errorf("expected 1, got %d", results[0].Value)
		}

		again, _ := f.Force()
		if calls.Load() != 4 {
			t.Errorf("expected 4 calls, got %d", calls.Load())
		}
		if &again[0] != &results[0] {
			t.Error("second force returned a different collection")
		}
	})
}

func TestDefer_EmptyResolvesEmpty(t *testing.T) {
	f := DeferWith(mustPlan(t, WorkerPool, 4), []int{}, square)
	results, err := f.Force()
	if err != nil || len(results) != 0 {
		t.Errorf("expected empty collection, got (%v, %v)", results, err)
	}
}

func TestDefer_FailFastFails(t *testing.T) {
	boom := errors.New("boom")
	fn := func(_ context.Context, x int, _ Args) (int, error) {
		if x == 2 {
			return 0, boom
		}
		return x, nil
	}

	f := DeferWith(mustPlan(t, WorkerPool, 2, WithPlanFailFast(true)), ints(5), fn)
	if _, err := f.Force(); !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
	if f.State() != Failed {
		t.Errorf("expected failed, got %s", f.State())
	}
}

func TestDeferTask(t *testing.T) {
	var attempts atomic.Int32
	fn := func(_ context.Context, x int, _ Args) (int, error) {
		if attempts.Add(1) == 1 {
			return 0, errors.New("transient")
		}
		return x + 1, nil
	}

	task, err := NewTask(fn, nil, 41, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := DeferTask(task, WithRetryPolicy(2, 0))
	if attempts.Load() != 0 {
		t.Fatal("task ran before forcing")
	}
	if v, err := f.Force(); v != 42 || err != nil {
		t.Errorf("expected (42, nil), got (%d, %v)", v, err)
	}
	if attempts.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts.Load())
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		Pending: "pending", Evaluating: "evaluating", Resolved: "resolved", Failed: "failed", State(9): "unknown",
	} {
		if s.String() != want {
			t.Errorf("expected %q, got %q", want, s.String())
		}
	}
}
