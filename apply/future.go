package apply

import (
	"context"
	"runtime"
	"sync"
)

// State is the evaluation state of a Future.
type State int32

const (
	Pending State = iota
	Evaluating
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Evaluating:
		return "evaluating"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Future is a deferred computation. Nothing runs until it is forced; the
// outcome is computed at most once and cached, so every later Force returns
// the same value or error.
//
// A running evaluation cannot be interrupted: Cancel only succeeds while the
// future is still Pending.
type Future[V any] struct {
	mu    sync.Mutex
	state State
	thunk func(ctx context.Context) (V, error)

	value V
	err   error
	done  chan struct{}
}

// NewFuture wraps thunk in a Pending future.
func NewFuture[V any](thunk func(ctx context.Context) (V, error)) *Future[V] {
	return &Future[V]{thunk: thunk, done: make(chan struct{})}
}

// Force evaluates the future if it is Pending and returns the outcome.
func (f *Future[V]) Force() (V, error) {
	return f.ForceContext(context.Background())
}

// ForceContext is Force with a context. If this call starts the evaluation,
// the evaluation sees ctx's values but not its cancellation. If another
// caller is already evaluating, ctx bounds the wait for that outcome.
func (f *Future[V]) ForceContext(ctx context.Context) (V, error) {
	if thunk, ok := f.claim(); ok {
		f.evaluate(context.WithoutCancel(ctx), thunk)
		return f.value, f.err
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Go starts evaluation on a new goroutine if the future is Pending.
func (f *Future[V]) Go() *Future[V] {
	if thunk, ok := f.claim(); ok {
		go f.evaluate(context.Background(), thunk)
	}
	return f
}

// Cancel moves a Pending future to Failed with ErrCancelled. It reports
// whether it did; once evaluation has started it has no effect.
func (f *Future[V]) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Pending {
		return false
	}
	f.state = Failed
	f.err = ErrCancelled
	f.thunk = nil
	close(f.done)
	return true
}

// IsResolved reports, without blocking, whether the outcome is available.
func (f *Future[V]) IsResolved() bool {
	s := f.State()
	return s == Resolved || s == Failed
}

func (f *Future[V]) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done is closed once the future is Resolved or Failed.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// TryGet returns the outcome if it is available, without forcing.
func (f *Future[V]) TryGet() (V, error, bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero V
		return zero, nil, false
	}
}

func (f *Future[V]) claim() (func(context.Context) (V, error), bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Pending {
		return nil, false
	}
	f.state = Evaluating
	thunk := f.thunk
	f.thunk = nil
	return thunk, true
}

func (f *Future[V]) evaluate(ctx context.Context, thunk func(context.Context) (V, error)) {
	var (
		v   V
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				err = &PanicError{Value: r, Stack: buf[:n]}
			}
		}()
		v, err = thunk(ctx)
	}()

	f.mu.Lock()
	f.value, f.err = v, err
	if err != nil {
		f.state = Failed
	} else {
		f.state = Resolved
	}
	f.mu.Unlock()
	close(f.done)
}

// Ready returns a future already resolved to v.
func Ready[V any](v V) *Future[V] {
	f := &Future[V]{state: Resolved, value: v, done: make(chan struct{})}
	close(f.done)
	return f
}
