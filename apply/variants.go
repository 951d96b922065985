package apply

import (
	"context"
	"fmt"
)

// Map applies a plain function to every item under the process-wide plan.
func Map[T, R any](ctx context.Context, items []T, fn func(T) R, opts ...CallOption) (Collection[R], error) {
	if fn == nil {
		return nil, errNilFunc
	}
	return Apply(ctx, items, func(_ context.Context, item T, _ Args) (R, error) {
		return fn(item), nil
	}, opts...)
}

// Sapply applies fn and assembles the results into shape. Under AsIs,
// per-item errors stay inline in the output; under every other shape the
// first one is returned.
func Sapply[T, R any](ctx context.Context, items []T, fn Func[T, R], shape Shape, opts ...CallOption) (*Output, error) {
	results, err := Apply(ctx, items, fn, opts...)
	if err != nil {
		return nil, err
	}
	return Assemble(results, shape)
}

// Mapply calls fn with the i-th element of every sequence grouped in one
// Tuple, for each i. All sequences must have the same length; the function
// is declared to take len(seqs) varying arguments.
//
//	sums, err := apply.Mapply(ctx, add, xs, ys)
func Mapply[V, R any](ctx context.Context, fn Func[Tuple[V], R], seqs ...[]V) (Collection[R], error) {
	return MapplyWithOptions(ctx, fn, seqs)
}

// MapplyWithOptions is Mapply with call options. WithArity overrides the
// arity taken from len(seqs).
func MapplyWithOptions[V, R any](ctx context.Context, fn Func[Tuple[V], R], seqs [][]V, opts ...CallOption) (Collection[R], error) {
	items, err := zip(seqs)
	if err != nil {
		return nil, err
	}
	if len(seqs) > 0 {
		opts = append([]CallOption{WithArity(len(seqs))}, opts...)
	}
	return Apply(ctx, items, fn, opts...)
}

func zip[V any](seqs [][]V) ([]Tuple[V], error) {
	if len(seqs) == 0 {
		return nil, nil
	}
	n := len(seqs[0])
	for i, s := range seqs[1:] {
		if len(s) != n {
			return nil, fmt.Errorf("%w: sequence %d has %d elements, sequence 0 has %d",
				ErrLengthMismatch, i+1, len(s), n)
		}
	}

	items := make([]Tuple[V], n)
	for i := range n {
		t := make(Tuple[V], len(seqs))
		for j, s := range seqs {
			t[j] = s[i]
		}
		items[i] = t
	}
	return items, nil
}

// Replicate calls fn n times with the replicate number 0..n-1. Seeding any
// randomness per replicate is up to fn.
func Replicate[R any](ctx context.Context, n int, fn func(ctx context.Context, i int) (R, error), opts ...CallOption) (Collection[R], error) {
	if fn == nil {
		return nil, errNilFunc
	}
	items := make([]int, max(n, 0))
	for i := range items {
		items[i] = i
	}
	return Apply(ctx, items, func(ctx context.Context, i int, _ Args) (R, error) {
		return fn(ctx, i)
	}, opts...)
}

// DeferTask wraps a single task in a Pending future. Forcing it runs the
// task on the forcing goroutine with the retry, hook and recovery options
// in opts.
func DeferTask[T, R any](task *Task[T, R], opts ...CallOption) *Future[R] {
	conf := createConfig[T, R](SequentialPlan(), opts)
	return NewFuture(func(ctx context.Context) (R, error) {
		return runTask(ctx, conf.runner, task)
	})
}
