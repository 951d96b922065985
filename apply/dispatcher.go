package apply

import (
	"context"
	"slices"
)

// Apply calls fn once per item under the process-wide plan and blocks until
// every item is done. Position i of the returned collection holds item i.
//
// A failing item does not stop the others: its error is stored, tagged with
// its index, in its Result. Under fail-fast the first failure stops items
// that have not started and Apply returns that error with no collection.
// An empty items slice returns an empty collection without touching the
// worker pool.
func Apply[T, R any](ctx context.Context, items []T, fn Func[T, R], opts ...CallOption) (Collection[R], error) {
	return ApplyIn(ctx, defaultSession, items, fn, opts...)
}

// ApplyIn is Apply under the plan of session s, using its worker units.
func ApplyIn[T, R any](ctx context.Context, s *Session, items []T, fn Func[T, R], opts ...CallOption) (Collection[R], error) {
	plan := s.Plan()
	conf := createConfig[T, R](plan, opts)

	tasks, err := buildTasks(items, fn, conf.args, conf.arity)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return Collection[R]{}, nil
	}

	plan, pool, err := s.acquire()
	if err != nil {
		return nil, err
	}
	return newExecutor(plan, pool, conf).Run(ctx, tasks)
}

// ApplyWith is Apply under an explicit plan. Worker units, if the plan
// needs them, are started for this call and stopped before it returns.
func ApplyWith[T, R any](ctx context.Context, plan Plan, items []T, fn Func[T, R], opts ...CallOption) (Collection[R], error) {
	conf := createConfig[T, R](plan, opts)

	tasks, err := buildTasks(items, fn, conf.args, conf.arity)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return Collection[R]{}, nil
	}
	return runEphemeral(ctx, plan, tasks, conf)
}

// Defer is the deferred form of Apply: it returns a Pending future at once
// and runs nothing until the future is forced. The plan is read when the
// future is forced, not when it is created.
func Defer[T, R any](items []T, fn Func[T, R], opts ...CallOption) *Future[Collection[R]] {
	return DeferIn(defaultSession, items, fn, opts...)
}

// DeferIn is Defer bound to session s.
func DeferIn[T, R any](s *Session, items []T, fn Func[T, R], opts ...CallOption) *Future[Collection[R]] {
	items = slices.Clone(items)
	return NewFuture(func(ctx context.Context) (Collection[R], error) {
		return ApplyIn(ctx, s, items, fn, opts...)
	})
}

// DeferWith is Defer under an explicit plan.
func DeferWith[T, R any](plan Plan, items []T, fn Func[T, R], opts ...CallOption) *Future[Collection[R]] {
	items = slices.Clone(items)
	return NewFuture(func(ctx context.Context) (Collection[R], error) {
		return ApplyWith(ctx, plan, items, fn, opts...)
	})
}
