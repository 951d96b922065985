package apply

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/utkarsh5026/papply/internal/scheduler"
	"go.uber.org/zap"
)

// Executor runs a batch of tasks and returns one Result per task, sorted by
// index. With fail-fast enabled it returns the first error instead.
type Executor[T, R any] interface {
	Run(ctx context.Context, batch []*Task[T, R]) (Collection[R], error)
}

// sequentialExecutor runs every task on the calling goroutine.
type sequentialExecutor[T, R any] struct {
	conf *execConfig[T, R]
}

func (e *sequentialExecutor[T, R]) Run(ctx context.Context, batch []*Task[T, R]) (Collection[R], error) {
	results := make(Collection[R], len(batch))
	for i, task := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := runTask(ctx, e.conf.runner, task)
		if err != nil && e.conf.failFast {
			return nil, itemErr(task.index, err)
		}
		results[i] = Result[R]{Index: task.index, Value: v, Error: itemErr(task.index, err)}
	}
	return results, nil
}

// poolExecutor splits the batch into chunks and hands each chunk to one
// worker unit of a running pool.
type poolExecutor[T, R any] struct {
	pool    *scheduler.Pool
	workers int
	conf    *execConfig[T, R]
}

func (e *poolExecutor[T, R]) chunks(batch []*Task[T, R]) [][]int {
	if e.conf.affinity != nil {
		keys := make([]string, len(batch))
		for i, t := range batch {
			keys[i] = e.conf.affinity(t.item)
		}
		return scheduler.ChunksByKey(keys, e.workers)
	}
	return scheduler.Chunks(len(batch), e.workers, e.conf.partition)
}

func (e *poolExecutor[T, R]) Run(ctx context.Context, batch []*Task[T, R]) (Collection[R], error) {
	results := make(Collection[R], len(batch))
	chunks := e.chunks(batch)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		wg       sync.WaitGroup
		failOnce sync.Once
		firstErr error
	)
	record := func(i int, v R, err error) {
		err = itemErr(batch[i].index, err)
		results[i] = Result[R]{Index: batch[i].index, Value: v, Error: err}
		if err != nil && e.conf.failFast {
			failOnce.Do(func() {
				firstErr = err
				cancel(err)
			})
		}
	}

	jobs := make([]scheduler.Job, len(chunks))
	for c, chunk := range chunks {
		wg.Add(1)
		jobs[c] = scheduler.Job{
			Run: func(unit int) {
				completed := false
				defer func() {
					cause := ErrWorkerLost
					if r := recover(); r != nil {
						cause = fmt.Errorf("%w: %v", ErrWorkerLost, r)
					}
					// a lost unit fails its whole chunk, including items it
					// already reported
					if !completed {
						e.conf.log.Warn("worker unit lost its chunk",
							zap.Int("unit", unit), zap.Int("items", len(chunk)))
						var zero R
						for _, i := range chunk {
							record(i, zero, cause)
						}
					}
					wg.Done()
				}()

				for _, i := range chunk {
					if err := context.Cause(runCtx); err != nil {
						var zero R
						record(i, zero, err)
						continue
					}
					v, err := runTask(runCtx, e.conf.runner, batch[i])
					record(i, v, err)
				}
				completed = true
			},
			Reject: func(err error) {
				var zero R
				for _, i := range chunk {
					record(i, zero, err)
				}
				wg.Done()
			},
		}
	}

	e.conf.log.Debug("dispatching batch",
		zap.Int("items", len(batch)), zap.Int("chunks", len(chunks)), zap.Int("workers", e.workers))

	// rejected jobs record their own items, so the error only matters below
	// through ctx and firstErr
	_ = e.pool.Dispatch(runCtx, jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func runTask[T, R any](ctx context.Context, conf *scheduler.RunnerConfig[T, R], task *Task[T, R]) (R, error) {
	return scheduler.Execute(ctx, conf, task.item, func(ctx context.Context, item T) (R, error) {
		return task.fn(ctx, item, task.args)
	})
}

func newExecutor[T, R any](plan Plan, pool *scheduler.Pool, conf *execConfig[T, R]) Executor[T, R] {
	if pool == nil || !plan.Parallel() {
		return &sequentialExecutor[T, R]{conf: conf}
	}
	return &poolExecutor[T, R]{pool: pool, workers: plan.Workers(), conf: conf}
}

// Run executes batch on workers worker units started for this call only
// and stopped before it returns. workers above len(batch) is clamped. The
// result is sorted by task index whatever order the batch was given in;
// the indices must be exactly 0..len(batch)-1, otherwise ErrInvalidBatch is
// returned and nothing runs.
func Run[T, R any](ctx context.Context, batch []*Task[T, R], workers int, opts ...CallOption) (Collection[R], error) {
	plan, err := NewPlan(WorkerPool, workers)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return Collection[R]{}, nil
	}
	if err := checkIndices(batch); err != nil {
		return nil, err
	}

	results, err := runEphemeral(ctx, plan, batch, createConfig[T, R](plan, opts))
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(results, func(a, b Result[R]) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return results, nil
}

// checkIndices verifies that the batch's task indices are a permutation of
// 0..len(batch)-1, so the sorted result has every index exactly once.
func checkIndices[T, R any](batch []*Task[T, R]) error {
	seen := make([]bool, len(batch))
	for pos, task := range batch {
		if task == nil {
			return fmt.Errorf("%w: nil task at position %d", ErrInvalidBatch, pos)
		}
		if task.index < 0 || task.index >= len(batch) {
			return fmt.Errorf("%w: task at position %d has index %d, want 0..%d",
				ErrInvalidBatch, pos, task.index, len(batch)-1)
		}
		if seen[task.index] {
			return fmt.Errorf("%w: index %d appears more than once", ErrInvalidBatch, task.index)
		}
		seen[task.index] = true
	}
	return nil
}

// runEphemeral runs batch on a pool that lives for this call only.
func runEphemeral[T, R any](ctx context.Context, plan Plan, batch []*Task[T, R], conf *execConfig[T, R]) (Collection[R], error) {
	if !plan.Parallel() {
		return newExecutor(plan, nil, conf).Run(ctx, batch)
	}

	sized := plan
	sized.workers = min(plan.Workers(), len(batch))
	if !sized.Parallel() {
		return newExecutor(sized, nil, conf).Run(ctx, batch)
	}

	pool := sized.newPool()
	if err := pool.Start(); err != nil {
		return nil, err
	}
	defer func() {
		if err := pool.Shutdown(0); err != nil {
			conf.log.Warn("ephemeral pool shutdown", zap.Error(err))
		}
	}()
	return newExecutor(sized, pool, conf).Run(ctx, batch)
}
