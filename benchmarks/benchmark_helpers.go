package benchmarks

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/utkarsh5026/papply/apply"
)

// strategyConfig pairs a display name with the plan it benchmarks.
type strategyConfig struct {
	name string
	plan apply.Plan
	opts []apply.CallOption
}

func mustPlan(mode apply.Mode, workers int, opts ...apply.PlanOption) apply.Plan {
	plan, err := apply.NewPlan(mode, workers, opts...)
	if err != nil {
		panic(err)
	}
	return plan
}

// getAllStrategies returns every execution strategy worth comparing for a
// given worker count.
func getAllStrategies(workerCount int) []strategyConfig {
	return []strategyConfig{
		{name: "Sequential", plan: apply.SequentialPlan()},
		{
			name: "RoundRobin",
			plan: mustPlan(apply.WorkerPool, workerCount),
		},
		{
			name: "Contiguous",
			plan: mustPlan(apply.WorkerPool, workerCount, apply.WithPartition(apply.Contiguous)),
		},
		{
			name: "Unbuffered",
			plan: mustPlan(apply.WorkerPool, workerCount, apply.WithQueueBuffer(0)),
		},
		{
			name: "Affinity",
			plan: mustPlan(apply.WorkerPool, workerCount),
			opts: []apply.CallOption{apply.WithAffinity(func(x int) string {
				return fmt.Sprint(x % 64)
			})},
		},
	}
}

// getPoolStrategies drops the sequential baseline.
func getPoolStrategies(workerCount int) []strategyConfig {
	return getAllStrategies(workerCount)[1:]
}

// runStrategyBenchmark runs a benchmark function for all strategies. Each
// strategy gets its own session so the pool is started once per sub-benchmark.
func runStrategyBenchmark(b *testing.B, strategies []strategyConfig, benchFunc func(b *testing.B, s strategyConfig, sess *apply.Session)) {
	for _, strategy := range strategies {
		b.Run(strategy.name, func(b *testing.B) {
			sess := apply.NewSession(strategy.plan)
			defer func() { _ = sess.Shutdown(0) }()
			benchFunc(b, strategy, sess)
		})
	}
}

func makeTasks(n int) []int {
	tasks := make([]int, n)
	for i := range tasks {
		tasks[i] = i
	}
	return tasks
}

func reportThroughput(b *testing.B, taskCount, workers int) {
	nsPerOp := float64(b.Elapsed().Nanoseconds()) / float64(b.N)
	tasksPerSec := (float64(taskCount) / nsPerOp) * 1e9
	b.ReportMetric(tasksPerSec, "tasks/sec")
	if workers > 0 {
		b.ReportMetric(tasksPerSec/float64(workers), "tasks/sec/worker")
	}
}

// =============================================================================
// Benchmark Workload Generators
// =============================================================================

// cpuBoundWork simulates a CPU-intensive operation
func cpuBoundWork(iterations int) apply.Func[int, int] {
	return func(ctx context.Context, task int, _ apply.Args) (int, error) {
		result := 0
		for i := range iterations {
			result += i * task
		}
		return result, nil
	}
}

// ioBoundWork simulates an I/O operation with a delay
func ioBoundWork(delay time.Duration) apply.Func[int, int] {
	return func(ctx context.Context, task int, _ apply.Args) (int, error) {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			return task * 2, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// mixedWork has a per-item cost that varies with the item, so contiguous
// chunks end up unevenly loaded.
func mixedWork() apply.Func[int, int] {
	return func(ctx context.Context, task int, _ apply.Args) (int, error) {
		time.Sleep(time.Duration(task%10) * 100 * time.Microsecond)

		result := 0
		for i := range 1000 {
			result += i
		}
		return result + task, nil
	}
}

// rowWork returns a fixed-length row per item for grid assembly.
func rowWork(cols int) apply.Func[int, []float64] {
	return func(ctx context.Context, task int, _ apply.Args) ([]float64, error) {
		row := make([]float64, cols)
		for c := range row {
			row[c] = float64(task * c)
		}
		return row, nil
	}
}

// errorProneWork fails the first attempt of roughly errorRate of the items.
func errorProneWork(errorRate float64) apply.Func[int, int] {
	var attempts sync.Map
	return func(ctx context.Context, task int, _ apply.Args) (int, error) {
		val, _ := attempts.LoadOrStore(task, new(atomic.Int32))
		count := val.(*atomic.Int32).Add(1)

		if count == 1 && rand.Float64() < errorRate {
			return 0, fmt.Errorf("simulated error for task %d", task)
		}
		return task * 2, nil
	}
}
