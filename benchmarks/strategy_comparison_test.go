package benchmarks

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/utkarsh5026/papply/apply"
)

// =============================================================================
// Strategy Comparison Benchmarks - Head-to-Head Performance Tests
// =============================================================================

func BenchmarkStrategy_CPUBound_AllStrategies(b *testing.B) {
	workers := 8
	taskCount := 10000
	processFunc := cpuBoundWork(1000)

	runStrategyBenchmark(b, getAllStrategies(workers), func(b *testing.B, s strategyConfig, sess *apply.Session) {
		b.ResetTimer()
		for range b.N {
			if _, err := apply.ApplyIn(context.Background(), sess, makeTasks(taskCount), processFunc, s.opts...); err != nil {
				b.Fatal(err)
			}
		}
		b.StopTimer()
		reportThroughput(b, taskCount, s.plan.Workers())
	})
}

func BenchmarkStrategy_IOBound_AllStrategies(b *testing.B) {
	workers := 16
	taskCount := 500
	processFunc := ioBoundWork(time.Millisecond)

	runStrategyBenchmark(b, getPoolStrategies(workers), func(b *testing.B, s strategyConfig, sess *apply.Session) {
		b.ResetTimer()
		for range b.N {
			if _, err := apply.ApplyIn(context.Background(), sess, makeTasks(taskCount), processFunc, s.opts...); err != nil {
				b.Fatal(err)
			}
		}
		b.StopTimer()
		reportThroughput(b, taskCount, workers)
	})
}

// BenchmarkStrategy_Mixed_AllStrategies shows the partitioning effect: the
// per-item cost grows with task%10, which round-robin spreads and contiguous
// does not.
func BenchmarkStrategy_Mixed_AllStrategies(b *testing.B) {
	workers := 8
	taskCount := 400
	processFunc := mixedWork()

	runStrategyBenchmark(b, getPoolStrategies(workers), func(b *testing.B, s strategyConfig, sess *apply.Session) {
		b.ResetTimer()
		for range b.N {
			if _, err := apply.ApplyIn(context.Background(), sess, makeTasks(taskCount), processFunc, s.opts...); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkStrategy_WorkerScaling(b *testing.B) {
	taskCount := 10000
	processFunc := cpuBoundWork(500)

	for _, workers := range []int{2, 4, 8, 16, 32} {
		b.Run(fmt.Sprintf("Workers_%d", workers), func(b *testing.B) {
			runStrategyBenchmark(b, getPoolStrategies(workers), func(b *testing.B, s strategyConfig, sess *apply.Session) {
				b.ResetTimer()
				for range b.N {
					if _, err := apply.ApplyIn(context.Background(), sess, makeTasks(taskCount), processFunc, s.opts...); err != nil {
						b.Fatal(err)
					}
				}
				b.StopTimer()
				reportThroughput(b, taskCount, workers)
			})
		})
	}
}

func BenchmarkStrategy_MemoryAllocations(b *testing.B) {
	taskCount := 1000
	processFunc := cpuBoundWork(10)

	runStrategyBenchmark(b, getAllStrategies(8), func(b *testing.B, s strategyConfig, sess *apply.Session) {
		b.ReportAllocs()
		b.ResetTimer()
		for range b.N {
			if _, err := apply.ApplyIn(context.Background(), sess, makeTasks(taskCount), processFunc, s.opts...); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkStrategy_ConcurrentCallers runs several Apply calls against one
// session at the same time. The pool is shared, so chunks from different
// calls queue behind each other on the units.
func BenchmarkStrategy_ConcurrentCallers(b *testing.B) {
	callers := 4
	taskCount := 1000
	processFunc := cpuBoundWork(200)

	runStrategyBenchmark(b, getPoolStrategies(8), func(b *testing.B, s strategyConfig, sess *apply.Session) {
		b.ResetTimer()
		for range b.N {
			var wg sync.WaitGroup
			errs := make([]error, callers)
			for c := range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[c] = apply.ApplyIn(context.Background(), sess, makeTasks(taskCount), processFunc, s.opts...)
				}()
			}
			wg.Wait()
			for _, err := range errs {
				if err != nil {
					b.Fatal(err)
				}
			}
		}
	})
}

func BenchmarkStrategy_TailLatency(b *testing.B) {
	taskCount := 5000
	processFunc := cpuBoundWork(1000)

	runStrategyBenchmark(b, getPoolStrategies(8), func(b *testing.B, s strategyConfig, sess *apply.Session) {
		hist := hdrhistogram.New(1, time.Second.Nanoseconds(), 3)
		var mu sync.Mutex

		timed := func(ctx context.Context, task int, args apply.Args) (int, error) {
			start := time.Now()
			result, err := processFunc(ctx, task, args)
			elapsed := time.Since(start)

			mu.Lock()
			_ = hist.RecordValue(elapsed.Nanoseconds())
			mu.Unlock()
			return result, err
		}

		b.ResetTimer()
		if _, err := apply.ApplyIn(context.Background(), sess, makeTasks(taskCount), timed, s.opts...); err != nil {
			b.Fatal(err)
		}
		b.StopTimer()

		b.ReportMetric(float64(hist.ValueAtQuantile(99)), "p99_ns")
		b.ReportMetric(float64(hist.ValueAtQuantile(99.9)), "p999_ns")
		b.ReportMetric(float64(hist.Max()), "max_ns")
	})
}
