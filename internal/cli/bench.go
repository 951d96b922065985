package cli

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/utkarsh5026/papply/apply"
)

type benchOptions struct {
	n          int
	work       time.Duration
	iterations int
}

var benchFlagPaths = map[string]string{
	"workers": "plan.workers",
	"pin":     "plan.pin_workers",
}

// benchResult is one strategy's measurement.
type benchResult struct {
	name  string
	total time.Duration
	rate  float64
	p50   time.Duration
	p95   time.Duration
	p99   time.Duration
	errs  int
}

func newBenchCommand(root *rootOptions) *cobra.Command {
	opts := &benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare sequential and worker-pool execution of a sleep workload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(root, changed(cmd, benchFlagPaths))
			if err != nil {
				return err
			}
			defer func() { _ = e.log.Sync() }()
			return runBench(cmd.Context(), cmd.OutOrStdout(), e, opts, !root.plain)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.n, "n", 64, "items per batch")
	flags.DurationVar(&opts.work, "work", 2*time.Millisecond, "per-item duration")
	flags.IntVar(&opts.iterations, "iterations", 1, "batches per strategy")
	flags.Int("workers", 4, "worker units for the pool strategies")
	flags.Bool("pin", false, "pin worker units to CPU cores")
	return cmd
}

type strategy struct {
	name string
	plan apply.Plan
}

func benchStrategies(workers int, pinned bool) ([]strategy, error) {
	var out []strategy
	add := func(name string, mode apply.Mode, opts ...apply.PlanOption) error {
		opts = append(opts, apply.WithPinnedWorkers(pinned))
		p, err := apply.NewPlan(mode, workers, opts...)
		if err != nil {
			return err
		}
		out = append(out, strategy{name: name, plan: p})
		return nil
	}

	if err := add("Sequential", apply.Sequential); err != nil {
		return nil, err
	}
	if err := add("Pool round-robin", apply.WorkerPool); err != nil {
		return nil, err
	}
	if err := add("Pool contiguous", apply.WorkerPool, apply.WithPartition(apply.Contiguous)); err != nil {
		return nil, err
	}
	return out, nil
}

func runBench(ctx context.Context, w io.Writer, e *env, opts *benchOptions, progress bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	strategies, err := benchStrategies(e.plan.Workers(), e.plan.Pinned())
	if err != nil {
		return err
	}

	bold.Fprintf(w, "bench: %d items x %d iterations, %s per item, %d workers\n\n",
		opts.n, max(opts.iterations, 1), opts.work, e.plan.Workers())

	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.NewOptions(len(strategies),
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("strategies"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	results := make([]benchResult, 0, len(strategies))
	for _, s := range strategies {
		if bar != nil {
			bar.Describe(s.name)
		}
		r, err := measure(ctx, s, e, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		results = append(results, r)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	return renderBench(w, results)
}

func measure(ctx context.Context, s strategy, e *env, opts *benchOptions) (benchResult, error) {
	hist := hdrhistogram.New(1, time.Minute.Microseconds(), 3)
	var mu sync.Mutex

	wl, _ := workloadByName("sleep")
	timed := func(ctx context.Context, i int, args apply.Args) (any, error) {
		start := time.Now()
		v, err := wl.fn(ctx, i, args)
		elapsed := time.Since(start).Microseconds()

		mu.Lock()
		_ = hist.RecordValue(max(elapsed, 1))
		mu.Unlock()
		return v, err
	}

	session := apply.NewSession(s.plan)
	defer func() { _ = session.Shutdown(e.shutdownTimeout()) }()

	items := itemNumbers(opts.n)
	r := benchResult{name: s.name}
	start := time.Now()
	for range max(opts.iterations, 1) {
		results, err := apply.ApplyIn(ctx, session, items, timed,
			apply.WithArgs(apply.Args{"work": opts.work}),
			apply.WithLogger(e.log))
		if err != nil {
			return r, err
		}
		r.errs += len(results.Failed())
	}
	r.total = time.Since(start)

	if secs := r.total.Seconds(); secs > 0 {
		r.rate = float64(opts.n*max(opts.iterations, 1)) / secs
	}
	r.p50 = time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond
	r.p95 = time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond
	r.p99 = time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond
	return r, nil
}

func renderBench(w io.Writer, results []benchResult) error {
	if len(results) == 0 {
		return nil
	}
	sorted := slices.Clone(results)
	slices.SortFunc(sorted, func(a, b benchResult) int {
		return cmp.Compare(a.total, b.total)
	})
	fastest := sorted[0].total

	table := newTable(w)
	table.Header("Rank", "Strategy", "Total Time", "Items/sec", "P50", "P95", "P99", "Errors", "vs Fastest")
	for i, r := range sorted {
		vs := "baseline"
		if i > 0 && fastest > 0 {
			vs = fmt.Sprintf("%.2fx", float64(r.total)/float64(fastest))
		}
		_ = table.Append(
			fmt.Sprintf("%d", i+1),
			r.name,
			r.total.Round(time.Microsecond).String(),
			fmt.Sprintf("%.0f", r.rate),
			r.p50.String(),
			r.p95.String(),
			r.p99.String(),
			fmt.Sprintf("%d", r.errs),
			vs,
		)
	}
	return table.Render()
}
