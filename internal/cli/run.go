package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/utkarsh5026/papply/apply"
	"go.uber.org/zap"
)

type runOptions struct {
	workload string
	n        int
	shape    string
	deferred bool
	failAt   int
	sample   int
	seed     uint64
	work     time.Duration
}

var runFlagPaths = map[string]string{
	"mode":      "plan.mode",
	"workers":   "plan.workers",
	"partition": "plan.partition",
	"fail-fast": "plan.fail_fast",
	"pin":       "plan.pin_workers",
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply a demo workload and print the assembled output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(root, changed(cmd, runFlagPaths))
			if err != nil {
				return err
			}
			defer func() { _ = e.log.Sync() }()
			return runWorkload(cmd.Context(), cmd.OutOrStdout(), e, opts, !root.plain)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.workload, "workload", "square", "workload: square, sample-means, sleep, ragged")
	flags.IntVar(&opts.n, "n", 10, "number of items")
	flags.StringVar(&opts.shape, "shape", "simplify", "output shape: flat, rowbound, asis, simplify")
	flags.BoolVar(&opts.deferred, "deferred", false, "build a future first and force it afterwards")
	flags.IntVar(&opts.failAt, "fail-at", -1, "make this item fail (-1 = none)")
	flags.IntVar(&opts.sample, "sample", 100, "sample size for sample-means")
	flags.Uint64Var(&opts.seed, "seed", 1, "base seed for sample-means")
	flags.DurationVar(&opts.work, "work", 5*time.Millisecond, "per-item duration for sleep")

	flags.String("mode", "sequential", "execution mode: sequential or pool")
	flags.Int("workers", 4, "worker units for pool mode")
	flags.String("partition", "round-robin", "chunking: round-robin or contiguous")
	flags.Bool("fail-fast", false, "abort the batch on the first item error")
	flags.Bool("pin", false, "pin worker units to CPU cores")
	return cmd
}

func runWorkload(ctx context.Context, w io.Writer, e *env, opts *runOptions, progress bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	wl, err := workloadByName(opts.workload)
	if err != nil {
		return err
	}
	shape, err := apply.ParseShape(opts.shape)
	if err != nil {
		return err
	}

	session := apply.NewSession(e.plan)
	defer func() {
		if err := session.Shutdown(e.shutdownTimeout()); err != nil {
			e.log.Warn("session shutdown", zap.Error(err))
		}
	}()

	bold.Fprintf(w, "session %s\n", session.ID())
	fmt.Fprintf(w, "  plan:     %s\n", e.plan)
	fmt.Fprintf(w, "  workload: %s (%s)\n", wl.name, wl.desc)
	fmt.Fprintf(w, "  items:    %d\n\n", opts.n)

	callOpts := []apply.CallOption{
		apply.WithArgs(apply.Args{"sample": opts.sample, "seed": opts.seed, "work": opts.work}),
		apply.WithLogger(e.log),
	}
	if progress && opts.n > 0 {
		bar := progressbar.NewOptions(opts.n,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(wl.name),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		callOpts = append(callOpts, apply.WithOnTaskEnd(func(int, any, error) { _ = bar.Add(1) }))
		defer func() { _ = bar.Finish() }()
	}

	items := itemNumbers(opts.n)
	fn := failing(wl.fn, opts.failAt)

	start := time.Now()
	var results apply.Collection[any]
	if opts.deferred {
		future := apply.DeferIn(session, items, fn, callOpts...)
		yellow.Fprintf(w, "future created: %s\n", future.State())
		results, err = future.ForceContext(ctx)
		yellow.Fprintf(w, "future forced:  %s\n", future.State())
	} else {
		results, err = apply.ApplyIn(ctx, session, items, fn, callOpts...)
	}
	if err != nil {
		red.Fprintf(w, "batch failed: %v\n", err)
		return err
	}
	elapsed := time.Since(start)

	out, err := apply.Assemble(results, shape)
	if err != nil {
		red.Fprintf(w, "assemble %s: %v\n", shape, err)
		return err
	}

	if err := renderOutput(w, out); err != nil {
		return err
	}
	green.Fprintf(w, "\n%d items, %s output, %s\n", len(results), out.Shape(), elapsed.Round(time.Microsecond))
	if failed := results.Failed(); len(failed) > 0 {
		yellow.Fprintf(w, "failed items: %v\n", failed)
	}
	if lost := session.LostWorkers(); lost > 0 {
		yellow.Fprintf(w, "worker units replaced: %d\n", lost)
	}
	return nil
}
