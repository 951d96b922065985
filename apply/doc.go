// Package apply applies a function to every item of a slice, sequentially or
// across a pool of worker units, and reassembles the per-item results in
// input order.
//
// The execution strategy comes from an execution plan, not from the call
// site: the same Apply call runs sequentially or in parallel depending on
// the plan installed with Use.
//
// # Basic Usage
//
//	ctx := context.Background()
//	square := func(ctx context.Context, x float64, _ apply.Args) (float64, error) {
//	    return x * x, nil
//	}
//	results, err := apply.Apply(ctx, []float64{1, 2, 3}, square)
//
//	plan, _ := apply.NewPlan(apply.WorkerPool, 4)
//	apply.Use(plan)
//	defer apply.Shutdown(0)
//	results, err = apply.Apply(ctx, []float64{1, 2, 3}, square) // same results
//
// # Per-item Errors
//
// A failing or panicking item does not abort the batch. Its Result carries
// an *ItemError with its index, and the other items complete normally. With
// fail-fast (WithPlanFailFast or WithFailFast) the first failure stops the
// items that have not started and the call returns that error instead.
//
// # Deferred Evaluation
//
// Defer returns a Future in the Pending state. Nothing runs until Force is
// called; the outcome is cached, so forcing again returns the same value
// without running the function again:
//
//	f := apply.Defer(items, fn)
//	results, err := f.Force()
//
// # Shapes
//
// Assemble (or Sapply) reshapes a Collection:
//
//   - Flat: scalars of one type, in order
//   - RowBound: a grid, one row per item; items must be equal-length sequences
//   - AsIs: values and errors exactly as computed
//   - Simplify: Flat, else RowBound, else AsIs
//
// # Worker Units
//
// A WorkerPool plan starts its units on first use and stops them when the
// plan is replaced or Shutdown is called. A batch is split into at most one
// chunk per unit (round-robin by default, see WithPartition and
// WithAffinity) and every unit runs its chunk sequentially. A unit that
// terminates while holding a chunk fails the whole chunk with ErrWorkerLost,
// including items it had already reported; other chunks are unaffected and
// the unit is replaced.
//
// Functions run on worker units must not call Apply on the same session:
// a unit waiting for its own pool can deadlock.
//
// Items must be independent. Reproducible randomness across units is the
// function's job, for example by seeding from the item index.
package apply
