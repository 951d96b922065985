package cli

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/utkarsh5026/papply/apply"
	"gonum.org/v1/gonum/stat"
)

// workload is a demo function applied to item numbers 0..n-1.
type workload struct {
	name string
	desc string
	fn   apply.Func[int, any]
}

var workloads = []workload{
	{
		name: "square",
		desc: "(i+1)^2 as float64 (flat)",
		fn: func(_ context.Context, i int, _ apply.Args) (any, error) {
			x := float64(i + 1)
			return x * x, nil
		},
	},
	{
		name: "sample-means",
		desc: "mean and standard deviation of a normal sample seeded by item (rowbound)",
		fn: func(_ context.Context, i int, args apply.Args) (any, error) {
			size, _ := apply.ArgAs[int](args, "sample")
			seed, _ := apply.ArgAs[uint64](args, "seed")
			rng := rand.New(rand.NewPCG(seed, uint64(i)))

			xs := make([]float64, max(size, 2))
			for j := range xs {
				xs[j] = rng.NormFloat64()
			}
			mean, sd := stat.MeanStdDev(xs, nil)
			return []float64{mean, sd}, nil
		},
	},
	{
		name: "sleep",
		desc: "sleeps for the work duration and returns milliseconds slept (flat)",
		fn: func(ctx context.Context, _ int, args apply.Args) (any, error) {
			d, _ := apply.ArgAs[time.Duration](args, "work")
			start := time.Now()
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return float64(time.Since(start).Microseconds()) / 1000, nil
		},
	},
	{
		name: "ragged",
		desc: "sequences of length i%3+1 (ragged, simplifies to asis)",
		fn: func(_ context.Context, i int, _ apply.Args) (any, error) {
			row := make([]int, i%3+1)
			for j := range row {
				row[j] = i
			}
			return row, nil
		},
	},
}

func workloadByName(name string) (workload, error) {
	i := slices.IndexFunc(workloads, func(w workload) bool { return w.name == name })
	if i < 0 {
		names := make([]string, len(workloads))
		for j, w := range workloads {
			names[j] = w.name
		}
		return workload{}, fmt.Errorf("unknown workload %q (choose from %s)", name, strings.Join(names, ", "))
	}
	return workloads[i], nil
}

// failing wraps fn so that item failAt returns an error.
func failing(fn apply.Func[int, any], failAt int) apply.Func[int, any] {
	if failAt < 0 {
		return fn
	}
	return func(ctx context.Context, i int, args apply.Args) (any, error) {
		if i == failAt {
			return nil, fmt.Errorf("injected failure at item %d", i)
		}
		return fn(ctx, i, args)
	}
}

func itemNumbers(n int) []int {
	items := make([]int, max(n, 0))
	for i := range items {
		items[i] = i
	}
	return items
}
