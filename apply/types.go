package apply

import (
	"context"
	"maps"

	"go.uber.org/multierr"
)

// Args holds the fixed arguments passed unchanged to every invocation of a
// function.
type Args map[string]any

// ArgAs looks up key in args and asserts it to V.
func ArgAs[V any](args Args, key string) (V, bool) {
	v, ok := args[key].(V)
	return v, ok
}

func (a Args) clone() Args {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}

// Func is the function applied to every item. item is the varying argument,
// args the fixed arguments shared by the whole batch.
type Func[T, R any] func(ctx context.Context, item T, args Args) (R, error)

// Tuple groups several correlated varying arguments for one call. Its
// cardinality is its length.
type Tuple[V any] []V

// Len returns the number of arguments in the tuple.
func (t Tuple[V]) Len() int { return len(t) }

// At returns argument i.
func (t Tuple[V]) At(i int) V { return t[i] }

// Result is the outcome of one item. Error, when set, is an *ItemError.
type Result[R any] struct {
	Index int
	Value R
	Error error
}

// Failed reports whether the item produced an error.
func (r Result[R]) Failed() bool { return r.Error != nil }

// Collection holds one Result per input item, position i holding index i.
type Collection[R any] []Result[R]

// Values returns the plain values, or the error of the lowest failed index.
func (c Collection[R]) Values() ([]R, error) {
	out := make([]R, len(c))
	for i, r := range c {
		if r.Error != nil {
			return nil, r.Error
		}
		out[i] = r.Value
	}
	return out, nil
}

// Err combines every per-item error, or returns nil when all items succeeded.
func (c Collection[R]) Err() error {
	var err error
	for _, r := range c {
		err = multierr.Append(err, r.Error)
	}
	return err
}

// Failed lists the indices of failed items in ascending order.
func (c Collection[R]) Failed() []int {
	var idx []int
	for _, r := range c {
		if r.Error != nil {
			idx = append(idx, r.Index)
		}
	}
	return idx
}
