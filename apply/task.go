package apply

import (
	"context"
	"errors"
	"fmt"
)

var errNilFunc = errors.New("apply: nil function")

// Task describes one unit of work: the function, its fixed arguments, the
// item it is applied to and the item's position in the batch. A Task is
// immutable once built.
type Task[T, R any] struct {
	fn    Func[T, R]
	args  Args
	item  T
	index int
	arity int
}

// NewTask builds a task. arity is the number of varying arguments fn
// expects; it must equal the cardinality of item, which is Len() for values
// such as Tuple and 1 for anything else.
func NewTask[T, R any](fn Func[T, R], args Args, item T, index, arity int) (*Task[T, R], error) {
	if fn == nil {
		return nil, errNilFunc
	}
	if err := checkArity(item, index, arity); err != nil {
		return nil, err
	}
	return &Task[T, R]{
		fn:    fn,
		args:  args.clone(),
		item:  item,
		index: index,
		arity: arity,
	}, nil
}

func (t *Task[T, R]) Item() T    { return t.item }
func (t *Task[T, R]) Index() int { return t.index }
func (t *Task[T, R]) Arity() int { return t.arity }

// Args returns a copy of the fixed arguments.
func (t *Task[T, R]) Args() Args { return t.args.clone() }

// Call invokes the function once, without retries or recovery.
func (t *Task[T, R]) Call(ctx context.Context) (R, error) {
	return t.fn(ctx, t.item, t.args)
}

type sized interface {
	Len() int
}

func checkArity(item any, index, arity int) error {
	if arity < 1 {
		return fmt.Errorf("%w: arity %d at index %d", ErrInvalidArity, arity, index)
	}
	if got := cardinality(item); got != arity {
		return fmt.Errorf("%w: function expects %d varying arguments, item %d supplies %d",
			ErrInvalidArity, arity, index, got)
	}
	return nil
}

func cardinality(item any) int {
	if s, ok := item.(sized); ok {
		return s.Len()
	}
	return 1
}

// buildTasks creates one task per item, index = position. A zero arity
// means "whatever each item supplies".
func buildTasks[T, R any](items []T, fn Func[T, R], args Args, arity int) ([]*Task[T, R], error) {
	if fn == nil {
		return nil, errNilFunc
	}
	shared := args.clone()
	tasks := make([]*Task[T, R], len(items))
	for i, item := range items {
		a := arity
		if a == 0 {
			a = cardinality(item)
		}
		if err := checkArity(item, i, a); err != nil {
			return nil, err
		}
		tasks[i] = &Task[T, R]{fn: fn, args: shared, item: item, index: i, arity: a}
	}
	return tasks, nil
}
