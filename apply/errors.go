package apply

import (
	"errors"
	"fmt"

	"github.com/utkarsh5026/papply/internal/scheduler"
)

var (
	// ErrInvalidArity reports that an item's cardinality does not match the
	// number of varying arguments the function expects.
	ErrInvalidArity = errors.New("invalid arity")

	// ErrShapeMismatch reports values that cannot be coerced into the
	// requested shape (mixed types, or non-sequences for a grid).
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrRaggedShape reports sequences of unequal length assembled as a grid.
	ErrRaggedShape = errors.New("ragged shape")

	// ErrWorkerLost marks every item of a chunk whose worker unit
	// terminated before finishing it.
	ErrWorkerLost = errors.New("worker lost")

	// ErrPlanInvalid reports an execution plan with fewer than one worker.
	ErrPlanInvalid = errors.New("invalid execution plan")

	// ErrCancelled is the outcome of a future cancelled before evaluation.
	ErrCancelled = errors.New("future cancelled")

	// ErrLengthMismatch reports zipped sequences of unequal length.
	ErrLengthMismatch = errors.New("sequence length mismatch")

	// ErrInvalidBatch reports a task batch whose indices are not exactly
	// 0..N-1.
	ErrInvalidBatch = errors.New("invalid task batch")

	ErrShutdownTimeout = scheduler.ErrShutdownTimeout
	ErrPoolClosed      = scheduler.ErrPoolClosed
)

// PanicError is recorded for an item whose function panicked. Its message
// carries the panic value and the stack trace of the worker.
type PanicError = scheduler.PanicError

// ItemError tags a per-item failure with the position of the item.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

func itemErr(index int, err error) error {
	if err == nil {
		return nil
	}
	var ie *ItemError
	if errors.As(err, &ie) && ie.Index == index {
		return err
	}
	return &ItemError{Index: index, Err: err}
}
