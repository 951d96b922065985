package apply

import (
	"fmt"

	"github.com/utkarsh5026/papply/internal/scheduler"
	"go.uber.org/zap"
)

// Mode selects how a batch is executed.
type Mode int

const (
	// Sequential runs every item on the calling goroutine.
	Sequential Mode = iota
	// WorkerPool splits the batch across a fixed set of worker units.
	WorkerPool
)

func (m Mode) String() string {
	if m == WorkerPool {
		return "pool"
	}
	return "sequential"
}

// Partition selects how a batch is split across worker units. It changes
// load balance only, never the result.
type Partition = scheduler.Partition

const (
	RoundRobin = scheduler.RoundRobin
	Contiguous = scheduler.Contiguous
)

// Plan is an execution plan. Build it with NewPlan; the zero value is a
// valid sequential plan with one worker.
type Plan struct {
	mode        Mode
	workers     int
	failFast    bool
	partition   Partition
	pinned      bool
	queueBuffer int
	logger      *zap.Logger
}

// PlanOption configures a Plan.
type PlanOption func(*Plan)

// WithPlanFailFast makes the first per-item error abort the whole batch.
func WithPlanFailFast(failFast bool) PlanOption {
	return func(p *Plan) {
		p.failFast = failFast
	}
}

// WithPartition sets how batches are split across worker units.
func WithPartition(part Partition) PlanOption {
	return func(p *Plan) {
		p.partition = part
	}
}

// WithPinnedWorkers pins every worker unit to a CPU core where supported.
func WithPinnedWorkers(pinned bool) PlanOption {
	return func(p *Plan) {
		p.pinned = pinned
	}
}

// WithQueueBuffer sets the per-unit queue capacity of the pool.
func WithQueueBuffer(n int) PlanOption {
	return func(p *Plan) {
		if n >= 0 {
			p.queueBuffer = n
		}
	}
}

// WithPlanLogger sets the logger used for session and batch events.
func WithPlanLogger(l *zap.Logger) PlanOption {
	return func(p *Plan) {
		p.logger = l
	}
}

// NewPlan builds an execution plan. workers must be at least 1; a
// WorkerPool plan with one worker behaves like Sequential.
func NewPlan(mode Mode, workers int, opts ...PlanOption) (Plan, error) {
	if workers < 1 {
		return Plan{}, fmt.Errorf("%w: worker count %d, need at least 1", ErrPlanInvalid, workers)
	}
	if mode != Sequential && mode != WorkerPool {
		return Plan{}, fmt.Errorf("%w: unknown mode %d", ErrPlanInvalid, mode)
	}

	p := Plan{mode: mode, workers: workers, queueBuffer: 1}
	for _, opt := range opts {
		opt(&p)
	}
	return p, nil
}

// SequentialPlan returns the default plan.
func SequentialPlan() Plan {
	return Plan{mode: Sequential, workers: 1, queueBuffer: 1}
}

func (p Plan) Mode() Mode           { return p.mode }
func (p Plan) FailFast() bool       { return p.failFast }
func (p Plan) Partition() Partition { return p.partition }
func (p Plan) Pinned() bool         { return p.pinned }

// Workers returns the configured worker count (at least 1).
func (p Plan) Workers() int {
	return max(p.workers, 1)
}

// Parallel reports whether batches run on worker units.
func (p Plan) Parallel() bool {
	return p.mode == WorkerPool && p.workers > 1
}

func (p Plan) String() string {
	if !p.Parallel() {
		return "sequential"
	}
	return fmt.Sprintf("pool(workers=%d, partition=%s)", p.workers, p.partition)
}

func (p Plan) log() *zap.Logger {
	if p.logger == nil {
		return zap.NewNop()
	}
	return p.logger
}

// samePool reports whether a pool started for p can serve q unchanged.
func (p Plan) samePool(q Plan) bool {
	return p.Parallel() && q.Parallel() &&
		p.workers == q.workers && p.pinned == q.pinned && p.queueBuffer == q.queueBuffer
}

func (p Plan) newPool() *scheduler.Pool {
	return scheduler.NewPool(p.workers,
		scheduler.WithQueueBuffer(p.queueBuffer),
		scheduler.WithPinning(p.pinned),
		scheduler.WithLogger(p.log()),
	)
}
