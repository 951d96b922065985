package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utkarsh5026/papply/internal/cpu"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrShutdownTimeout = errors.New("error in shutting down: timeout reached")
	ErrPoolClosed      = errors.New("worker pool is closed")
	ErrNotStarted      = errors.New("worker pool not started")
)

// Job is one chunk of work handed to a single worker unit.
//
// Run executes on the unit's goroutine and receives the unit id. Reject is
// called instead of Run when the job could not be queued; exactly one of the
// two is invoked for every dispatched job.
type Job struct {
	Run    func(unit int)
	Reject func(err error)
}

// Option configures a Pool.
type Option func(*Pool)

// WithQueueBuffer sets the per-unit queue capacity.
func WithQueueBuffer(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.buffer = n
		}
	}
}

// WithPinning pins every unit to a CPU core for its lifetime.
func WithPinning(pin bool) Option {
	return func(p *Pool) {
		p.pin = pin
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// Pool is a fixed set of long-lived worker units. Each unit owns one queue
// and runs the jobs it receives one after another, so a job never interleaves
// with another job on the same unit.
//
// A unit whose goroutine terminates abnormally while running a job is
// replaced by a fresh unit reading the same queue.
type Pool struct {
	size   int
	buffer int
	pin    bool
	log    *zap.Logger

	mu    sync.RWMutex
	state *poolState
}

type poolState struct {
	queues   []chan Job
	quit     chan struct{}
	done     chan struct{}
	sendMu   sync.RWMutex
	units    sync.WaitGroup
	started  atomic.Bool
	shutdown atomic.Bool
	next     atomic.Uint64
	lost     atomic.Int64
}

// NewPool creates an unstarted pool of size units. size is clamped to 1.
func NewPool(size int, opts ...Option) *Pool {
	p := &Pool{
		size:   max(size, 1),
		buffer: 1,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size returns the number of worker units.
func (p *Pool) Size() int {
	return p.size
}

// Start launches the worker units.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != nil && p.state.started.Load() {
		return errors.New("pool already started")
	}

	st := &poolState{
		queues: make([]chan Job, p.size),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for i := range st.queues {
		st.queues[i] = make(chan Job, p.buffer)
	}
	st.started.Store(true)
	p.state = st

	for i := range p.size {
		p.spawn(st, i)
	}

	go func() {
		st.units.Wait()
		close(st.done)
	}()

	p.log.Debug("worker pool started", zap.Int("units", p.size), zap.Bool("pinned", p.pin))
	return nil
}

// spawn starts the goroutine for unit id. The WaitGroup slot is taken before
// the goroutine exists so a replacement is counted before its predecessor
// releases its own slot.
func (p *Pool) spawn(st *poolState, id int) {
	st.units.Add(1)
	go p.runUnit(st, id)
}

func (p *Pool) runUnit(st *poolState, id int) {
	exited := false
	defer func() {
		if !exited {
			st.lost.Add(1)
			p.log.Warn("worker unit lost, replacing", zap.Int("unit", id))
			p.spawn(st, id)
		}
		st.units.Done()
	}()

	if p.pin {
		release, err := cpu.Pin(id)
		if err != nil {
			p.log.Debug("cpu pinning failed", zap.Int("unit", id), zap.Error(err))
		}
		defer release()
	}

	for job := range st.queues[id] {
		job.Run(id)
	}
	exited = true
}

// Dispatch queues jobs onto consecutive units, starting after the unit used
// by the previous call. Sends happen concurrently so one busy unit does not
// hold back the others. Jobs that cannot be queued are rejected with the
// cause, and the first such cause is returned.
func (p *Pool) Dispatch(ctx context.Context, jobs []Job) error {
	p.mu.RLock()
	st := p.state
	p.mu.RUnlock()

	if st == nil || !st.started.Load() {
		rejectAll(jobs, ErrNotStarted)
		return ErrNotStarted
	}

	st.sendMu.RLock()
	defer st.sendMu.RUnlock()

	if st.shutdown.Load() {
		rejectAll(jobs, ErrPoolClosed)
		return ErrPoolClosed
	}

	base := st.next.Add(uint64(len(jobs))) - uint64(len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		q := st.queues[(base+uint64(i))%uint64(p.size)]
		g.Go(func() error {
			select {
			case q <- job:
				return nil
			case <-st.quit:
				job.Reject(ErrPoolClosed)
				return ErrPoolClosed
			case <-gctx.Done():
				err := context.Cause(gctx)
				job.Reject(err)
				return err
			}
		})
	}
	return g.Wait()
}

// Lost reports how many units have been replaced since Start.
func (p *Pool) Lost() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state == nil {
		return 0
	}
	return p.state.lost.Load()
}

// Running reports whether the pool has been started and not shut down.
func (p *Pool) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state != nil && p.state.started.Load() && !p.state.shutdown.Load()
}

// Shutdown stops accepting jobs, lets units finish what is already queued
// and waits for them to exit. A zero timeout waits forever.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	st := p.state
	if st == nil || !st.started.Load() {
		p.mu.Unlock()
		return ErrNotStarted
	}
	if !st.shutdown.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return errors.New("pool already shut down")
	}
	p.mu.Unlock()

	close(st.quit)
	st.sendMu.Lock()
	for _, q := range st.queues {
		close(q)
	}
	st.sendMu.Unlock()

	p.log.Debug("worker pool draining", zap.Int("units", p.size))
	return waitUntil(st.done, timeout)
}

func rejectAll(jobs []Job, err error) {
	for _, job := range jobs {
		job.Reject(err)
	}
}

// waitUntil blocks until d is closed or the timeout elapses.
func waitUntil(d <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		<-d
		return nil
	}

	select {
	case <-d:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}
