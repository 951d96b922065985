package apply

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/utkarsh5026/papply/internal/scheduler"
	"go.uber.org/zap"
)

// Session holds the execution plan shared by every call made through it
// and, while the plan is a WorkerPool plan, the worker units serving it.
// Units are started on the first batch that needs them and stopped when the
// plan is replaced or the session is shut down.
//
// Replacing the plan while a batch is in flight is safe for memory but its
// outcome is unspecified: callers must serialize plan changes with their own
// calls.
type Session struct {
	id string

	mu   sync.Mutex
	plan Plan
	pool *scheduler.Pool
	lost int64
}

// NewSession creates a session using plan.
func NewSession(plan Plan) *Session {
	s := &Session{id: uuid.NewString(), plan: plan}
	plan.log().Debug("session created", zap.String("session", s.id), zap.Stringer("plan", plan))
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Plan returns the current plan.
func (s *Session) Plan() Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// Use replaces the plan. Running worker units are stopped, after finishing
// the work already handed to them, unless the new plan needs an identical
// pool.
func (s *Session) Use(plan Plan) error {
	s.mu.Lock()
	old := s.pool
	if old != nil && s.plan.samePool(plan) {
		old = nil
	} else {
		s.detach()
	}
	s.plan = plan
	s.mu.Unlock()

	plan.log().Debug("session plan replaced", zap.String("session", s.id), zap.Stringer("plan", plan))
	if old != nil {
		return old.Shutdown(0)
	}
	return nil
}

// Shutdown stops the worker units and resets the session to a sequential
// plan. A zero timeout waits until every unit has exited.
func (s *Session) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	old := s.pool
	s.detach()
	log := s.plan.log()
	s.plan = SequentialPlan()
	s.mu.Unlock()

	if old == nil {
		return nil
	}
	log.Debug("session shutting down", zap.String("session", s.id))
	return old.Shutdown(timeout)
}

// Active reports whether worker units are currently running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool != nil && s.pool.Running()
}

// LostWorkers reports how many worker units terminated abnormally and were
// replaced over the life of the session.
func (s *Session) LostWorkers() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.lost
	if s.pool != nil {
		n += s.pool.Lost()
	}
	return n
}

// detach forgets the current pool. Callers hold s.mu.
func (s *Session) detach() {
	if s.pool != nil {
		s.lost += s.pool.Lost()
		s.pool = nil
	}
}

// acquire returns the plan to run a batch under and, for parallel plans,
// the running pool, starting it if needed.
func (s *Session) acquire() (Plan, *scheduler.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.plan.Parallel() {
		return s.plan, nil, nil
	}
	if s.pool == nil {
		p := s.plan.newPool()
		if err := p.Start(); err != nil {
			return s.plan, nil, err
		}
		s.pool = p
		s.plan.log().Debug("session worker units started",
			zap.String("session", s.id), zap.Int("workers", s.plan.Workers()))
	}
	return s.plan, s.pool, nil
}

var defaultSession = NewSession(SequentialPlan())

// Default returns the process-wide session used by Apply, Defer and the
// other package-level helpers.
func Default() *Session { return defaultSession }

// Use installs plan as the process-wide plan.
func Use(plan Plan) error { return defaultSession.Use(plan) }

// CurrentPlan returns the process-wide plan. It is sequential until Use is
// called.
func CurrentPlan() Plan { return defaultSession.Plan() }

// Shutdown ends the process-wide session's worker units.
func Shutdown(timeout time.Duration) error { return defaultSession.Shutdown(timeout) }
