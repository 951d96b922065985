package apply

import (
	"context"
	"testing"
	"time"
)

// planConfig is one execution plan the behaviour tests run under.
type planConfig struct {
	name string
	plan Plan
}

// getAllPlans returns every execution strategy worth covering for a given
// worker count.
func getAllPlans(t *testing.T, workers int) []planConfig {
	t.Helper()
	must := func(p Plan, err error) Plan {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected plan error: %v", err)
		}
		return p
	}

	return []planConfig{
		{name: "Sequential", plan: must(NewPlan(Sequential, workers))},
		{name: "PoolRoundRobin", plan: must(NewPlan(WorkerPool, workers))},
		{name: "PoolContiguous", plan: must(NewPlan(WorkerPool, workers, WithPartition(Contiguous)))},
		{name: "PoolUnbuffered", plan: must(NewPlan(WorkerPool, workers, WithQueueBuffer(0)))},
		{name: "PoolPinned", plan: must(NewPlan(WorkerPool, workers, WithPinnedWorkers(true)))},
	}
}

// runPlanTest runs testFunc once per plan in its own session.
func runPlanTest(t *testing.T, workers int, testFunc func(t *testing.T, s *Session)) {
	t.Helper()
	for _, pc := range getAllPlans(t, workers) {
		t.Run(pc.name, func(t *testing.T) {
			s := newTestSession(t, pc.plan)
			testFunc(t, s)
		})
	}
}

func newTestSession(t *testing.T, plan Plan) *Session {
	t.Helper()
	s := NewSession(plan)
	t.Cleanup(func() {
		if err := s.Shutdown(5 * time.Second); err != nil {
			t.Errorf("session shutdown: %v", err)
		}
	})
	return s
}

func mustPlan(t *testing.T, mode Mode, workers int, opts ...PlanOption) Plan {
	t.Helper()
	p, err := NewPlan(mode, workers, opts...)
	if err != nil {
		t.Fatalf("unexpected plan error: %v", err)
	}
	return p
}

func square(_ context.Context, x int, _ Args) (int, error) {
	return x * x, nil
}

func ints(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error(msg)
}
