package apply

import (
	"fmt"
	"time"

	"github.com/utkarsh5026/papply/internal/algorithms"
	"github.com/utkarsh5026/papply/internal/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BackoffType selects the delay policy between retries.
type BackoffType = algorithms.BackoffType

const (
	BackoffExponential = algorithms.BackoffExponential
	BackoffConstant    = algorithms.BackoffConstant
	BackoffJittered    = algorithms.BackoffJittered
)

const defaultJitter = 0.2

// CallOption configures a single Apply, Defer or variant call.
type CallOption func(*callConfig)

type callConfig struct {
	args     Args
	arity    int
	failFast *bool

	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	backoff      BackoffType
	rateLimiter  *rate.Limiter

	// hooks and affinity are generic over the item type; they are stored
	// untyped and checked when the call's types are known.
	beforeTaskStart any
	onTaskEnd       any
	onRetry         any
	affinity        any

	logger *zap.Logger
}

// WithArgs sets the fixed arguments passed to every invocation.
func WithArgs(args Args) CallOption {
	return func(c *callConfig) {
		c.args = args
	}
}

// WithArity declares how many varying arguments the function expects per
// item. Items whose cardinality differs fail with ErrInvalidArity before
// anything runs.
func WithArity(n int) CallOption {
	return func(c *callConfig) {
		c.arity = n
	}
}

// WithFailFast overrides the plan's fail-fast setting for this call.
func WithFailFast(failFast bool) CallOption {
	return func(c *callConfig) {
		c.failFast = &failFast
	}
}

// WithRetryPolicy retries a failing item up to maxAttempts times in total,
// waiting initialDelay before the first retry.
func WithRetryPolicy(maxAttempts int, initialDelay time.Duration) CallOption {
	return func(c *callConfig) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if initialDelay > 0 {
			c.initialDelay = initialDelay
		}
	}
}

// WithBackoff sets how the retry delay grows. maxDelay caps it; zero means
// no cap.
func WithBackoff(kind BackoffType, maxDelay time.Duration) CallOption {
	return func(c *callConfig) {
		c.backoff = kind
		c.maxDelay = maxDelay
	}
}

// WithRateLimit caps how many items start per second across the batch.
//
// Example:
//
//	WithRateLimit(10, 5) // 10 items/sec, bursts of 5
func WithRateLimit(perSecond float64, burst int) CallOption {
	return func(c *callConfig) {
		if perSecond > 0 && burst > 0 {
			c.rateLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithLogger sets the logger for this call, replacing the plan's.
func WithLogger(l *zap.Logger) CallOption {
	return func(c *callConfig) {
		c.logger = l
	}
}

// WithBeforeTaskStart registers a hook called before an item is processed.
// T must match the call's item type.
func WithBeforeTaskStart[T any](fn func(item T)) CallOption {
	return func(c *callConfig) {
		c.beforeTaskStart = fn
	}
}

// WithOnTaskEnd registers a hook called once an item has its final outcome.
func WithOnTaskEnd[T, R any](fn func(item T, result R, err error)) CallOption {
	return func(c *callConfig) {
		c.onTaskEnd = fn
	}
}

// WithOnRetry registers a hook called before every retry of an item.
func WithOnRetry[T any](fn func(item T, attempt int, err error)) CallOption {
	return func(c *callConfig) {
		c.onRetry = fn
	}
}

// WithAffinity routes items by key: items with equal keys always run on the
// same worker unit, in input order. It replaces the plan's partition.
func WithAffinity[T any](key func(item T) string) CallOption {
	return func(c *callConfig) {
		c.affinity = key
	}
}

// execConfig is a callConfig resolved against a plan and the call's types.
type execConfig[T, R any] struct {
	args      Args
	arity     int
	failFast  bool
	partition Partition
	affinity  func(T) string
	runner    *scheduler.RunnerConfig[T, R]
	log       *zap.Logger
}

func collect(opts []CallOption) *callConfig {
	c := &callConfig{maxAttempts: 1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// createConfig resolves opts for a call of Func[T, R] under plan. It panics
// when a hook was registered for different types, as that is a programming
// error at the call site.
func createConfig[T, R any](plan Plan, opts []CallOption) *execConfig[T, R] {
	c := collect(opts)

	ec := &execConfig[T, R]{
		args:      c.args,
		arity:     c.arity,
		failFast:  plan.FailFast(),
		partition: plan.Partition(),
		log:       plan.log(),
		runner: &scheduler.RunnerConfig[T, R]{
			MaxAttempts: c.maxAttempts,
			RateLimiter: c.rateLimiter,
		},
	}
	if c.failFast != nil {
		ec.failFast = *c.failFast
	}
	if c.logger != nil {
		ec.log = c.logger
	}
	if c.maxAttempts > 1 && c.initialDelay > 0 {
		ec.runner.Backoff = algorithms.NewBackoff(c.backoff, c.initialDelay, c.maxDelay, defaultJitter)
	}

	var zeroT T
	var zeroR R
	if c.beforeTaskStart != nil {
		fn, ok := c.beforeTaskStart.(func(T))
		if !ok {
			panic(fmt.Sprintf("WithBeforeTaskStart hook has type %T, call processes items of type %T",
				c.beforeTaskStart, zeroT))
		}
		ec.runner.BeforeTaskStart = fn
	}
	if c.onTaskEnd != nil {
		fn, ok := c.onTaskEnd.(func(T, R, error))
		if !ok {
			panic(fmt.Sprintf("WithOnTaskEnd hook has type %T, call processes %T -> %T",
				c.onTaskEnd, zeroT, zeroR))
		}
		ec.runner.OnTaskEnd = fn
	}
	if c.onRetry != nil {
		fn, ok := c.onRetry.(func(T, int, error))
		if !ok {
			panic(fmt.Sprintf("WithOnRetry hook has type %T, call processes items of type %T",
				c.onRetry, zeroT))
		}
		ec.runner.OnRetry = fn
	}
	if c.affinity != nil {
		fn, ok := c.affinity.(func(T) string)
		if !ok {
			panic(fmt.Sprintf("WithAffinity key has type %T, call processes items of type %T",
				c.affinity, zeroT))
		}
		ec.affinity = fn
	}
	return ec
}
