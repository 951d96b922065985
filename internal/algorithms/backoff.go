// Package algorithms holds the retry delay policies used between attempts of
// a failing item.
package algorithms

import (
	"math/rand/v2"
	"time"
)

// maxShift caps the exponent so 1<<attempt never overflows.
const maxShift = 62

// BackoffType selects the retry delay policy.
type BackoffType int

const (
	// BackoffExponential doubles the delay after every failed attempt (default).
	BackoffExponential BackoffType = iota
	// BackoffConstant waits the initial delay between every attempt.
	BackoffConstant
	// BackoffJittered is exponential with ±jitter applied to each delay.
	BackoffJittered
)

func (b BackoffType) String() string {
	switch b {
	case BackoffConstant:
		return "constant"
	case BackoffJittered:
		return "jittered"
	default:
		return "exponential"
	}
}

// Backoff computes the wait before a retry.
//
// Implementations are stateless so a single value can be shared by every
// worker unit of a batch.
type Backoff interface {
	// Delay returns the wait before retry number retry (0 = first retry).
	Delay(retry int) time.Duration
}

// NewBackoff builds the policy for kind. A non-positive maxDelay means no cap.
func NewBackoff(kind BackoffType, initial, maxDelay time.Duration, jitter float64) Backoff {
	if maxDelay <= 0 {
		maxDelay = time.Duration(1<<63 - 1)
	}
	switch kind {
	case BackoffConstant:
		return constant{delay: min(initial, maxDelay)}
	case BackoffJittered:
		return jittered{base: exponential{initial: initial, max: maxDelay}, factor: clamp(jitter, 0, 1)}
	default:
		return exponential{initial: initial, max: maxDelay}
	}
}

type constant struct{ delay time.Duration }

func (c constant) Delay(retry int) time.Duration {
	if retry < 0 {
		return 0
	}
	return c.delay
}

type exponential struct{ initial, max time.Duration }

// Delay returns initial * 2^retry, capped at max.
func (e exponential) Delay(retry int) time.Duration {
	if retry < 0 || e.initial <= 0 {
		return 0
	}
	if retry >= maxShift {
		return e.max
	}
	d := e.initial * time.Duration(int64(1)<<uint(retry))
	if d > e.max || d < 0 || d/time.Duration(int64(1)<<uint(retry)) != e.initial {
		return e.max
	}
	return d
}

// jittered spreads concurrent retries so failing items of one batch do not
// hit a shared dependency in lockstep.
type jittered struct {
	base   exponential
	factor float64
}

func (j jittered) Delay(retry int) time.Duration {
	d := j.base.Delay(retry)
	if d == 0 || j.factor == 0 {
		return d
	}
	// #nosec G404 -- jitter does not need a cryptographic source
	m := 1 + (rand.Float64()*2-1)*j.factor
	return clamp(time.Duration(float64(d)*m), 0, j.base.max)
}

func clamp[N ~int64 | ~float64](v, lo, hi N) N {
	return max(lo, min(v, hi))
}
