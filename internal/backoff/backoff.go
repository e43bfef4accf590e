// Package backoff provides retry delay strategies for pipeline chunks.
package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before retry attempt n (1-indexed: attempt 1
// is the first retry after the initial failure).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant waits the same interval before every retry.
type Constant struct {
	Interval time.Duration
}

func (c Constant) Delay(int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay each attempt, capped at Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func (e Exponential) Delay(attempt int) time.Duration {
	return capped(e.Initial, e.Max, attempt)
}

// Jitter is Exponential with full jitter: a random delay in [0, cap].
type Jitter struct {
	Initial time.Duration
	Max     time.Duration
}

func (j Jitter) Delay(attempt int) time.Duration {
	return time.Duration(rand.Float64() * float64(capped(j.Initial, j.Max, attempt))) //nolint:gosec // jitter only
}

func capped(initial, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// Default is a one second constant delay.
func Default() Strategy {
	return Constant{Interval: time.Second}
}

// Parse builds a strategy by name: constant, exponential or jitter.
func Parse(name string, initial, maxDelay time.Duration) (Strategy, error) {
	switch name {
	case "", "constant", "fixed":
		return Constant{Interval: initial}, nil
	case "exponential":
		return Exponential{Initial: initial, Max: maxDelay}, nil
	case "jitter":
		return Jitter{Initial: initial, Max: maxDelay}, nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy %q", name)
	}
}
