// ABOUTME: Retry delay policy for failed deliveries
// ABOUTME: Exponential growth from a base, capped, with symmetric jitter

package syncer

import (
	"math/rand/v2"
	"time"
)

// Defaults for a zero Backoff
const (
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffMax  = 5 * time.Minute
)

// MaxJitter bounds Backoff.Jitter so a jittered delay is at least half the
// un-jittered one.
const MaxJitter = 0.5

// Backoff computes the wait before the next delivery attempt.
//
// The un-jittered delay for attempt n (1-based) is Base * 2^(n-1), capped at
// Max. Jitter j in [0, MaxJitter] spreads it uniformly over [d*(1-j), d*(1+j)],
// and the result is capped at Max again. Larger jitter is clamped to MaxJitter.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	// Rand returns a value in [0, 1). nil uses math/rand/v2.
	Rand func() float64
}

// Delay returns the wait after the given failed attempt number.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = DefaultBackoffMax
	}
	if base > maxDelay {
		base = maxDelay
	}

	d := base
	for i := 1; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}

	j := min(max(b.Jitter, 0), MaxJitter)
	if j > 0 {
		rnd := b.Rand
		if rnd == nil {
			rnd = rand.Float64
		}
		factor := 1 - j + 2*j*rnd()
		d = time.Duration(float64(d) * factor)
		if d > maxDelay {
			d = maxDelay
		}
	}
	return d
}
