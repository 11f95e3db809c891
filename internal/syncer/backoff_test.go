// ABOUTME: Tests for the retry delay policy
// ABOUTME: Covers exponential growth, the cap, defaults and jitter bounds

package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Exponential(t *testing.T) {
	b := Backoff{Base: time.Second, Max: time.Minute}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, time.Minute},
		{50, time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoff_Defaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, DefaultBackoffBase, b.Delay(1))
	assert.Equal(t, DefaultBackoffMax, b.Delay(100))
}

func TestBackoff_BaseAboveMax(t *testing.T) {
	b := Backoff{Base: time.Hour, Max: time.Minute}
	assert.Equal(t, time.Minute, b.Delay(1))
}

func TestBackoff_JitterBounds(t *testing.T) {
	low := Backoff{Base: 10 * time.Second, Max: time.Hour, Jitter: 0.25, Rand: func() float64 { return 0 }}
	assert.Equal(t, 7500*time.Millisecond, low.Delay(1))

	mid := low
	mid.Rand = func() float64 { return 0.5 }
	assert.Equal(t, 10*time.Second, mid.Delay(1))

	high := low
	high.Rand = func() float64 { return 0.999 }
	d := high.Delay(1)
	assert.Greater(t, d, 12*time.Second)
	assert.LessOrEqual(t, d, 12500*time.Millisecond)
}

func TestBackoff_JitterIsClamped(t *testing.T) {
	b := Backoff{Base: 10 * time.Second, Max: time.Hour, Jitter: 1, Rand: func() float64 { return 0 }}
	assert.Equal(t, 5*time.Second, b.Delay(1), "never jittered down to zero")

	b.Jitter = 3
	b.Rand = func() float64 { return 0.999 }
	assert.LessOrEqual(t, b.Delay(1), 15*time.Second)
}

func TestBackoff_JitterNeverExceedsMax(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second, Jitter: 0.5, Rand: func() float64 { return 0.99 }}
	assert.Equal(t, 10*time.Second, b.Delay(10))
}

func TestBackoff_DefaultRandStaysInRange(t *testing.T) {
	b := Backoff{Base: 4 * time.Second, Max: time.Hour, Jitter: 0.5}
	for range 200 {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 6*time.Second)
	}
}
