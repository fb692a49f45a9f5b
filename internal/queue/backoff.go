// internal/queue/backoff.go
package queue

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the delay before a retry attempt. attempt is
// zero-based: attempt 0 is the delay before the first retry.
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles (or multiplies) the delay per attempt with
// optional jitter, capped at MaxDelay.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0..1, fraction of the delay randomized
}

func NewExponentialBackoff(initial, max time.Duration, multiplier, jitter float64) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   multiplier,
		JitterFactor: jitter,
	}
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt))
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if b.JitterFactor > 0 {
		jitter := delay * b.JitterFactor * (rand.Float64()*2 - 1)
		delay += jitter
		if delay < 0 {
			delay = 0
		}
	}
	return time.Duration(delay)
}

// FixedBackoff waits the same delay for every attempt.
type FixedBackoff struct {
	Delay time.Duration
}

func (b *FixedBackoff) NextDelay(attempt int) time.Duration {
	return b.Delay
}

// DefaultBackoff matches the engine defaults: 1s initial, doubling,
// capped at one hour, 10% jitter.
func DefaultBackoff() *ExponentialBackoff {
	return NewExponentialBackoff(time.Second, time.Hour, 2.0, 0.1)
}
