// internal/queue/backoff_test.go
package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_Growth(t *testing.T) {
	b := NewExponentialBackoff(time.Second, time.Hour, 2.0, 0)

	assert.Equal(t, time.Second, b.NextDelay(0))
	assert.Equal(t, 2*time.Second, b.NextDelay(1))
	assert.Equal(t, 4*time.Second, b.NextDelay(2))
	assert.Equal(t, 8*time.Second, b.NextDelay(3))
}

func TestExponentialBackoff_CappedAtMax(t *testing.T) {
	b := NewExponentialBackoff(time.Second, time.Hour, 2.0, 0)

	// 2^20 seconds far exceeds an hour.
	assert.Equal(t, time.Hour, b.NextDelay(20))
}

func TestExponentialBackoff_NegativeAttempt(t *testing.T) {
	b := NewExponentialBackoff(time.Second, time.Hour, 2.0, 0)

	assert.Equal(t, time.Second, b.NextDelay(-3))
}

func TestExponentialBackoff_JitterStaysInBounds(t *testing.T) {
	b := NewExponentialBackoff(10*time.Second, time.Hour, 2.0, 0.5)

	for i := 0; i < 100; i++ {
		d := b.NextDelay(0)
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.LessOrEqual(t, d, 15*time.Second)
	}
}

func TestFixedBackoff(t *testing.T) {
	b := &FixedBackoff{Delay: 3 * time.Second}

	assert.Equal(t, 3*time.Second, b.NextDelay(0))
	assert.Equal(t, 3*time.Second, b.NextDelay(9))
}

func TestDefaultBackoff(t *testing.T) {
	b := DefaultBackoff()

	assert.Equal(t, time.Second, b.InitialDelay)
	assert.Equal(t, time.Hour, b.MaxDelay)
}
