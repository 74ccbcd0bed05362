package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayCurve(t *testing.T) {
	p := DefaultBackoff()

	// First and second failures both wait the base delay
	assert.Equal(t, 1*time.Second, p.Delay(1))
	assert.Equal(t, 1*time.Second, p.Delay(2))
	assert.Equal(t, 2*time.Second, p.Delay(3))
	assert.Equal(t, 4*time.Second, p.Delay(4))
	assert.Equal(t, 8*time.Second, p.Delay(5))

	// Capped at the maximum from then on
	assert.Equal(t, 10*time.Second, p.Delay(6))
	assert.Equal(t, 10*time.Second, p.Delay(12))
}

func TestBackoffDelayNeverBelowBase(t *testing.T) {
	p := BackoffPolicy{Base: 500 * time.Millisecond, Max: 5 * time.Second}

	assert.Equal(t, p.Base, p.Delay(0))
	assert.Equal(t, p.Base, p.Delay(-1))
}

func TestConsecutiveBreakerTripsAtThreshold(t *testing.T) {
	b := NewConsecutiveBreaker(3)

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.Tripped())

	b.RecordFailure()
	assert.True(t, b.Tripped())
	assert.Equal(t, 3, b.Failures())
}

func TestConsecutiveBreakerResetOnSuccess(t *testing.T) {
	b := NewConsecutiveBreaker(3)

	// Interleaved successes keep the count from ever reaching the threshold
	for i := 0; i < 10; i++ {
		b.RecordFailure()
		b.RecordFailure()
		b.RecordSuccess()
	}
	assert.False(t, b.Tripped())
	assert.Equal(t, 0, b.Failures())
}
