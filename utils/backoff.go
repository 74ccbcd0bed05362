package utils

import "time"

// BackoffPolicy computes the delay before the next retry of a failed batch:
// Base doubling per failure, capped at Max. With the defaults the curve is
// 1s, 2s, 4s, ... capped at 10s.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{Base: time.Second, Max: 10 * time.Second}
}

// Delay returns the wait before attempting again after the given number of
// consecutive failures: Base * 2^(failures-2), floored at Base and capped
// at Max.
func (p BackoffPolicy) Delay(failures int) time.Duration {
	d := p.Base
	for i := 0; i < failures-2; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	return d
}

// ConsecutiveBreaker halts a batch operation after a threshold of
// consecutive failed batches, so a dead downstream is not hammered for the
// rest of the run. Not safe for concurrent use; each poller invocation
// builds its own.
type ConsecutiveBreaker struct {
	Threshold int
	failures  int
}

func NewConsecutiveBreaker(threshold int) *ConsecutiveBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	return &ConsecutiveBreaker{Threshold: threshold}
}

func (b *ConsecutiveBreaker) RecordSuccess() {
	b.failures = 0
}

func (b *ConsecutiveBreaker) RecordFailure() {
	b.failures++
}

// Tripped reports whether the consecutive-failure threshold was reached.
func (b *ConsecutiveBreaker) Tripped() bool {
	return b.failures >= b.Threshold
}

// Failures returns the current consecutive-failure count.
func (b *ConsecutiveBreaker) Failures() int {
	return b.failures
}
