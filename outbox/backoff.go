package outbox

import (
	"math"
	"math/rand"
	"time"
)

const (
	defaultRetryBase = time.Second
	defaultRetryMax  = 5 * time.Minute
	maxBackoffShift  = 30
)

// RetryBackoff computes how long a failed record waits before it can be claimed again.
// failCount is the counter value after the failure was recorded (1 for the first failure).
type RetryBackoff func(failCount int) time.Duration

// ExponentialBackoff returns base * 2^(failCount-1), capped at max.
// With jitter enabled the delay is drawn uniformly from [0, delay).
// A non-positive base disables the delay, making failed rows immediately claimable.
// A non-positive max leaves the delay uncapped; it saturates instead of overflowing.
func ExponentialBackoff(base, max time.Duration, jitter bool) RetryBackoff {
	return func(failCount int) time.Duration {
		if base <= 0 {
			return 0
		}
		shift := failCount - 1
		if shift < 0 {
			shift = 0
		}
		if shift > maxBackoffShift {
			shift = maxBackoffShift
		}

		delay := time.Duration(math.MaxInt64)
		if base <= time.Duration(math.MaxInt64>>shift) {
			delay = base << shift
		}
		if max > 0 && delay > max {
			delay = max
		}
		if jitter && delay > 0 {
			delay = time.Duration(rand.Int63n(int64(delay)))
		}

		return delay
	}
}

// NoBackoff leaves available_at unchanged so failed rows are claimable on the next poll.
func NoBackoff(int) time.Duration {
	return 0
}
