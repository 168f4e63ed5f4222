package timeutil

import (
	"math"
	"time"
)

// ExponentialBackoffDelay computes the delay before the given retry attempt.
// Attempt numbering starts at 1; the first retry waits InitialDuration, each
// subsequent retry multiplies by Multiplier, capped at MaxDuration.
func ExponentialBackoffDelay(attempt int, param BackoffParam) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exponent := float64(attempt - 1)
	delay := float64(param.initialDuration) * math.Pow(param.multiplier, exponent)
	if delay > float64(param.maxDuration) {
		delay = float64(param.maxDuration)
	}
	return time.Duration(delay)
}

// MaxDuration returns the largest of the given durations.
func MaxDuration(durations []time.Duration) time.Duration {
	var max time.Duration
	for _, d := range durations {
		if d > max {
			max = d
		}
	}
	return max
}

// DurationPtr is a helper function to create a pointer to a time.Duration
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}
