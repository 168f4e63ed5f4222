package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoffDelay(t *testing.T) {
	param := NewBackoffParam(5*time.Second, 2.0, 60*time.Second)

	assert.Equal(t, 5*time.Second, ExponentialBackoffDelay(1, param))
	assert.Equal(t, 10*time.Second, ExponentialBackoffDelay(2, param))
	assert.Equal(t, 20*time.Second, ExponentialBackoffDelay(3, param))
	assert.Equal(t, 40*time.Second, ExponentialBackoffDelay(4, param))
}

func TestExponentialBackoffDelayCapped(t *testing.T) {
	param := NewBackoffParam(5*time.Second, 2.0, 15*time.Second)

	assert.Equal(t, 5*time.Second, ExponentialBackoffDelay(1, param))
	assert.Equal(t, 10*time.Second, ExponentialBackoffDelay(2, param))
	assert.Equal(t, 15*time.Second, ExponentialBackoffDelay(3, param))
	assert.Equal(t, 15*time.Second, ExponentialBackoffDelay(10, param))
}

func TestExponentialBackoffDelayClampsAttempt(t *testing.T) {
	param := NewBackoffParam(time.Second, 2.0, time.Minute)
	assert.Equal(t, time.Second, ExponentialBackoffDelay(0, param))
	assert.Equal(t, time.Second, ExponentialBackoffDelay(-3, param))
}

func TestMaxDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, MaxDuration([]time.Duration{time.Second, 3 * time.Second, 2 * time.Second}))
	assert.Equal(t, time.Duration(0), MaxDuration(nil))
}

func TestDurationPtr(t *testing.T) {
	d := DurationPtr(time.Second)
	assert.Equal(t, time.Second, *d)
}

func TestRealSleeperSleeps(t *testing.T) {
	sleeper := NewRealSleeper()
	start := time.Now()
	sleeper.Sleep(10 * time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
