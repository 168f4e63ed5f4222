package retry

import (
	"github.com/SiliconLion/sumi/pkg/timeutil"
)

// Param holds the parameters for retry logic.
// These parameters are passed from outside (e.g., config) and should not
// be known by the retry handler internally.
type Param struct {
	MaxAttempts  int
	BackoffParam timeutil.BackoffParam
}

// NewParam creates a new Param with the given settings.
func NewParam(maxAttempts int, backoffParam timeutil.BackoffParam) Param {
	return Param{
		MaxAttempts:  maxAttempts,
		BackoffParam: backoffParam,
	}
}

// Result holds the outcome of a retried operation.
type Result[T any] struct {
	value    T
	err      error
	attempts int
}

func NewSuccessResult[T any](value T, attempts int) Result[T] {
	return Result[T]{
		value:    value,
		attempts: attempts,
	}
}

func (r Result[T]) Value() T {
	return r.value
}

func (r Result[T]) Err() error {
	return r.err
}

func (r Result[T]) Attempts() int {
	return r.attempts
}
