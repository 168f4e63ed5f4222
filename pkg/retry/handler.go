package retry

import (
	"fmt"

	"github.com/SiliconLion/sumi/pkg/timeutil"
)

// Retry executes the provided function with retry logic.
// It calls the function at most MaxAttempts times in total, applying
// exponential backoff between attempts. Only retryable errors trigger a retry.
//
// Type parameter T represents the return type of the function being retried.
// Returns a Result containing the value (if successful), error (if failed),
// and the number of attempts made.
func Retry[T any](param Param, sleeper timeutil.Sleeper, fn func() (T, error)) Result[T] {
	var lastErr error
	var zero T

	if param.MaxAttempts < 1 {
		return Result[T]{
			value: zero,
			err: &Error{
				Message: "max attempt cannot be 0",
				Cause:   ErrZeroAttempt,
			},
			attempts: 0,
		}
	}

	for attempt := 1; attempt <= param.MaxAttempts; attempt++ {
		result, err := fn()

		if err == nil {
			return NewSuccessResult(result, attempt)
		}

		lastErr = err

		if !isErrorRetryable(err) {
			return Result[T]{
				value:    zero,
				err:      err,
				attempts: attempt,
			}
		}

		if attempt == param.MaxAttempts {
			break
		}

		backoffDelay := timeutil.ExponentialBackoffDelay(attempt, param.BackoffParam)
		sleeper.Sleep(backoffDelay)
	}

	return Result[T]{
		value: zero,
		err: &Error{
			Message: fmt.Sprintf("exhausted %d attempts. Last error: %v", param.MaxAttempts, lastErr),
			Cause:   ErrExhaustedAttempts,
			Last:    lastErr,
		},
		attempts: param.MaxAttempts,
	}
}

// isErrorRetryable checks if an error should be retried.
// Errors advertise retryability through the IsRetryable method;
// anything else is treated as final.
func isErrorRetryable(err error) bool {
	type hasRetryable interface {
		IsRetryable() bool
	}

	if r, ok := err.(hasRetryable); ok {
		return r.IsRetryable()
	}

	return false
}
