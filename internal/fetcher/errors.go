package fetcher

import "fmt"

type FetchErrorCause string

const (
	ErrCauseTimeout        FetchErrorCause = "timeout"
	ErrCauseConnectFailure FetchErrorCause = "connect failure"
	ErrCauseTLSFailure     FetchErrorCause = "tls failure"
	ErrCauseServerError    FetchErrorCause = "5xx"
	ErrCauseReadBodyError  FetchErrorCause = "failed to read response body"
	ErrCausePreFetch       FetchErrorCause = "failed before making request"
	ErrCauseNetworkFailure FetchErrorCause = "network failure"
)

// FetchError classifies one failed request attempt. The Retryable flag
// drives the retry handler: 5xx, timeouts, and connect errors are
// retried; everything else is final.
type FetchError struct {
	Message    string
	Retryable  bool
	Cause      FetchErrorCause
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error: %s", e.Message)
}

// IsRetryable returns whether this error is retryable
func (e *FetchError) IsRetryable() bool {
	return e.Retryable
}
