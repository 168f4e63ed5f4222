package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/SiliconLion/sumi/internal/config"
	"github.com/SiliconLion/sumi/internal/state"
	"github.com/SiliconLion/sumi/pkg/retry"
	"github.com/SiliconLion/sumi/pkg/timeutil"
)

/*
Fetcher

Responsibilities:
- Build the HTTP client carrying the crawler User-Agent
- HEAD then GET, with redirects handled explicitly
- Bound redirect chains and detect loops
- Retry transient failures with exponential backoff
- Map every failure to a page state

The fetcher never parses content; it returns body text and metadata.
*/

const (
	requestTimeout = 30 * time.Second
	connectTimeout = 10 * time.Second
	maxRedirects   = 10

	// retryBaseDelay/retryMultiplier/maxRetries define the backoff for
	// retryable failures: 5s, 10s, 20s.
	retryBaseDelay  = 5 * time.Second
	retryMultiplier = 2.0
	maxRetries      = 3
)

// Client fetches URLs. It is safe to share by reference across
// concurrent pipelines; the underlying http.Client is thread-safe.
type Client struct {
	httpClient *http.Client
	userAgent  string
	retryParam retry.Param
	sleeper    timeutil.Sleeper
	logger     zerolog.Logger
}

// NewClient builds a Client with the configured user agent, a 30s
// request timeout, a 10s connect timeout, automatic decompression, and
// redirect following disabled.
func NewClient(ua config.UserAgent, logger zerolog.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: connectTimeout,
	}
	httpClient := &http.Client{
		Timeout:   requestTimeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return newClient(ua.String(), httpClient, timeutil.NewRealSleeper(), logger)
}

// NewClientWithHTTP builds a Client around a custom HTTP client and
// sleeper. This is useful for testing.
func NewClientWithHTTP(userAgent string, httpClient *http.Client, sleeper timeutil.Sleeper, logger zerolog.Logger) *Client {
	return newClient(userAgent, httpClient, sleeper, logger)
}

func newClient(userAgent string, httpClient *http.Client, sleeper timeutil.Sleeper, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		userAgent:  userAgent,
		retryParam: retry.NewParam(
			maxRetries+1,
			timeutil.NewBackoffParam(retryBaseDelay, retryMultiplier, retryBaseDelay<<maxRetries),
		),
		sleeper: sleeper,
		logger:  logger.With().Str("component", "fetcher").Logger(),
	}
}

// UserAgent returns the User-Agent header value sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// FetchURL fetches a single URL:
//
//  1. HEAD to check the Content-Type; redirects are resolved against the
//     current URL and followed explicitly, bounded at 10 hops with loop
//     detection
//  2. 4xx statuses map to page states (404 DeadLink, 429 RateLimited,
//     otherwise Failed); 5xx consumes the retry budget
//  3. A present non-HTML Content-Type short-circuits to ContentMismatch
//  4. GET with the same redirect handling; the body is read as text
func (c *Client) FetchURL(ctx context.Context, rawURL string) Result {
	return c.fetch(ctx, rawURL, nil)
}

func (c *Client) fetch(ctx context.Context, rawURL string, chain []string) Result {
	for _, visited := range chain {
		if visited == rawURL {
			return RedirectError{Message: fmt.Sprintf("redirect loop detected at %s", rawURL)}
		}
	}
	if len(chain) > maxRedirects {
		return RedirectError{Message: fmt.Sprintf("redirect chain exceeded %d hops", maxRedirects)}
	}
	chain = append(chain, rawURL)

	head, errResult := c.doWithRetry(ctx, http.MethodHead, rawURL, false)
	if errResult != nil {
		return errResult
	}

	if head.statusCode >= 300 && head.statusCode < 400 {
		return c.followRedirect(ctx, rawURL, head, chain)
	}
	if errResult := mapClientError(head.statusCode); errResult != nil {
		return errResult
	}

	if ct := head.headers.Get("Content-Type"); ct != "" && !isHTML(ct) {
		return ContentMismatch{ContentType: ct}
	}

	get, errResult := c.doWithRetry(ctx, http.MethodGet, rawURL, true)
	if errResult != nil {
		return errResult
	}

	if get.statusCode >= 300 && get.statusCode < 400 {
		return c.followRedirect(ctx, rawURL, get, chain)
	}
	if errResult := mapClientError(get.statusCode); errResult != nil {
		return errResult
	}

	contentType := get.headers.Get("Content-Type")
	if contentType != "" && !isHTML(contentType) {
		return ContentMismatch{ContentType: contentType}
	}

	return Success{
		FinalURL:     rawURL,
		StatusCode:   get.statusCode,
		ContentType:  contentType,
		Body:         get.body,
		LastModified: get.headers.Get("Last-Modified"),
	}
}

func (c *Client) followRedirect(ctx context.Context, currentURL string, resp *response, chain []string) Result {
	location := resp.headers.Get("Location")
	if location == "" {
		return RedirectError{Message: fmt.Sprintf("status %d without a Location header", resp.statusCode)}
	}
	base, err := url.Parse(currentURL)
	if err != nil {
		return RedirectError{Message: fmt.Sprintf("unparseable redirect base %s", currentURL)}
	}
	target, err := base.Parse(location)
	if err != nil {
		return RedirectError{Message: fmt.Sprintf("unparseable redirect target %q", location)}
	}
	c.logger.Debug().Str("from", currentURL).Str("to", target.String()).Int("status", resp.statusCode).Msg("following redirect")
	return c.fetch(ctx, target.String(), chain)
}

// mapClientError translates a 4xx status into its Result, or nil for
// non-4xx statuses.
func mapClientError(statusCode int) Result {
	switch {
	case statusCode == http.StatusNotFound:
		return HTTPError{StatusCode: statusCode, State: state.DeadLink}
	case statusCode == http.StatusTooManyRequests:
		return HTTPError{StatusCode: statusCode, State: state.RateLimited}
	case statusCode >= 400 && statusCode < 500:
		return HTTPError{StatusCode: statusCode, State: state.Failed}
	}
	return nil
}

func isHTML(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "text/html")
}

// response is the per-request data the fetch state machine consumes.
type response struct {
	statusCode int
	headers    http.Header
	body       string
}

// doWithRetry issues one request, retrying retryable failures. On final
// failure it returns a non-nil Result describing the mapped state.
func (c *Client) doWithRetry(ctx context.Context, method, rawURL string, readBody bool) (*response, Result) {
	result := retry.Retry(c.retryParam, c.sleeper, func() (*response, error) {
		resp, fetchErr := c.do(ctx, method, rawURL, readBody)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return resp, nil
	})

	if err := result.Err(); err != nil {
		if result.Attempts() > 1 {
			c.logger.Debug().Str("url", rawURL).Str("method", method).Int("attempts", result.Attempts()).Msg("retries exhausted")
		}
		return nil, mapFetchFailure(err)
	}
	return result.Value(), nil
}

// mapFetchFailure converts the terminal error of a request (possibly a
// retry exhaustion wrapping the last attempt's error) to a Result.
func mapFetchFailure(err error) Result {
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		return NetworkError{Message: err.Error(), State: state.Failed}
	}

	switch fetchErr.Cause {
	case ErrCauseTimeout:
		return NetworkError{Message: fetchErr.Message, State: state.Unreachable}
	case ErrCauseConnectFailure:
		return NetworkError{Message: fetchErr.Message, State: state.Unreachable}
	case ErrCauseTLSFailure:
		return NetworkError{Message: fetchErr.Message, State: state.Unreachable}
	case ErrCauseServerError:
		return HTTPError{StatusCode: fetchErr.StatusCode, State: state.Failed}
	default:
		return NetworkError{Message: fetchErr.Message, State: state.Failed}
	}
}

// do performs a single attempt. 5xx responses and transport failures
// come back as *FetchError so the retry handler can classify them;
// everything else is a response.
func (c *Client) do(ctx context.Context, method, rawURL string, readBody bool) (*response, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, &FetchError{
			Message:   fmt.Sprintf("failed to build request: %v", err),
			Retryable: false,
			Cause:     ErrCausePreFetch,
		}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &FetchError{
			Message:    fmt.Sprintf("server error (%d) for %s", resp.StatusCode, rawURL),
			Retryable:  true,
			Cause:      ErrCauseServerError,
			StatusCode: resp.StatusCode,
		}
	}

	var body string
	if readBody && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &FetchError{
				Message:   fmt.Sprintf("failed to read body of %s: %v", rawURL, err),
				Retryable: true,
				Cause:     ErrCauseReadBodyError,
			}
		}
		body = string(data)
	}

	return &response{
		statusCode: resp.StatusCode,
		headers:    resp.Header,
		body:       body,
	}, nil
}

// classifyTransportError sorts a transport failure into timeout,
// connect, TLS, or generic network failure. Timeouts and connect
// errors are retryable; TLS errors are not.
func classifyTransportError(err error) *FetchError {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &FetchError{
			Message:   "request timeout",
			Retryable: true,
			Cause:     ErrCauseTimeout,
		}
	}

	if isTLSError(err) {
		return &FetchError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseTLSFailure,
		}
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return &FetchError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCauseConnectFailure,
		}
	}

	return &FetchError{
		Message:   err.Error(),
		Retryable: false,
		Cause:     ErrCauseNetworkFailure,
	}
}

func isTLSError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	var hostnameErr x509.HostnameError
	var authorityErr x509.UnknownAuthorityError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &invalidErr)
}
