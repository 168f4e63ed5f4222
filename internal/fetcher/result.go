package fetcher

import "github.com/SiliconLion/sumi/internal/state"

// Result is the outcome of fetching one URL. Exactly one of the
// variants below is returned; callers switch on the concrete type.
type Result interface {
	result()
}

// Success carries a fetched HTML page.
type Success struct {
	// FinalURL is the URL after following redirects.
	FinalURL string
	// StatusCode of the final GET response.
	StatusCode int
	// ContentType header of the final response.
	ContentType string
	// Body is the response body text.
	Body string
	// LastModified header, "" when absent.
	LastModified string
}

// ContentMismatch signals a non-HTML Content-Type.
type ContentMismatch struct {
	ContentType string
}

// HTTPError is a status code that maps directly to a page state.
type HTTPError struct {
	StatusCode int
	State      state.PageState
}

// NetworkError is a transport failure with its mapped page state.
type NetworkError struct {
	Message string
	State   state.PageState
}

// RedirectError signals a redirect loop or an overlong chain.
type RedirectError struct {
	Message string
}

// RedirectToTerminal signals that the redirect chain landed on a
// blacklisted or stubbed domain. The coordinator constructs it when
// re-classifying the final URL; such targets are never crawled.
type RedirectToTerminal struct {
	URL    string
	Reason string
}

func (Success) result()            {}
func (ContentMismatch) result()    {}
func (HTTPError) result()          {}
func (NetworkError) result()       {}
func (RedirectError) result()      {}
func (RedirectToTerminal) result() {}
