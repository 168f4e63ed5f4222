package urlkit

import "errors"

var ErrMalformedURL = errors.New("malformed URL")
var ErrInvalidScheme = errors.New("only http and https schemes are supported")
var ErrMissingDomain = errors.New("URL has no host")
