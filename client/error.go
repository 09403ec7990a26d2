package client

import (
	"errors"
	"fmt"
)

// ErrTooManyRedirects indicates the redirect-following loop exceeded
// its bound without reaching a final response.
var ErrTooManyRedirects = errors.New("too many redirects")

// RetryAfterError is a transient server condition (429, or a 5xx other
// than 501) that the retry wrapper may attempt again.
type RetryAfterError struct {
	Code int
	Body string
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Body)
}

// APIError is an application-level failure: either the server's JSON
// envelope carried an error field, or the call itself could not be
// completed in a way no retry can fix. It is never retried.
//
// Reason holds the server's message verbatim, so callers can match
// specific conditions (e.g. a queue-limit code) and decide to resubmit
// the whole job later.
type APIError struct {
	Reason string
}

func (e *APIError) Error() string {
	return "ecmwf.API error: " + e.Reason
}
