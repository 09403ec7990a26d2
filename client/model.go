package client

import (
	"encoding/json"
	"time"
)

// Version is the client library version reported in the session banner.
const Version = "1.6.3"

const (
	// pageLimit is the fixed page size for the server's status message log.
	pageLimit = 500

	// statusComplete is the terminal job status reported by the server.
	statusComplete = "complete"

	// defaultPollInterval applies until the server advises otherwise
	// via a Retry-After header.
	defaultPollInterval = 5 * time.Second

	// Retry policy defaults: 1 initial attempt plus 9 retries, with a
	// fixed inter-attempt delay. No backoff growth.
	defaultRetryTries = 10
	defaultRetryDelay = 60 * time.Second

	// maxErrBodySize caps the amount of response body read when
	// building an error for an unexpected status code.
	maxErrBodySize = 4 << 10 // 4KB

	// maxRedirects bounds the manual redirect-following loop.
	maxRedirects = 10
)

// Result is a decoded JSON envelope returned by the Web API. Numbers
// are decoded as [json.Number] because result sizes routinely exceed
// float64's integer precision.
type Result map[string]any

// Size returns the server-reported result size in bytes, or -1 when
// absent.
func (r Result) Size() int64 {
	switch v := r["size"].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}

	return -1
}

// Href returns the result's download URL, relative or absolute, or ""
// when absent.
func (r Result) Href() string {
	href, _ := r["href"].(string)
	return href
}

// Name returns the server-assigned job identifier, or "" when absent.
func (r Result) Name() string {
	name, _ := r["name"].(string)
	return name
}
