package client

import "net/http"

// redirectAction is the transport's verdict on a response, decided
// before the body is interpreted.
type redirectAction int

const (
	// acceptResponse hands the response to the caller as-is.
	acceptResponse redirectAction = iota
	// followRedirect re-issues the request, method and body intact,
	// against the Location header.
	followRedirect
	// terminalRedirect stops following: a 303 is the server's way of
	// handing over the final result, not a hop to take.
	terminalRedirect
)

// classifyRedirect maps (status, Location presence) to the action the
// transport takes. 301/302 preserve the original method and body so a
// redirected POST stays a POST; without a Location there is nowhere to
// go and the response is accepted as-is.
func classifyRedirect(status int, hasLocation bool) redirectAction {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound:
		if hasLocation {
			return followRedirect
		}
		return acceptResponse
	case http.StatusSeeOther:
		return terminalRedirect
	default:
		return acceptResponse
	}
}
