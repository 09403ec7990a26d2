// Package client implements the request/poll/download protocol engine
// of the ECMWF Web API.
//
// # Lifecycle
//
// A [Session] drives one job end to end. It submits the request, polls
// the server-assigned location until the job completes, downloads the
// result with range-based resumption, and deletes the remote artifact:
//
//	sess, err := client.NewSession(ctx, key, "datasets/tigge")
//	result, err := sess.Execute(ctx, request, "data.grib")
//
// The underlying [Connection] exposes the protocol primitives (Call,
// Wait, Ready, Result, Cleanup) for callers that need finer control.
//
// # Failure handling
//
// Every call runs under a uniform retry policy: rate-limit and
// server-busy responses (429, 5xx except 501) and transport-level
// failures are retried on a fixed delay, while application errors
// surface immediately as [*APIError] with the server's message intact.
// See [WithRetryPolicy] to adjust the budget.
//
// Most callers should use the facades in the parent
// [github.com/ecmwf/ecmwf-api-client-go] package, which resolve
// credentials and route dataset and service requests here.
package client
