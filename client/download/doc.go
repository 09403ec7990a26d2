// Package download streams job results to disk with range-based
// resumption, optional checksum validation, and progress reporting.
//
// # Resumable transfer
//
// [Transfer] appends to an existing partial file by requesting only the
// missing byte range, and returns the total size on disk so the caller
// can decide whether another pass is needed:
//
//	size, err := download.Transfer(ctx, httpClient, href, "data.grib", expected, logger)
//	if size != expected { /* call Transfer again to resume */ }
//
// Most callers should use the higher-level
// [github.com/ecmwf/ecmwf-api-client-go/client] package, whose request
// session drives Transfer in a retry loop until the on-disk size
// matches the server-reported result size.
package download
