package client

import (
	"github.com/ecmwf/ecmwf-api-client-go/client/download"
)

// ————————————————————————————————————————————————————————————————————
// Type aliases – re-export user-facing types from [download].
// ————————————————————————————————————————————————————————————————————

type (
	// TransferError wraps a sentinel error with additional detail.
	TransferError = download.Error

	// TransferStatusError is returned when the result store responds
	// with anything other than 200 or 206.
	TransferStatusError = download.StatusError
)

// ————————————————————————————————————————————————————————————————————
// Sentinel errors
// ————————————————————————————————————————————————————————————————————

var (
	// ErrSizeMismatch indicates the downloaded byte count never reached
	// the server-reported result size within the transfer retry budget.
	ErrSizeMismatch = download.ErrSizeMismatch

	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = download.ErrChecksumMismatch

	// ErrTransferCancelled indicates the transfer was cancelled via context.
	ErrTransferCancelled = download.ErrTransferCancelled
)
