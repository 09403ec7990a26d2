package download

import (
	"errors"
	"fmt"
)

var (
	// ErrSizeMismatch indicates the on-disk byte count never reached the
	// server-reported result size.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrTransferCancelled indicates the transfer was cancelled via context.
	ErrTransferCancelled = errors.New("transfer cancelled")
	// ErrUnexpectedStatusCode is the sentinel error wrapped by [StatusError].
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
)

// Error wraps a sentinel error with additional detail.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError is returned when the download endpoint responds with
// anything other than 200 or 206.
type StatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %d, body: %s", e.Err, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
