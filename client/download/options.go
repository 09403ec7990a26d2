package download

import (
	"errors"
	"hash"
)

// Option defines optional settings for a transfer.
type Option func(*options) error

type options struct {
	checksum *checksumVerifier
	progress bool
}

// WithChecksum enables checksum validation of the downloaded file.
// h is a hash.Hash instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string. The checksum covers only the
// bytes written by a single call, so it is verified only for transfers
// that start from offset zero; resumed transfers skip verification.
func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}

		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}

		opts.checksum = &checksumVerifier{hash: h, expected: expected}
		return nil
	}
}

// WithProgress enables periodic transfer progress logging via the
// logger supplied to Transfer.
func WithProgress() Option {
	return func(opts *options) error {
		opts.progress = true
		return nil
	}
}
