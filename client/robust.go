package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/ecmwf/ecmwf-api-client-go/client/download"
)

// retryableStatus reports whether a status code signals a transient
// server condition. 501 is "not implemented": the server is saying the
// request can never succeed, unlike every other 5xx.
func retryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}

	return code >= 500 && code != http.StatusNotImplemented
}

// retryable classifies a failed attempt. Application errors are final;
// rate-limit/server-busy signals and transport-level failures are
// worth another try.
func retryable(err error) bool {
	var retryAfter *RetryAfterError
	if errors.As(err, &retryAfter) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}

	var statusErr *download.StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// robust runs fn under the uniform retry policy: at most tries
// attempts with a fixed delay between them, sleeping only between
// attempts. A fatal failure surfaces immediately; when the budget runs
// out the last transient failure surfaces instead.
func robust[T any](ctx context.Context, logger *slog.Logger, verbose bool, tries int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= tries; attempt++ {
		if attempt > 1 {
			logger.Info(fmt.Sprintf("Error contacting the WebAPI, retrying in %d seconds ...", int(delay.Seconds())))
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}

		if !retryable(err) {
			var apiErr *APIError
			var statusErr *download.StatusError
			if !errors.As(err, &apiErr) && !errors.As(err, &statusErr) {
				logger.Error("Unexpected error", "error", err)
			}
			return zero, err
		}

		if verbose {
			var retryAfter *RetryAfterError
			if errors.As(err, &retryAfter) {
				logger.Info(fmt.Sprintf("WARNING: HTTP received %d", retryAfter.Code))
				logger.Info(retryAfter.Body)
			} else {
				logger.Info("WARNING: transient error received", "error", err)
			}
		}

		lastErr = err
	}

	logger.Info(fmt.Sprintf("Could not contact the WebAPI after %d tries, failing !", tries))

	return zero, lastErr
}

// sleep blocks for d or until ctx ends, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
