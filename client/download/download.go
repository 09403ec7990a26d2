package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// chunkSize is the copy buffer size. Results can be tens of gigabytes,
// so the body is streamed in fixed chunks rather than read whole.
const chunkSize = 1 << 20 // 1MiB

// maxErrBodySize caps the amount of response body read when building
// an error for an unexpected status code.
const maxErrBodySize = 4 << 10 // 4KB

// Transfer streams url into destPath, resuming a partial file when one
// is already on disk: a non-empty destPath is opened in append mode and
// the request carries a Range header starting at its current size.
// An absent or empty destPath starts a fresh download.
//
// expected is the server-reported total size, used for the transfer
// banner; Transfer does not fail on a short body. It returns the total
// number of bytes on disk afterwards (pre-existing plus transferred),
// so the caller can detect an interrupted transfer and call again to
// resume.
func Transfer(ctx context.Context, httpc *http.Client, url, destPath string, expected int64, logger *slog.Logger, optFns ...Option) (int64, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return 0, fmt.Errorf("applying option: %w", err)
		}
	}

	var existing int64
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if fi, err := os.Stat(destPath); err == nil && fi.Size() > 0 {
		existing = fi.Size()
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return existing, fmt.Errorf("instantiating request: %w", err)
	}
	if existing > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
	}

	logger.Info(fmt.Sprintf("Transferring %s into %s", ByteName(float64(expected-existing)), destPath))
	logger.Info("From " + url)

	resp, err := httpc.Do(req)
	if err != nil {
		return existing, fmt.Errorf("transfer http do: %w", err)
	}

	discardBody := true
	defer func() {
		if discardBody {
			if _, err := io.Copy(io.Discard, resp.Body); err != nil {
				logger.Error("failed to discard unused body", "error", err)
			}
		}
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
		if err != nil {
			b = []byte("unable to read body")
		}

		return existing, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       string(b),
			Err:        ErrUnexpectedStatusCode,
		}
	}
	discardBody = false

	file, err := os.OpenFile(destPath, flags, 0o644)
	if err != nil {
		return existing, fmt.Errorf("opening %s: %w", destPath, err)
	}
	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Error("defer closing target file", "error", err)
		}
	}()

	var writer io.Writer = file
	if opts.checksum != nil {
		writer = io.MultiWriter(writer, opts.checksum)
	}
	if opts.progress {
		writer = &progressWriter{
			w:         writer,
			logger:    logger,
			total:     expected - existing,
			startTime: time.Now(),
		}
	}

	start := time.Now()
	body := &contextReader{ctx: ctx, r: resp.Body}

	n, err := io.CopyBuffer(writer, body, make([]byte, chunkSize))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return existing + n, fmt.Errorf("%w: %w", ErrTransferCancelled, err)
		}

		return existing + n, fmt.Errorf("copying file body: %w", err)
	}

	if elapsed := time.Since(start); elapsed > 0 {
		rate := float64(n) / elapsed.Seconds()
		logger.Info(fmt.Sprintf("Transfer rate %s/s", ByteName(rate)))
	}

	// A checksum only covers what this call wrote, so it is only
	// meaningful for single-pass transfers.
	if existing == 0 {
		if err := opts.checksum.Verify(); err != nil {
			return existing + n, err
		}
	}

	if err := file.Sync(); err != nil {
		return existing + n, fmt.Errorf("syncing target file: %w", err)
	}

	return existing + n, nil
}

// contextReader aborts an in-flight body read once ctx ends.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}

	return cr.r.Read(p)
}
