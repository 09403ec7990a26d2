package download_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/ecmwf/ecmwf-api-client-go/client/download"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// rangeServer serves payload, honoring Range requests the way the
// result store does.
func rangeServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := payload
		status := http.StatusOK

		if rng := r.Header.Get("Range"); rng != "" {
			offset, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-"), 10, 64)
			if err != nil || offset < 0 || offset > int64(len(payload)) {
				t.Errorf("bad Range header %q", rng)
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}
			body = payload[offset:]
			status = http.StatusPartialContent
		}

		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func testPayload(n int) []byte {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	return payload
}

func TestTransfer_Fresh(t *testing.T) {
	payload := testPayload(4096)
	srv := rangeServer(t, payload)
	dest := filepath.Join(t.TempDir(), "data.grib")

	size, err := download.Transfer(context.Background(), srv.Client(), srv.URL, dest, int64(len(payload)), discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != int64(len(payload)) {
		t.Errorf("size = %d, want %d", size, len(payload))
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading target: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("downloaded bytes differ from payload")
	}
}

func TestTransfer_Resume(t *testing.T) {
	payload := testPayload(1000)
	srv := rangeServer(t, payload)

	dest := filepath.Join(t.TempDir(), "data.grib")
	if err := os.WriteFile(dest, payload[:400], 0o644); err != nil {
		t.Fatalf("seeding partial file: %v", err)
	}

	size, err := download.Transfer(context.Background(), srv.Client(), srv.URL, dest, int64(len(payload)), discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != 1000 {
		t.Errorf("size = %d, want 1000", size)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading target: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("resumed file differs from payload")
	}
	// The already-present prefix must not have been rewritten.
	if !bytes.Equal(got[:400], payload[:400]) {
		t.Error("resume corrupted the existing prefix")
	}
}

func TestTransfer_ShortBodyReturnsSizeNotError(t *testing.T) {
	payload := testPayload(1000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Claim the full length but deliver a truncated body,
		// simulating a dropped connection.
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		w.Write(payload[:400])
	}))
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "data.grib")

	size, err := download.Transfer(context.Background(), srv.Client(), srv.URL, dest, 1000, discardLogger())
	if err == nil {
		// Some transports surface the truncation as an error,
		// others as a clean EOF; either way the size must reflect
		// what reached the disk.
		if size != 400 {
			t.Errorf("size = %d, want 400", size)
		}
		return
	}
	if size != 400 {
		t.Errorf("size = %d, want 400", size)
	}
}

func TestTransfer_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "data.grib")

	_, err := download.Transfer(context.Background(), srv.Client(), srv.URL, dest, 10, discardLogger())
	var serr *download.StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if serr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", serr.StatusCode)
	}
	if !errors.Is(err, download.ErrUnexpectedStatusCode) {
		t.Error("expected ErrUnexpectedStatusCode in chain")
	}

	if _, err := os.Stat(dest); err == nil {
		t.Error("target file should not exist after a status error")
	}
}

func TestTransfer_Checksum(t *testing.T) {
	payload := testPayload(2048)
	sum := sha256.Sum256(payload)
	srv := rangeServer(t, payload)

	t.Run("match", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "data.grib")

		_, err := download.Transfer(context.Background(), srv.Client(), srv.URL, dest, int64(len(payload)), discardLogger(),
			download.WithChecksum(sha256.New(), hex.EncodeToString(sum[:])),
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "data.grib")

		_, err := download.Transfer(context.Background(), srv.Client(), srv.URL, dest, int64(len(payload)), discardLogger(),
			download.WithChecksum(sha256.New(), strings.Repeat("0", 64)),
		)
		if !errors.Is(err, download.ErrChecksumMismatch) {
			t.Fatalf("expected ErrChecksumMismatch, got %v", err)
		}
	})

	t.Run("skipped on resume", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "data.grib")
		if err := os.WriteFile(dest, payload[:100], 0o644); err != nil {
			t.Fatalf("seeding partial file: %v", err)
		}

		// A bogus checksum must not fail a resumed transfer.
		_, err := download.Transfer(context.Background(), srv.Client(), srv.URL, dest, int64(len(payload)), discardLogger(),
			download.WithChecksum(sha256.New(), strings.Repeat("0", 64)),
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestByteName(t *testing.T) {
	tests := []struct {
		size float64
		want string
	}{
		{1, "1 byte"},
		{512, "512 bytes"},
		{1024, "1024 bytes"},
		{1536, "1.5 Kbytes"},
		{2 << 20, "2 Mbytes"},
		{3 << 30, "3 Gbytes"},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("%g", tc.size), func(t *testing.T) {
			if got := download.ByteName(tc.size); got != tc.want {
				t.Errorf("ByteName(%g) = %q, want %q", tc.size, got, tc.want)
			}
		})
	}
}
