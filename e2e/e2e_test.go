//go:build integration

package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	ecmwfapi "github.com/ecmwf/ecmwf-api-client-go"
	"github.com/ecmwf/ecmwf-api-client-go/apikey"
	"github.com/ecmwf/ecmwf-api-client-go/client"
)

// -------------------------------------------------------------------------
// Fake Web API
// -------------------------------------------------------------------------

// job is one queued retrieval on the fake server.
type job struct {
	id          string
	data        []byte
	activePolls int
	shortFirst  int // bytes served on the first download, 0 = all

	polls     int
	downloads int
	ranges    []string
	deleted   bool
	request   map[string]any
}

// api is an in-process Web API good enough to drive the whole client:
// handshake, submit, poll, range-aware downloads, and cleanup. Jobs are
// created per submit and keyed by a fresh UUID.
type api struct {
	t *testing.T

	mu   sync.Mutex
	jobs map[string]*job

	// next configures the job minted by the next submit.
	next job

	// busySubmits makes the first n submit calls fail with a 503.
	busySubmits int

	srv *httptest.Server
}

func newAPI(t *testing.T) *api {
	t.Helper()

	a := &api{t: t, jobs: make(map[string]*job)}

	mux := http.NewServeMux()
	mux.HandleFunc("/who-am-i", func(w http.ResponseWriter, r *http.Request) {
		a.respond(w, http.StatusOK, map[string]any{"uid": "jdoe", "full_name": "Jane Doe"})
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		a.respond(w, http.StatusOK, map[string]any{
			"info": map[string]any{"message": "All systems nominal"},
		})
	})
	mux.HandleFunc("/datasets/tigge/info", func(w http.ResponseWriter, r *http.Request) {
		a.respond(w, http.StatusOK, map[string]any{})
	})
	mux.HandleFunc("/datasets/tigge/news", func(w http.ResponseWriter, r *http.Request) {
		a.respond(w, http.StatusOK, map[string]any{"news": "TIGGE refreshed\nNew origins available"})
	})
	mux.HandleFunc("/services/mars/info", func(w http.ResponseWriter, r *http.Request) {
		a.respond(w, http.StatusOK, map[string]any{})
	})
	mux.HandleFunc("/datasets/tigge/requests", a.submit)
	mux.HandleFunc("/services/mars/requests", a.submit)
	mux.HandleFunc("/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			a.delete(w, r)
			return
		}
		a.poll(w, r)
	})
	mux.HandleFunc("/dl/", a.download)

	a.srv = httptest.NewServer(mux)
	t.Cleanup(a.srv.Close)

	return a
}

func (a *api) respond(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.t.Errorf("encoding response: %v", err)
	}
}

func (a *api) submit(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.busySubmits > 0 {
		a.busySubmits--
		a.respond(w, http.StatusServiceUnavailable, map[string]any{"reason": "queue full"})
		return
	}

	j := a.next
	j.id = uuid.NewString()
	if err := json.NewDecoder(r.Body).Decode(&j.request); err != nil {
		a.t.Errorf("decoding submitted request: %v", err)
	}
	a.jobs[j.id] = &j

	w.Header().Set("Location", "/jobs/"+j.id)
	w.Header().Set("Retry-After", "0")
	a.respond(w, http.StatusAccepted, map[string]any{"name": j.id, "status": "queued"})
}

func (a *api) poll(w http.ResponseWriter, r *http.Request) {
	j := a.lookup(w, r)
	if j == nil {
		return
	}

	j.polls++
	if j.polls <= j.activePolls {
		w.Header().Set("Retry-After", "0")
		a.respond(w, http.StatusAccepted, map[string]any{
			"status":   "active",
			"messages": []string{fmt.Sprintf("processing step %d", j.polls)},
		})
		return
	}

	a.respond(w, http.StatusOK, map[string]any{
		"status": "complete",
		"result": map[string]any{"size": len(j.data), "href": "/dl/" + j.id},
	})
}

func (a *api) download(w http.ResponseWriter, r *http.Request) {
	j := a.lookup(w, r)
	if j == nil {
		return
	}

	j.downloads++
	j.ranges = append(j.ranges, r.Header.Get("Range"))
	if j.shortFirst > 0 && j.downloads == 1 {
		w.Write(j.data[:j.shortFirst])
		return
	}

	http.ServeContent(w, r, "result", time.Time{}, bytes.NewReader(j.data))
}

func (a *api) delete(w http.ResponseWriter, r *http.Request) {
	j := a.lookup(w, r)
	if j == nil {
		return
	}

	j.deleted = true
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) lookup(w http.ResponseWriter, r *http.Request) *job {
	a.mu.Lock()
	defer a.mu.Unlock()

	j, ok := a.jobs[path.Base(r.URL.Path)]
	if !ok {
		a.respond(w, http.StatusNotFound, map[string]any{"error": "no such job"})
		return nil
	}

	return j
}

// onlyJob returns the single job the test created.
func (a *api) onlyJob(t *testing.T) *job {
	t.Helper()

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.jobs) != 1 {
		t.Fatalf("expected exactly one job, got %d", len(a.jobs))
	}
	for _, j := range a.jobs {
		return j
	}

	return nil
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}

	return data
}

func options(a *api, logger *slog.Logger) []ecmwfapi.Option {
	return []ecmwfapi.Option{
		ecmwfapi.WithKey(apikey.Key{Key: "testkey", URL: a.srv.URL, Email: "test@example.com"}),
		ecmwfapi.WithLogger(logger),
		ecmwfapi.WithRetryPolicy(4, 0),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// -------------------------------------------------------------------------
// Tests
// -------------------------------------------------------------------------

func TestE2E_DatasetRetrieve(t *testing.T) {
	a := newAPI(t)
	a.next = job{data: testData(4096), activePolls: 3}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	server, err := ecmwfapi.NewDataServer(options(a, logger)...)
	if err != nil {
		t.Fatalf("NewDataServer: %v", err)
	}

	target := filepath.Join(t.TempDir(), "tigge.grib")
	result, err := server.Retrieve(context.Background(), ecmwfapi.Request{
		"dataset": "tigge",
		"date":    "2014-09-01",
		"target":  target,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	j := a.onlyJob(t)

	if got, want := result.Size(), int64(4096); got != want {
		t.Errorf("result size = %d, want %d", got, want)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading target: %v", err)
	}
	if !bytes.Equal(got, j.data) {
		t.Error("downloaded file does not match the source data")
	}

	if !j.deleted {
		t.Error("remote job was not cleaned up")
	}
	if j.request["date"] != "2014-09-01" {
		t.Errorf("submitted request = %v", j.request)
	}

	logs := buf.String()
	for _, want := range []string{
		"Welcome Jane Doe",
		"All systems nominal",
		"TIGGE refreshed",
		"Request id: " + j.id,
		"Request is active",
		"Request is complete",
		"processing step 3",
	} {
		if !strings.Contains(logs, want) {
			t.Errorf("log output missing %q", want)
		}
	}
}

func TestE2E_ServiceExecute(t *testing.T) {
	a := newAPI(t)
	a.next = job{data: testData(1 << 16), activePolls: 1}

	svc, err := ecmwfapi.NewService("mars", append(options(a, discardLogger()), ecmwfapi.WithoutNews())...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	target := filepath.Join(t.TempDir(), "mars.grib")
	result, err := svc.Execute(context.Background(), ecmwfapi.Request{
		"class":  "od",
		"stream": "oper",
		"type":   "an",
	}, target)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	j := a.onlyJob(t)

	if got, want := result.Href(), "/dl/"+j.id; got != want {
		t.Errorf("href = %q, want %q", got, want)
	}

	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat target: %v", err)
	}
	if info.Size() != int64(len(j.data)) {
		t.Errorf("target size = %d, want %d", info.Size(), len(j.data))
	}
	if !j.deleted {
		t.Error("remote job was not cleaned up")
	}
}

func TestE2E_InterruptedTransferResumes(t *testing.T) {
	a := newAPI(t)
	a.next = job{data: testData(10000), shortFirst: 2500}

	server, err := ecmwfapi.NewDataServer(options(a, discardLogger())...)
	if err != nil {
		t.Fatalf("NewDataServer: %v", err)
	}

	target := filepath.Join(t.TempDir(), "tigge.grib")
	if _, err := server.Retrieve(context.Background(), ecmwfapi.Request{
		"dataset": "tigge",
		"target":  target,
	}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	j := a.onlyJob(t)

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading target: %v", err)
	}
	if !bytes.Equal(got, j.data) {
		t.Error("resumed file does not match the source data")
	}

	if j.downloads != 2 {
		t.Fatalf("downloads = %d, want 2", j.downloads)
	}
	if got, want := j.ranges[1], "bytes=2500-"; got != want {
		t.Errorf("resume range = %q, want %q", got, want)
	}
}

func TestE2E_ServerBusySubmitRetried(t *testing.T) {
	a := newAPI(t)
	a.next = job{data: testData(100)}
	a.busySubmits = 2

	server, err := ecmwfapi.NewDataServer(options(a, discardLogger())...)
	if err != nil {
		t.Fatalf("NewDataServer: %v", err)
	}

	target := filepath.Join(t.TempDir(), "tigge.grib")
	if _, err := server.Retrieve(context.Background(), ecmwfapi.Request{
		"dataset": "tigge",
		"target":  target,
	}); err != nil {
		t.Fatalf("Retrieve after busy submits: %v", err)
	}

	if j := a.onlyJob(t); !j.deleted {
		t.Error("remote job was not cleaned up")
	}
}

func TestE2E_APIErrorSurfacesReason(t *testing.T) {
	a := newAPI(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			a.respond(w, http.StatusBadRequest, map[string]any{"error": "Bad request: unknown dataset era99"})
			return
		}
		a.respond(w, http.StatusOK, map[string]any{"uid": "jdoe"})
	}))
	defer srv.Close()

	server, err := ecmwfapi.NewDataServer(
		ecmwfapi.WithKey(apikey.Key{Key: "testkey", URL: srv.URL, Email: "test@example.com"}),
		ecmwfapi.WithLogger(discardLogger()),
		ecmwfapi.WithoutNews(),
		ecmwfapi.WithRetryPolicy(2, 0),
	)
	if err != nil {
		t.Fatalf("NewDataServer: %v", err)
	}

	_, err = server.Retrieve(context.Background(), ecmwfapi.Request{"dataset": "era99"})

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *client.APIError, got %T: %v", err, err)
	}
	if got, want := apiErr.Reason, "Bad request: unknown dataset era99"; got != want {
		t.Errorf("reason = %q, want %q", got, want)
	}
}
