package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ecmwf/ecmwf-api-client-go/apikey"
	"github.com/ecmwf/ecmwf-api-client-go/client/throttle"
)

// Connection carries the protocol state of one job against one base
// URL and credential pair: the server-assigned poll location, the
// server-advised poll interval, the running message offset, and the
// final result once the job completes. It is not safe for concurrent
// use and must not be reused across jobs.
type Connection struct {
	base   *url.URL
	key    string
	email  string
	httpc  *http.Client
	logger *slog.Logger
	tracer trace.Tracer

	verbose bool
	quiet   bool
	tries   int
	delay   time.Duration

	retry    time.Duration
	location *url.URL
	done     bool
	value    Result
	last     Result
	offset   int
	status   string
}

// NewConnection binds a connection to the API base URL and credential
// pair in key.
func NewConnection(key apikey.Key, optFns ...Option) (*Connection, error) {
	opts, err := buildOptions(optFns)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(key.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	// Relative refs resolve against the last path segment, so the
	// base must end in a slash for "who-am-i" to land under /v1/.
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	conn := &Connection{
		base:    base,
		key:     key.Key,
		email:   key.Email,
		logger:  opts.logger,
		tracer:  opts.tracer,
		verbose: opts.verbose,
		quiet:   opts.quiet,
		tries:   opts.tries,
		delay:   opts.delay,
		retry:   defaultPollInterval,
	}

	// Redirects are classified and followed by hand, so the inner
	// client must surface them untouched.
	httpc := http.Client{}
	if opts.client != nil {
		httpc = *opts.client
	}
	httpc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if opts.throttle != nil {
		transport := httpc.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		rt, err := throttle.NewRoundTripper(opts.throttle.RPS, opts.throttle.Burst, func() *slog.Logger { return conn.logger }, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		httpc.Transport = rt
	}
	conn.httpc = &httpc

	return conn, nil
}

// Call issues one API call under the retry policy. ref may be relative
// to the base URL or absolute; payload, when non-nil, is sent as a
// JSON body. The decoded envelope is returned, or nil for a 204.
func (c *Connection) Call(ctx context.Context, ref string, payload any, method string) (Result, error) {
	return robust(ctx, c.logger, c.verbose, c.tries, c.delay, func() (Result, error) {
		return c.call(ctx, ref, payload, method)
	})
}

// Submit creates a new job from payload.
func (c *Connection) Submit(ctx context.Context, ref string, payload any) error {
	_, err := c.Call(ctx, ref, payload, http.MethodPost)
	return err
}

// Post is a method-specific alias over [Connection.Call].
func (c *Connection) Post(ctx context.Context, ref string, payload any) (Result, error) {
	return c.Call(ctx, ref, payload, http.MethodPost)
}

// Get is a method-specific alias over [Connection.Call].
func (c *Connection) Get(ctx context.Context, ref string) (Result, error) {
	return c.Call(ctx, ref, nil, http.MethodGet)
}

// Wait sleeps for the server-advised poll interval and then re-checks
// the job location. It is the poll loop's single suspension point.
func (c *Connection) Wait(ctx context.Context) error {
	if c.location == nil {
		return errors.New("no job location to poll")
	}

	if c.verbose {
		c.logger.Info(fmt.Sprintf("Sleeping %g second(s)", c.retry.Seconds()))
	}
	if err := sleep(ctx, c.retry); err != nil {
		return err
	}

	_, err := c.Call(ctx, c.location.String(), nil, http.MethodGet)
	return err
}

// Ready reports whether the job has reached a terminal state.
func (c *Connection) Ready() bool {
	return c.done
}

// Result returns the job's final payload, or nil while the job is
// still in flight.
func (c *Connection) Result() Result {
	if !c.done {
		return nil
	}

	return c.value
}

// Cleanup deletes the job artifact on the server. Failures are logged
// and swallowed: cleanup must never mask a successful job.
func (c *Connection) Cleanup(ctx context.Context) {
	if c.location == nil {
		return
	}

	if _, err := c.Call(ctx, c.location.String(), nil, http.MethodDelete); err != nil {
		c.logger.Debug("cleanup failed", "location", c.location.String(), "error", err)
	}
}

// call performs a single attempt: resolve, round-trip with redirect
// handling, then interpret the envelope and update protocol state.
func (c *Connection) call(ctx context.Context, ref string, payload any, method string) (Result, error) {
	u, err := c.base.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", ref, err)
	}

	// Every call pages the job's message log from the current offset,
	// so messages already seen are never re-fetched.
	q := u.Query()
	q.Set("offset", strconv.Itoa(c.offset))
	q.Set("limit", strconv.Itoa(pageLimit))
	u.RawQuery = q.Encode()

	if c.verbose {
		c.logger.Info(fmt.Sprintf("Calling method %s on %s", method, u))
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request payload: %w", err)
		}
	}

	ctx, span := c.startSpan(ctx, method, u)
	defer span.End()

	resp, reqURL, err := c.roundTrip(ctx, method, u, body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	discardBody := true
	defer func() {
		if discardBody {
			if _, err := io.Copy(io.Discard, resp.Body); err != nil {
				c.logger.Error("failed to discard unused body", "error", err)
			}
		}
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	code := resp.StatusCode

	if retryableStatus(code) {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
		if err != nil {
			b = []byte("unable to read body")
		}
		discardBody = false

		return nil, &RetryAfterError{Code: code, Body: string(b)}
	}

	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			c.retry = time.Duration(secs) * time.Second
		}
	}

	if code == http.StatusCreated || code == http.StatusAccepted {
		if loc := resp.Header.Get("Location"); loc != "" {
			if lu, err := reqURL.Parse(loc); err == nil {
				c.location = lu
			}
		}
	}

	if c.verbose {
		c.logger.Info("Response code: " + strconv.Itoa(code))
		c.logger.Info("Response Content-Type: " + resp.Header.Get("Content-Type"))
		c.logger.Info("Response Content-Length: " + resp.Header.Get("Content-Length"))
		c.logger.Info("Response Location: " + resp.Header.Get("Location"))
	}

	if code == http.StatusNoContent {
		c.last = nil
		return nil, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	discardBody = false

	// Anything >299 that was not converted to a retry signal above is
	// an error condition, surfaced only after the body is interpreted
	// so messages and state updates are not lost.
	protoErr := code > 299

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var decoded Result
	if err := dec.Decode(&decoded); err != nil {
		decoded = Result{"error": fmt.Sprintf("%v: %s", err, raw)}
		protoErr = true
	}
	c.last = decoded

	if s, ok := decoded["status"].(string); ok {
		c.status = s
	}
	if c.verbose {
		c.logger.Info("Status " + c.status)
	}

	if msgs, ok := decoded["messages"].([]any); ok {
		for _, m := range msgs {
			if !c.quiet {
				c.logger.Info(fmt.Sprint(m))
			}
			c.offset++
		}
	}

	if code == http.StatusOK && c.status == statusComplete {
		c.value = decoded
		if nested, ok := decoded["result"].(map[string]any); ok {
			c.value = Result(nested)
		}
		c.done = true
	}

	// A 303 is the terminal success signal, not an error condition.
	if code == http.StatusSeeOther {
		c.value = decoded
		c.done = true
		protoErr = false
	}

	if errMsg, ok := decoded["error"]; ok {
		return nil, &APIError{Reason: fmt.Sprint(errMsg)}
	}

	if protoErr {
		return nil, &APIError{Reason: fmt.Sprintf("%s returned %d %s", reqURL, code, http.StatusText(code))}
	}

	return decoded, nil
}

// roundTrip issues the request and follows redirects by hand: 301/302
// re-issue the same method and body against the Location header, 303
// and everything else stop the loop. It returns the final response
// together with the URL that produced it, which Location headers
// resolve against.
func (c *Connection) roundTrip(ctx context.Context, method string, u *url.URL, body []byte) (*http.Response, *url.URL, error) {
	for i := 0; i < maxRedirects; i++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
		if err != nil {
			return nil, nil, fmt.Errorf("instantiating request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("From", c.email)
		req.Header.Set("X-ECMWF-KEY", c.key)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, nil, fmt.Errorf("api http do: %w", err)
		}

		if classifyRedirect(resp.StatusCode, resp.Header.Get("Location") != "") != followRedirect {
			return resp, u, nil
		}

		next, err := u.Parse(resp.Header.Get("Location"))
		if _, derr := io.Copy(io.Discard, resp.Body); derr != nil {
			c.logger.Error("failed to discard redirect body", "error", derr)
		}
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Error("failed to close redirect body", "error", cerr)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("resolving redirect location: %w", err)
		}

		if c.verbose {
			c.logger.Info("Redirected to " + next.String())
		}
		u = next
	}

	return nil, nil, ErrTooManyRedirects
}
