package ecmwfapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ecmwf/ecmwf-api-client-go/apikey"
	"github.com/ecmwf/ecmwf-api-client-go/client"
)

// Option is a functional option for configuring a [DataServer] or a
// [Service].
type Option func(*options) error

type options struct {
	key    apikey.Key
	keySet bool
	logger *slog.Logger
	client []client.Option
}

func buildOptions(optFns []Option) (options, error) {
	opts := options{
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}

	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return options{}, fmt.Errorf("applying option: %w", err)
		}
	}

	if !opts.keySet {
		key, err := apikey.Resolve()
		if err != nil {
			return options{}, fmt.Errorf("resolving credentials: %w", err)
		}
		opts.key = key
	}

	// The facade logger and the session logger stay in sync unless the
	// caller splits them deliberately via client options.
	opts.client = append([]client.Option{client.WithLogger(opts.logger)}, opts.client...)

	return opts, nil
}

// WithKey supplies credentials directly, bypassing the environment and
// rc-file lookup chain.
func WithKey(key apikey.Key) Option {
	return func(o *options) error {
		if err := apikey.Validate(key); err != nil {
			return err
		}
		o.key = key
		o.keySet = true
		return nil
	}
}

// WithLogger injects a custom [slog.Logger].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithHTTPClient replaces the default [http.Client] used for API calls
// and downloads.
func WithHTTPClient(hc *http.Client) Option {
	return forward(client.WithHTTPClient(hc))
}

// WithVerbose enables per-call request/response logging.
func WithVerbose() Option {
	return forward(client.WithVerbose())
}

// WithQuiet suppresses logging of server status messages.
func WithQuiet() Option {
	return forward(client.WithQuiet())
}

// WithoutNews skips the news fetch during the session handshake.
func WithoutNews() Option {
	return forward(client.WithoutNews())
}

// WithThrottle enables token-bucket rate limiting of outbound calls
// with the given requests per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return forward(client.WithThrottle(rps, burst))
}

// WithTracer instruments every API call with spans from the given
// tracer.
func WithTracer(tracer trace.Tracer) Option {
	return forward(client.WithTracer(tracer))
}

// WithRetryPolicy overrides the retry budget applied to API calls and
// transfer attempts.
func WithRetryPolicy(tries int, delay time.Duration) Option {
	return forward(client.WithRetryPolicy(tries, delay))
}

// forward accumulates a client-level option for the sessions the
// facade opens.
func forward(opt client.Option) Option {
	return func(o *options) error {
		o.client = append(o.client, opt)
		return nil
	}
}
