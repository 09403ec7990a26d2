package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ecmwf/ecmwf-api-client-go/client/throttle"
)

// Option is a functional option for configuring a [Connection] or a
// [Session].
type Option func(*options) error

type options struct {
	client   *http.Client
	logger   *slog.Logger
	verbose  bool
	quiet    bool
	noNews   bool
	throttle *throttle.Config
	tracer   trace.Tracer
	tries    int
	delay    time.Duration
}

func buildOptions(optFns []Option) (options, error) {
	opts := options{
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("ecmwfapi"),
		tries:  defaultRetryTries,
		delay:  defaultRetryDelay,
	}

	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return options{}, fmt.Errorf("applying option: %w", err)
		}
	}

	return opts, nil
}

// WithHTTPClient replaces the default [http.Client] used for API calls
// and downloads. Its redirect policy is overridden: the connection
// classifies and follows redirects itself.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		o.client = hc
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

// WithVerbose enables per-call request/response logging.
func WithVerbose() Option {
	return func(o *options) error {
		o.verbose = true
		return nil
	}
}

// WithQuiet suppresses logging of server status messages.
func WithQuiet() Option {
	return func(o *options) error {
		o.quiet = true
		return nil
	}
}

// WithoutNews skips the best-effort news fetch during the session
// handshake.
func WithoutNews() Option {
	return func(o *options) error {
		o.noNews = true
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting of outbound calls
// with the given requests per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(o *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		o.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithTracer instruments every API call with spans from the given
// tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		o.tracer = tracer
		return nil
	}
}

// WithRetryPolicy overrides the retry budget applied to API calls and
// transfer attempts. The defaults are 10 tries with 60 seconds between
// them.
func WithRetryPolicy(tries int, delay time.Duration) Option {
	return func(o *options) error {
		if tries < 1 {
			return errors.New("tries must be at least 1")
		}
		if delay < 0 {
			return errors.New("delay must not be negative")
		}
		o.tries = tries
		o.delay = delay
		return nil
	}
}
