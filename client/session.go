package client

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ecmwf/ecmwf-api-client-go/apikey"
	"github.com/ecmwf/ecmwf-api-client-go/client/download"
)

// wrapWidth is the column at which banner messages are re-wrapped.
const wrapWidth = 70

// Session drives one job end to end: the informational handshake, the
// submit, the poll loop, and on completion the resumable download and
// the server-side cleanup. Like the Connection it owns, a Session
// serves exactly one job.
type Session struct {
	conn    *Connection
	service string
	logger  *slog.Logger
	verbose bool
	tries   int
	delay   time.Duration
	uid     string
}

// NewSession opens a connection for the given service path (e.g.
// "datasets/tigge" or "services/mars") and performs the informational
// handshake: caller identity, the service-wide banner, the
// service-specific banner, and a best-effort news fetch whose failure
// is ignored.
func NewSession(ctx context.Context, key apikey.Key, service string, optFns ...Option) (*Session, error) {
	opts, err := buildOptions(optFns)
	if err != nil {
		return nil, err
	}

	conn, err := NewConnection(key, optFns...)
	if err != nil {
		return nil, err
	}

	s := &Session{
		conn:    conn,
		service: service,
		logger:  opts.logger,
		verbose: opts.verbose,
		tries:   opts.tries,
		delay:   opts.delay,
	}

	s.logger.Info("ECMWF API Go client " + Version)
	s.logger.Info("ECMWF API at " + conn.base.String())

	user, err := conn.Get(ctx, "who-am-i")
	if err != nil {
		return nil, fmt.Errorf("fetching identity: %w", err)
	}
	s.uid, _ = user["uid"].(string)

	name, _ := user["full_name"].(string)
	if name == "" {
		name = fmt.Sprintf("user '%s'", s.uid)
	}
	s.logger.Info("Welcome " + name)

	info, err := conn.Get(ctx, "info")
	if err != nil {
		return nil, fmt.Errorf("fetching service info: %w", err)
	}
	s.showInfo(info)

	info, err = conn.Get(ctx, service+"/info")
	if err != nil {
		return nil, fmt.Errorf("fetching %s info: %w", service, err)
	}
	s.showInfo(info)

	if !opts.noNews {
		if news, err := conn.Get(ctx, service+"/news"); err == nil {
			if text, ok := news["news"].(string); ok {
				for _, line := range strings.Split(text, "\n") {
					s.logger.Info(line)
				}
			}
		}
	}

	return s, nil
}

// Execute submits the request payload, polls until the server reports
// completion, downloads the result into target when target is
// non-empty, deletes the remote artifact, and returns the result
// mapping.
func (s *Session) Execute(ctx context.Context, request map[string]any, target string) (Result, error) {
	if err := s.conn.Submit(ctx, s.service+"/requests", request); err != nil {
		return nil, err
	}
	s.logger.Info("Request submitted")
	if name := s.conn.last.Name(); name != "" {
		s.logger.Info("Request id: " + name)
	}

	var status string
	logStatus := func() {
		if s.conn.status != status {
			status = s.conn.status
			s.logger.Info("Request is " + status)
		}
	}
	logStatus()

	for !s.conn.Ready() {
		logStatus()
		if err := s.conn.Wait(ctx); err != nil {
			return nil, err
		}
	}
	logStatus()

	result := s.conn.Result()

	if target != "" {
		if err := s.download(ctx, result, target); err != nil {
			return nil, err
		}
	}

	s.conn.Cleanup(ctx)

	return result, nil
}

// download drives the resumable transfer until the on-disk size
// matches the server-reported result size, re-requesting only the
// missing byte range on each pass.
func (s *Session) download(ctx context.Context, result Result, target string) error {
	// A pre-existing file at the target would be mistaken for a
	// resumable partial download, so empty it first.
	if _, err := os.Stat(target); err == nil {
		if err := os.Truncate(target, 0); err != nil {
			return fmt.Errorf("truncating %s: %w", target, err)
		}
	}

	href, err := s.conn.base.Parse(result.Href())
	if err != nil {
		return fmt.Errorf("resolving result href: %w", err)
	}
	expected := result.Size()

	var dlOpts []download.Option
	if s.verbose {
		dlOpts = append(dlOpts, download.WithProgress())
	}

	var size int64 = -1
	for attempt := 1; attempt <= s.tries; attempt++ {
		size, err = robust(ctx, s.logger, s.verbose, s.tries, s.delay, func() (int64, error) {
			return download.Transfer(ctx, s.conn.httpc, href.String(), target, expected, s.logger, dlOpts...)
		})
		if err != nil {
			return err
		}
		if size == expected {
			return nil
		}

		if attempt < s.tries {
			s.logger.Info(fmt.Sprintf("Transfer interrupted, resuming in %ds...", int(s.delay.Seconds())))
			if err := sleep(ctx, s.delay); err != nil {
				return err
			}
		}
	}

	return &download.Error{
		Err:    download.ErrSizeMismatch,
		Detail: fmt.Sprintf("expected %d bytes, got %d after %d attempts", expected, size, s.tries),
	}
}

// showInfo logs a banner's general message and any message addressed
// to the authenticated user, re-wrapped for the terminal.
func (s *Session) showInfo(envelope Result) {
	info, ok := envelope["info"].(map[string]any)
	if !ok {
		return
	}

	shown := false
	if msg, ok := info["message"].(string); ok && msg != "" {
		s.logger.Info("")
		for _, line := range wrapText(msg, wrapWidth) {
			s.logger.Info(line)
		}
		shown = true
	}

	if userMsgs, ok := info["user_messages"].(map[string]any); ok {
		if msg, ok := userMsgs[s.uid].(string); ok && msg != "" {
			s.logger.Info("")
			for _, line := range wrapText(msg, wrapWidth) {
				s.logger.Info(line)
			}
			shown = true
		}
	}

	if shown {
		s.logger.Info("")
	}
}

// wrapText greedily wraps s into lines of at most width characters,
// breaking on whitespace. Words longer than width get a line of their
// own.
func wrapText(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > width {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}

	return append(lines, line)
}
