// Package errtrack forwards error-level entries to an error tracking
// backend. Lower levels are kept as breadcrumbs and attached to the
// next captured event, giving each report the few log lines that led
// up to it.
//
// Events carry only fields this package puts there. No host identity,
// network address or request payload is attached automatically.
package errtrack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
	"github.com/DeBrosOfficial/logfan/pkg/redact"
)

const (
	defaultBreadcrumbLimit = 30
	sendTimeout            = 10 * time.Second
)

// Transport delivers captured events. Satisfied by the built-in HTTP
// transport and by test doubles.
type Transport interface {
	SendEvent(ctx context.Context, ev Event) error
}

// Event is one captured error report.
type Event struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Level       string         `json:"level"`
	Message     string         `json:"message"`
	Component   string         `json:"component,omitempty"`
	Action      string         `json:"action,omitempty"`
	Environment string         `json:"environment,omitempty"`
	Release     string         `json:"release,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Breadcrumbs []Breadcrumb   `json:"breadcrumbs,omitempty"`
}

// Breadcrumb is one pre-error log line kept for context.
type Breadcrumb struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
}

// Options configure Init.
type Options struct {
	// Endpoint of the tracking backend, e.g. https://track.example.com.
	Endpoint string

	// Key authenticates event submissions.
	Key string

	Environment string
	Release     string

	// SampleRate in [0,1] is recorded on the sink for operators;
	// every captured event is still sent. Sampling belongs to the
	// backend, which sees the full stream.
	SampleRate float64

	// BreadcrumbLimit bounds the trail attached to each event.
	BreadcrumbLimit int

	// Redactor scrubs events before they leave the process. Required:
	// a tracking backend is the one destination that must never see
	// raw PII.
	Redactor *redact.Redactor

	// Transport overrides the HTTP transport, mainly for tests.
	Transport Transport

	Fallback *logging.Fallback

	// OnCapture observes each event after redaction, before send.
	OnCapture func(Event)

	HTTPClient *http.Client
}

// Sink captures error entries and breadcrumbs lower levels.
type Sink struct {
	opts      Options
	transport Transport
	redactor  *redact.Redactor
	fallback  *logging.Fallback

	mu     sync.Mutex
	crumbs []Breadcrumb
	closed bool

	wg sync.WaitGroup
}

var (
	initMu sync.Mutex
	active *Sink
)

// Init builds the process-wide sink. Calling it again returns the sink
// from the first call unchanged; reconfiguring a live error stream
// mid-flight would tear breadcrumb trails in half.
func Init(opts Options) (*Sink, error) {
	initMu.Lock()
	defer initMu.Unlock()
	if active != nil {
		return active, nil
	}
	s, err := newSink(opts)
	if err != nil {
		return nil, err
	}
	active = s
	return s, nil
}

// reset clears the process-wide sink so tests can Init repeatedly.
func reset() {
	initMu.Lock()
	defer initMu.Unlock()
	active = nil
}

func newSink(opts Options) (*Sink, error) {
	if opts.Transport == nil && opts.Endpoint == "" {
		return nil, errors.New("errtrack: endpoint required")
	}
	if opts.Transport == nil && opts.Key == "" {
		return nil, errors.New("errtrack: key required")
	}
	if opts.Redactor == nil {
		return nil, errors.New("errtrack: redactor required")
	}
	if opts.SampleRate < 0 || opts.SampleRate > 1 {
		return nil, fmt.Errorf("errtrack: sample rate %v out of range [0,1]", opts.SampleRate)
	}
	if opts.BreadcrumbLimit <= 0 {
		opts.BreadcrumbLimit = defaultBreadcrumbLimit
	}
	if opts.Fallback == nil {
		opts.Fallback = logging.StderrFallback()
	}
	tr := opts.Transport
	if tr == nil {
		client := opts.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: sendTimeout}
		}
		tr = &httpTransport{endpoint: opts.Endpoint, key: opts.Key, client: client}
	}
	return &Sink{
		opts:      opts,
		transport: tr,
		redactor:  opts.Redactor,
		fallback:  opts.Fallback,
	}, nil
}

func (s *Sink) Name() string { return "errtrack" }

// Write breadcrumbs non-error entries and captures error ones.
func (s *Sink) Write(ctx context.Context, e logging.Entry) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("errtrack: closed")
	}
	if e.Level < logging.LevelError {
		s.addCrumbLocked(e)
		s.mu.Unlock()
		return nil
	}
	trail := make([]Breadcrumb, len(s.crumbs))
	copy(trail, s.crumbs)
	s.mu.Unlock()

	ev := s.buildEvent(e, trail)
	if s.opts.OnCapture != nil {
		s.opts.OnCapture(ev)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := s.transport.SendEvent(ctx, ev); err != nil {
			s.fallback.Warnf("error tracking send failed: %v", err)
		}
	}()
	return nil
}

func (s *Sink) addCrumbLocked(e logging.Entry) {
	// Breadcrumb messages cross the process boundary inside events,
	// so they are scrubbed on the way in.
	s.crumbs = append(s.crumbs, Breadcrumb{
		Timestamp: e.Timestamp,
		Level:     e.Level.String(),
		Message:   s.redactor.RedactString(e.Message),
		Component: e.Component,
	})
	if over := len(s.crumbs) - s.opts.BreadcrumbLimit; over > 0 {
		s.crumbs = append(s.crumbs[:0], s.crumbs[over:]...)
	}
}

// buildEvent assembles and redacts the outgoing event. Redaction here
// is not optional: this sink exists to ship data off the box.
func (s *Sink) buildEvent(e logging.Entry, trail []Breadcrumb) Event {
	clean := s.redactor.RedactEntry(e)
	msg := clean.Message
	if clean.Err != nil {
		if msg == "" {
			msg = clean.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, clean.Err)
		}
	}
	data := map[string]any{}
	for k, v := range clean.Context {
		data[k] = v
	}
	for k, v := range clean.Data {
		data[k] = v
	}
	if len(data) == 0 {
		data = nil
	}
	ts := clean.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Event{
		ID:          uuid.NewString(),
		Timestamp:   ts,
		Level:       clean.Level.String(),
		Message:     msg,
		Component:   clean.Component,
		Action:      clean.Action,
		Environment: s.opts.Environment,
		Release:     s.opts.Release,
		SessionID:   clean.SessionID,
		UserID:      clean.UserID,
		Data:        data,
		Breadcrumbs: trail,
	}
}

// Flush waits for in-flight sends.
func (s *Sink) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes and stops accepting entries. A closed sink gives up
// its process-wide slot so a later Init starts fresh.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.crumbs = nil
	s.mu.Unlock()

	initMu.Lock()
	if active == s {
		active = nil
	}
	initMu.Unlock()

	return s.Flush(ctx)
}

// Breadcrumbs returns a copy of the current trail.
func (s *Sink) Breadcrumbs() []Breadcrumb {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Breadcrumb, len(s.crumbs))
	copy(out, s.crumbs)
	return out
}

type httpTransport struct {
	endpoint string
	key      string
	client   *http.Client
}

func (t *httpTransport) SendEvent(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"/api/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Logfan-Key", t.key)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return nil
}
