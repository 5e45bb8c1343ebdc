// Package httpsink delivers entries to the log ingestion endpoint in
// batches. A batch goes out when it reaches the configured size, when
// the flush timer fires, or on an explicit flush, whichever happens
// first. Delivery failures retry with exponential backoff up to a
// bounded budget; batches that exhaust it are dropped and counted,
// never requeued.
package httpsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
	"github.com/DeBrosOfficial/logfan/pkg/redact"
)

const (
	defaultBatchSize     = 10
	defaultFlushInterval = 5 * time.Second
	defaultMaxRetries    = 3
	defaultBackoff       = 250 * time.Millisecond

	// closeTimeout caps the final delivery attempt during teardown.
	closeTimeout = 2 * time.Second

	// jobQueueSize bounds batches awaiting delivery. When an outage
	// backs deliveries up past this, new batches are dropped whole.
	jobQueueSize = 16
)

var errClosed = errors.New("httpsink: closed")

// Options configure the sink.
type Options struct {
	// Endpoint is the base URL of the ingestion service.
	Endpoint string

	// Filename names the server-side log file. Defaults to
	// client-<sessionId>.log.
	Filename string

	// APIKey is sent as X-API-Key when set.
	APIKey string

	BatchSize     int
	FlushInterval time.Duration

	// MaxRetries is the number of re-attempts after a failed post.
	// Zero means the default; negative disables retries.
	MaxRetries int

	// InitialBackoff is the first retry delay. Tests shrink it.
	InitialBackoff time.Duration

	HTTPClient *http.Client

	// Redactor scrubs entries before they are buffered; delivery is a
	// process boundary. Defaults to redact.Default().
	Redactor *redact.Redactor

	Fallback *logging.Fallback
}

type job struct {
	batch []logging.Entry
	// single marks the teardown batch: one attempt, no retries.
	single bool
	// done is the flush barrier; the worker signals it once every job
	// enqueued before it has been delivered or given up on.
	done chan struct{}
	// stop ends the worker. The jobs channel itself is never closed:
	// a writer racing teardown must never hit a closed channel.
	stop bool
}

// Sink batches entries for HTTP delivery.
type Sink struct {
	opts     Options
	client   *http.Client
	redactor *redact.Redactor
	fallback *logging.Fallback

	mu     sync.Mutex
	buf    []logging.Entry
	timer  *time.Timer
	closed bool

	jobs       chan job
	workerDone chan struct{}

	dropped atomic.Uint64
}

// New builds the sink and starts its delivery worker.
func New(opts Options) (*Sink, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("httpsink: endpoint required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	switch {
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	case opts.MaxRetries == 0:
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultBackoff
	}
	if opts.Redactor == nil {
		opts.Redactor = redact.Default()
	}
	if opts.Fallback == nil {
		opts.Fallback = logging.StderrFallback()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	s := &Sink{
		opts:       opts,
		client:     client,
		redactor:   opts.Redactor,
		fallback:   opts.Fallback,
		jobs:       make(chan job, jobQueueSize),
		workerDone: make(chan struct{}),
	}
	go s.worker()
	return s, nil
}

func (s *Sink) Name() string { return "http" }

// Dropped reports how many entries were discarded after the retry
// budget or queue capacity ran out.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Write buffers one entry, redacted up front so memory never holds
// unscrubbed data past this point.
func (s *Sink) Write(ctx context.Context, e logging.Entry) error {
	e = s.redactor.RedactEntry(e)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed
	}
	s.buf = append(s.buf, e)
	if len(s.buf) >= s.opts.BatchSize {
		batch := s.cutLocked()
		s.mu.Unlock()
		s.enqueue(batch)
		return nil
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.opts.FlushInterval, s.onTimer)
	}
	s.mu.Unlock()
	return nil
}

// cutLocked takes the buffered batch and disarms the timer. Callers
// hold mu.
func (s *Sink) cutLocked() []logging.Entry {
	batch := s.buf
	s.buf = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return batch
}

func (s *Sink) onTimer() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	batch := s.cutLocked()
	s.mu.Unlock()
	s.enqueue(batch)
}

// enqueue hands a batch to the worker without blocking the writer.
func (s *Sink) enqueue(batch []logging.Entry) {
	if len(batch) == 0 {
		return
	}
	select {
	case s.jobs <- job{batch: batch}:
	default:
		s.dropped.Add(uint64(len(batch)))
		s.fallback.Warnf("http sink delivery queue full, dropped %d entries", len(batch))
	}
}

// Flush pushes the current buffer out and waits until every batch
// enqueued so far has been delivered or given up on.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	batch := s.cutLocked()
	s.mu.Unlock()

	if len(batch) > 0 {
		select {
		case s.jobs <- job{batch: batch}:
		case <-ctx.Done():
			s.dropped.Add(uint64(len(batch)))
			return ctx.Err()
		}
	}

	barrier := job{done: make(chan struct{})}
	select {
	case s.jobs <- barrier:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-barrier.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close delivers what is buffered with a single short attempt and
// stops the worker. The short attempt is deliberate: teardown runs
// while the process is exiting and cannot afford a retry loop.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	batch := s.cutLocked()
	s.mu.Unlock()

	deadline := time.NewTimer(closeTimeout)
	defer deadline.Stop()

	if len(batch) > 0 {
		select {
		case s.jobs <- job{batch: batch, single: true}:
		case <-deadline.C:
			s.dropped.Add(uint64(len(batch)))
		case <-ctx.Done():
			s.dropped.Add(uint64(len(batch)))
			return ctx.Err()
		}
	}

	select {
	case s.jobs <- job{stop: true}:
	case <-deadline.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-s.workerDone:
	case <-deadline.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	// Batches a racing writer managed to enqueue after the stop marker
	// are never delivered; account for them.
	for {
		select {
		case j := <-s.jobs:
			if len(j.batch) > 0 {
				s.dropped.Add(uint64(len(j.batch)))
			}
			if j.done != nil {
				close(j.done)
			}
		default:
			return nil
		}
	}
}

func (s *Sink) worker() {
	defer close(s.workerDone)
	for j := range s.jobs {
		if j.stop {
			return
		}
		if j.done != nil {
			close(j.done)
			continue
		}
		s.deliver(j.batch, j.single)
	}
}

func (s *Sink) deliver(batch []logging.Entry, single bool) {
	payload := appendRequest{
		Filename: s.filename(batch),
		Data: batchPayload{
			BatchID:   uuid.NewString(),
			SessionID: batch[0].SessionID,
			Timestamp: time.Now().UTC(),
			Entries:   batch,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		// Entries are redacted and sanitized; this should not happen.
		s.dropped.Add(uint64(len(batch)))
		s.fallback.Errorf("http sink could not encode batch: %v", err)
		return
	}

	if single {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := s.post(ctx, body); err != nil {
			s.dropped.Add(uint64(len(batch)))
			s.fallback.Warnf("http sink final delivery failed: %v (%d entries dropped)", err, len(batch))
		}
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.InitialBackoff
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.post(ctx, body)
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(bo, uint64(s.opts.MaxRetries))); err != nil {
		s.dropped.Add(uint64(len(batch)))
		s.fallback.Warnf("http sink delivery failed after retries: %v (%d entries dropped)", err, len(batch))
	}
}

func (s *Sink) filename(batch []logging.Entry) string {
	if s.opts.Filename != "" {
		return s.opts.Filename
	}
	if sid := batch[0].SessionID; sid != "" {
		return "client-" + sid + ".log"
	}
	return "client-" + time.Now().UTC().Format("2006-01-02") + ".log"
}

func (s *Sink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.Endpoint+"/v1/logs", bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.opts.APIKey != "" {
		req.Header.Set("X-API-Key", s.opts.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err = fmt.Errorf("ingest endpoint returned %s", resp.Status)
	if retryableStatus(resp.StatusCode) {
		return err
	}
	return backoff.Permanent(err)
}

// retryableStatus: server-side trouble and throttling retry, other
// client errors do not.
func retryableStatus(code int) bool {
	if code >= 500 {
		return true
	}
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

type appendRequest struct {
	Filename string       `json:"filename"`
	Data     batchPayload `json:"data"`
}

type batchPayload struct {
	BatchID   string          `json:"batchId"`
	SessionID string          `json:"sessionId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Entries   []logging.Entry `json:"entries"`
}
