// Package filesink appends entries as NDJSON to a rotating log file.
// Writes go through an internal queue drained by one goroutine, so the
// request path never blocks on disk. When the queue overflows the
// oldest queued entry is dropped in favor of the newest: an operator
// debugging a live incident needs the most recent lines, not the
// backlog.
package filesink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
	"github.com/DeBrosOfficial/logfan/pkg/redact"
)

const (
	defaultMaxSize   = 10 << 20 // 10 MiB
	defaultMaxFiles  = 5
	defaultQueueSize = 1024

	rotateStamp = "20060102T150405.000"
)

var errClosed = errors.New("filesink: closed")

// Options configure the sink.
type Options struct {
	// Path of the active log file, e.g. /var/log/app/server.log.
	// Rotated files live next to it with a timestamp suffix.
	Path string

	// MaxSize in bytes before the active file rotates.
	MaxSize int64

	// MaxFiles caps how many files are kept, the active one included.
	MaxFiles int

	// QueueSize bounds the internal write queue.
	QueueSize int

	// Redactor scrubs entries before they hit disk; the file is a
	// process boundary. Defaults to redact.Default().
	Redactor *redact.Redactor

	Fallback *logging.Fallback
}

// Sink writes entries to a rotating NDJSON file.
type Sink struct {
	opts     Options
	redactor *redact.Redactor
	fallback *logging.Fallback

	mu     sync.Mutex // guards queue sends vs teardown
	closed bool

	queue    chan logging.Entry
	flushReq chan chan error
	stopReq  chan struct{}
	done     chan struct{}

	dropped atomic.Uint64

	// drain-goroutine state, untouched by others
	f    *os.File
	w    *bufio.Writer
	size int64
}

// New builds the sink and starts its drain goroutine.
func New(opts Options) (*Sink, error) {
	s, err := newSink(opts)
	if err != nil {
		return nil, err
	}
	go s.drain()
	return s, nil
}

// newSink exists so tests can exercise the queue before draining
// starts.
func newSink(opts Options) (*Sink, error) {
	if opts.Path == "" {
		return nil, errors.New("filesink: path required")
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = defaultMaxSize
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = defaultMaxFiles
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Redactor == nil {
		opts.Redactor = redact.Default()
	}
	if opts.Fallback == nil {
		opts.Fallback = logging.StderrFallback()
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("filesink: create log directory: %w", err)
	}
	return &Sink{
		opts:     opts,
		redactor: opts.Redactor,
		fallback: opts.Fallback,
		queue:    make(chan logging.Entry, opts.QueueSize),
		flushReq: make(chan chan error),
		stopReq:  make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (s *Sink) Name() string { return "file" }

// Dropped reports entries lost to queue overflow or write failures.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Write redacts the entry and enqueues it without blocking.
func (s *Sink) Write(ctx context.Context, e logging.Entry) error {
	e = s.redactor.RedactEntry(e)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	select {
	case s.queue <- e:
		return nil
	default:
	}
	// Queue full: make room by dropping the oldest queued entry, then
	// try once more.
	select {
	case <-s.queue:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.queue <- e:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Flush drains everything queued so far and syncs the file.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	req := make(chan error, 1)
	select {
	case s.flushReq <- req:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains, syncs and closes the file. Further writes fail.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopReq)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) drain() {
	defer close(s.done)
	for {
		select {
		case e := <-s.queue:
			s.writeEntry(e)
		case req := <-s.flushReq:
			s.drainQueued()
			req <- s.sync()
		case <-s.stopReq:
			s.drainQueued()
			if err := s.sync(); err != nil {
				s.fallback.Warnf("file sink final sync failed: %v", err)
			}
			if s.f != nil {
				s.f.Close()
				s.f = nil
				s.w = nil
			}
			return
		}
	}
}

func (s *Sink) drainQueued() {
	for {
		select {
		case e := <-s.queue:
			s.writeEntry(e)
		default:
			return
		}
	}
}

func (s *Sink) writeEntry(e logging.Entry) {
	line, err := json.Marshal(e)
	if err != nil {
		s.dropped.Add(1)
		s.fallback.Warnf("file sink could not encode entry: %v", err)
		return
	}
	if err := s.ensureOpen(); err != nil {
		s.dropped.Add(1)
		s.fallback.Warnf("file sink open failed: %v", err)
		return
	}
	if s.size > 0 && s.size+int64(len(line))+1 > s.opts.MaxSize {
		if err := s.rotate(); err != nil {
			s.fallback.Warnf("file sink rotation failed: %v", err)
		}
	}
	if _, err := s.w.Write(line); err != nil {
		s.dropped.Add(1)
		s.fallback.Warnf("file sink write failed: %v", err)
		return
	}
	if err := s.w.WriteByte('\n'); err != nil {
		s.dropped.Add(1)
		s.fallback.Warnf("file sink write failed: %v", err)
		return
	}
	s.size += int64(len(line)) + 1
}

func (s *Sink) ensureOpen() error {
	if s.f != nil {
		return nil
	}
	f, err := os.OpenFile(s.opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	s.f = f
	s.w = bufio.NewWriter(f)
	s.size = info.Size()
	return nil
}

func (s *Sink) sync() error {
	if s.w == nil {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.f.Sync()
}

// rotate closes the active file, renames it with a timestamp suffix
// and prunes the oldest rotated files beyond the keep limit.
func (s *Sink) rotate() error {
	if err := s.sync(); err != nil {
		return err
	}
	if err := s.f.Close(); err != nil {
		return err
	}
	s.f = nil
	s.w = nil
	s.size = 0

	// os.Rename overwrites silently, so bump the name if two
	// rotations land in the same millisecond.
	now := time.Now()
	rotated := s.rotatedName(now, "")
	for i := 1; ; i++ {
		if _, err := os.Lstat(rotated); os.IsNotExist(err) {
			break
		}
		rotated = s.rotatedName(now, fmt.Sprintf("-%d", i))
	}
	if err := os.Rename(s.opts.Path, rotated); err != nil {
		return err
	}
	s.prune()
	return s.ensureOpen()
}

func (s *Sink) rotatedName(t time.Time, bump string) string {
	dir := filepath.Dir(s.opts.Path)
	base := filepath.Base(s.opts.Path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s%s", stem, t.UTC().Format(rotateStamp), bump, ext))
}

// prune removes the oldest rotated files so that rotated plus active
// stays within MaxFiles. Timestamped names sort chronologically.
func (s *Sink) prune() {
	base := filepath.Base(s.opts.Path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	pattern := filepath.Join(filepath.Dir(s.opts.Path), stem+"-*"+ext)

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}
	keep := s.opts.MaxFiles - 1
	if len(matches) <= keep {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-keep] {
		if err := os.Remove(old); err != nil {
			s.fallback.Warnf("file sink prune failed: %v", err)
		}
	}
}
