package logging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// writeTimeout bounds a single sink write. Sinks buffer or enqueue, so
// hitting this means the sink is wedged, not slow.
const writeTimeout = 5 * time.Second

// Options configure a MultiLogger.
type Options struct {
	// MinLevel filters entries before they are built. Defaults to Info.
	MinLevel Level

	// Context is merged into every entry; call-site context wins on
	// key collisions.
	Context map[string]any

	// Tags label every entry. Entries carry a snapshot: mutating the
	// logger's tags later does not rewrite entries already emitted.
	Tags []string

	// UserID correlates entries with an end user. Optional.
	UserID string

	// SessionID correlates all entries of one process run. Generated
	// when empty and immutable afterwards.
	SessionID string

	// Fallback receives the logger's own diagnostics. Defaults to
	// stderr.
	Fallback *Fallback
}

// MultiLogger fans entries out to a set of sinks. Every log call
// dispatches to all sinks concurrently and settles when each sink has
// either returned or been isolated; one sink failing or panicking
// never affects the others or the caller.
type MultiLogger struct {
	mu        sync.RWMutex
	sinks     []Sink
	minLevel  Level
	ctx       map[string]any
	tags      []string
	userID    string
	sessionID string

	fallback *Fallback

	dropMu sync.Mutex
	drops  map[string]uint64
}

// New builds a MultiLogger with no sinks attached.
func New(opts Options) *MultiLogger {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Fallback == nil {
		opts.Fallback = StderrFallback()
	}
	l := &MultiLogger{
		minLevel:  opts.MinLevel,
		userID:    opts.UserID,
		sessionID: opts.SessionID,
		fallback:  opts.Fallback,
		drops:     make(map[string]uint64),
	}
	if len(opts.Context) > 0 {
		l.ctx = mergeMaps(opts.Context)
	}
	if len(opts.Tags) > 0 {
		l.tags = append([]string(nil), opts.Tags...)
	}
	return l
}

// AddSink registers a sink. Safe to call while logging is in flight.
func (l *MultiLogger) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// RemoveSink detaches the first sink with the given name and reports
// whether one was found. The sink is not closed.
func (l *MultiLogger) RemoveSink(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.sinks {
		if sinkName(s) == name {
			l.sinks = append(l.sinks[:i], l.sinks[i+1:]...)
			return true
		}
	}
	return false
}

// Sinks returns the names of the attached sinks.
func (l *MultiLogger) Sinks() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, len(l.sinks))
	for i, s := range l.sinks {
		names[i] = sinkName(s)
	}
	return names
}

// MinLevel returns the active minimum level.
func (l *MultiLogger) MinLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minLevel
}

// SetMinLevel changes the minimum level at runtime.
func (l *MultiLogger) SetMinLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// SessionID returns the immutable session identifier.
func (l *MultiLogger) SessionID() string {
	return l.sessionID
}

// UserID returns the current user correlation id.
func (l *MultiLogger) UserID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.userID
}

// SetUserID changes the user correlation id for future entries.
func (l *MultiLogger) SetUserID(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.userID = id
}

// SetContext merges fields into the logger's global context.
func (l *MultiLogger) SetContext(ctx map[string]any) {
	if len(ctx) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ctx = mergeMaps(l.ctx, ctx)
}

// ClearContext drops the global context.
func (l *MultiLogger) ClearContext() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ctx = nil
}

// AddTag appends a tag if not already present.
func (l *MultiLogger) AddTag(tag string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.tags {
		if t == tag {
			return
		}
	}
	l.tags = append(l.tags, tag)
}

// RemoveTags deletes the named tags where present.
func (l *MultiLogger) RemoveTags(tags ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, tag := range tags {
		for i, t := range l.tags {
			if t == tag {
				l.tags = append(l.tags[:i], l.tags[i+1:]...)
				break
			}
		}
	}
}

// ClearTags drops all tags.
func (l *MultiLogger) ClearTags() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tags = nil
}

// Tags returns a copy of the current tag set.
func (l *MultiLogger) Tags() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.tags...)
}

func (l *MultiLogger) Debug(msg string, ctx ...map[string]any) {
	l.log(LevelDebug, msg, nil, ctx)
}

func (l *MultiLogger) Info(msg string, ctx ...map[string]any) {
	l.log(LevelInfo, msg, nil, ctx)
}

func (l *MultiLogger) Warn(msg string, ctx ...map[string]any) {
	l.log(LevelWarn, msg, nil, ctx)
}

func (l *MultiLogger) Error(msg string, ctx ...map[string]any) {
	l.log(LevelError, msg, nil, ctx)
}

// Capture logs at error level with the error attached, so tracking
// sinks turn it into a captured event.
func (l *MultiLogger) Capture(err error, msg string, ctx ...map[string]any) {
	l.log(LevelError, msg, err, ctx)
}

// Log emits at an arbitrary level.
func (l *MultiLogger) Log(level Level, msg string, ctx ...map[string]any) {
	l.log(level, msg, nil, ctx)
}

func (l *MultiLogger) log(level Level, msg string, err error, callCtx []map[string]any) {
	// Below the minimum level no entry is built at all; context merging
	// and timestamping are skipped, not just delivery.
	if level < l.MinLevel() {
		return
	}
	l.dispatch(l.buildEntry(level, msg, err, callCtx))
}

// Emit dispatches a caller-built entry through the same path as the
// leveled methods. Zero fields are filled from logger state; a non-nil
// entry context is merged over the global context.
func (l *MultiLogger) Emit(e Entry) {
	if e.Level < l.MinLevel() {
		return
	}
	l.mu.RLock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.SessionID == "" {
		e.SessionID = l.sessionID
	}
	if e.UserID == "" {
		e.UserID = l.userID
	}
	e.Context = mergeMaps(l.ctx, e.Context)
	if e.Tags == nil && len(l.tags) > 0 {
		e.Tags = append([]string(nil), l.tags...)
	}
	l.mu.RUnlock()
	l.dispatch(e)
}

func (l *MultiLogger) buildEntry(level Level, msg string, err error, callCtx []map[string]any) Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e := Entry{
		Level:     level,
		Message:   msg,
		Timestamp: time.Now(),
		Err:       err,
		UserID:    l.userID,
		SessionID: l.sessionID,
	}
	merged := append([]map[string]any{l.ctx}, callCtx...)
	e.Context = mergeMaps(merged...)
	if len(l.tags) > 0 {
		e.Tags = append([]string(nil), l.tags...)
	}
	return e
}

// dispatch hands the entry to every sink concurrently and waits for all
// of them to settle.
func (l *MultiLogger) dispatch(e Entry) {
	l.mu.RLock()
	sinks := append([]Sink(nil), l.sinks...)
	l.mu.RUnlock()
	if len(sinks) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, s := range sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					l.noteFailure(s, fmt.Errorf("panic: %v", r))
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			if err := s.Write(ctx, e); err != nil {
				l.noteFailure(s, err)
			}
		}(s)
	}
	wg.Wait()
}

// Flush forces buffered sinks to deliver. Sink failures are isolated
// and counted, never returned; only the caller's own context expiry
// comes back as an error.
func (l *MultiLogger) Flush(ctx context.Context) error {
	return l.settleAll(ctx, func(ctx context.Context, s Sink) error {
		if f, ok := s.(Flusher); ok {
			return f.Flush(ctx)
		}
		return nil
	})
}

// Close flushes and tears down every sink that supports it. Same error
// contract as Flush.
func (l *MultiLogger) Close(ctx context.Context) error {
	return l.settleAll(ctx, func(ctx context.Context, s Sink) error {
		if c, ok := s.(Closer); ok {
			return c.Close(ctx)
		}
		if f, ok := s.(Flusher); ok {
			return f.Flush(ctx)
		}
		return nil
	})
}

func (l *MultiLogger) settleAll(ctx context.Context, op func(context.Context, Sink) error) error {
	l.mu.RLock()
	sinks := append([]Sink(nil), l.sinks...)
	l.mu.RUnlock()

	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, s := range sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					l.noteFailure(s, fmt.Errorf("panic: %v", r))
				}
			}()
			if err := op(ctx, s); err != nil {
				l.noteFailure(s, err)
			}
		}(s)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DropCounts returns per-sink failure counters keyed by sink name.
func (l *MultiLogger) DropCounts() map[string]uint64 {
	l.dropMu.Lock()
	defer l.dropMu.Unlock()
	out := make(map[string]uint64, len(l.drops))
	for k, v := range l.drops {
		out[k] = v
	}
	return out
}

func (l *MultiLogger) noteFailure(s Sink, err error) {
	name := sinkName(s)
	l.dropMu.Lock()
	l.drops[name]++
	l.dropMu.Unlock()
	l.fallback.Warnf("sink %s failed: %v", name, err)
}

func sinkName(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
