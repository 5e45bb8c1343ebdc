package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// testSink records entries and can be told to fail or panic.
type testSink struct {
	name    string
	mu      sync.Mutex
	entries []Entry
	flushed int
	closed  int
	failErr error
	panics  bool
}

func (s *testSink) Name() string { return s.name }

func (s *testSink) Write(ctx context.Context, e Entry) error {
	if s.panics {
		panic("sink blew up")
	}
	if s.failErr != nil {
		return s.failErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *testSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed++
	return nil
}

func (s *testSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *testSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *testSink) last() Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[len(s.entries)-1]
}

func newTestLogger(min Level, sinks ...Sink) *MultiLogger {
	l := New(Options{MinLevel: min, Fallback: NopFallback()})
	for _, s := range sinks {
		l.AddSink(s)
	}
	return l
}

func TestMinLevelFiltering(t *testing.T) {
	sink := &testSink{name: "capture"}
	l := newTestLogger(LevelWarn, sink)

	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("kept")
	l.Error("kept")

	if got := sink.count(); got != 2 {
		t.Fatalf("got %d entries, want 2", got)
	}
}

func TestFanOutReachesAllSinks(t *testing.T) {
	a := &testSink{name: "a"}
	b := &testSink{name: "b"}
	l := newTestLogger(LevelDebug, a, b)

	l.Info("hello")

	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("fan-out incomplete: a=%d b=%d", a.count(), b.count())
	}
}

func TestFailingSinkIsIsolated(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{MinLevel: LevelDebug, Fallback: NewFallback(&buf, false)})
	bad := &testSink{name: "bad", failErr: errors.New("disk gone")}
	good := &testSink{name: "good"}
	l.AddSink(bad)
	l.AddSink(good)

	l.Info("first")
	l.Info("second")

	if good.count() != 2 {
		t.Fatalf("healthy sink got %d entries, want 2", good.count())
	}
	if got := l.DropCounts()["bad"]; got != 2 {
		t.Fatalf("drop count for bad sink = %d, want 2", got)
	}
	if out := buf.String(); !strings.Contains(out, "disk gone") {
		t.Errorf("fallback should mention the sink error, got %q", out)
	}
}

func TestPanickingSinkIsIsolated(t *testing.T) {
	boom := &testSink{name: "boom", panics: true}
	a := &testSink{name: "a"}
	b := &testSink{name: "b"}
	l := newTestLogger(LevelDebug, a, boom, b)

	// The call must return normally and both healthy sinks must see
	// the entry.
	l.Error("still standing")

	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("healthy sinks missed the entry: a=%d b=%d", a.count(), b.count())
	}
	if got := l.DropCounts()["boom"]; got != 1 {
		t.Fatalf("panic not counted: %d", got)
	}
}

func TestContextMergeCallSiteWins(t *testing.T) {
	sink := &testSink{name: "capture"}
	l := newTestLogger(LevelDebug, sink)
	l.SetContext(map[string]any{"env": "prod", "region": "eu"})

	l.Info("msg", map[string]any{"region": "us", "extra": true})

	e := sink.last()
	if e.Context["env"] != "prod" {
		t.Errorf("global context lost: %v", e.Context)
	}
	if e.Context["region"] != "us" {
		t.Errorf("call-site context should win: %v", e.Context)
	}
	if e.Context["extra"] != true {
		t.Errorf("call-site only keys missing: %v", e.Context)
	}

	// The logger's stored context is unchanged by the call.
	l.Info("again")
	if e2 := sink.last(); e2.Context["region"] != "eu" {
		t.Errorf("call merge leaked into global context: %v", e2.Context)
	}
}

func TestTagSnapshot(t *testing.T) {
	sink := &testSink{name: "capture"}
	l := newTestLogger(LevelDebug, sink)
	l.AddTag("alpha")

	l.Info("one")
	l.AddTag("beta")
	l.Info("two")

	first := sink.entries[0]
	if len(first.Tags) != 1 || first.Tags[0] != "alpha" {
		t.Fatalf("first entry tags = %v, want [alpha]", first.Tags)
	}
	second := sink.entries[1]
	if len(second.Tags) != 2 {
		t.Fatalf("second entry tags = %v, want 2 tags", second.Tags)
	}

	l.RemoveTags("alpha", "beta")
	l.Info("three")
	if third := sink.entries[2]; len(third.Tags) != 0 {
		t.Fatalf("third entry tags = %v, want none", third.Tags)
	}
}

func TestSessionIDFixedAtConstruction(t *testing.T) {
	sink := &testSink{name: "capture"}
	l := New(Options{MinLevel: LevelDebug, SessionID: "fixed", Fallback: NopFallback()})
	l.AddSink(sink)

	l.Info("one")
	l.SetUserID("someone")
	l.Info("two")

	for _, e := range sink.entries {
		if e.SessionID != "fixed" {
			t.Fatalf("session id changed: %q", e.SessionID)
		}
	}
	if l.SessionID() != "fixed" {
		t.Fatalf("SessionID() = %q", l.SessionID())
	}

	// Generated when absent, and stable.
	l2 := New(Options{Fallback: NopFallback()})
	if l2.SessionID() == "" {
		t.Fatal("session id not generated")
	}
	if l2.SessionID() != l2.SessionID() {
		t.Fatal("session id not stable")
	}
}

func TestCaptureAttachesError(t *testing.T) {
	sink := &testSink{name: "capture"}
	l := newTestLogger(LevelDebug, sink)

	cause := errors.New("connection refused")
	l.Capture(cause, "upstream down", map[string]any{"host": "db-1"})

	e := sink.last()
	if e.Level != LevelError {
		t.Fatalf("level = %v, want error", e.Level)
	}
	if !errors.Is(e.Err, cause) {
		t.Fatalf("err = %v, want the original", e.Err)
	}
}

func TestEmitFillsDefaults(t *testing.T) {
	sink := &testSink{name: "capture"}
	l := New(Options{MinLevel: LevelInfo, SessionID: "sess", UserID: "u-9", Fallback: NopFallback()})
	l.AddSink(sink)
	l.SetContext(map[string]any{"svc": "api"})

	l.Emit(Entry{Level: LevelWarn, Message: "legacy", Component: "auth", Context: map[string]any{"step": 2}})
	l.Emit(Entry{Level: LevelDebug, Message: "filtered"})

	if sink.count() != 1 {
		t.Fatalf("emit below min level must be filtered, got %d entries", sink.count())
	}
	e := sink.last()
	if e.SessionID != "sess" || e.UserID != "u-9" {
		t.Fatalf("identity not filled: %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Fatal("timestamp not filled")
	}
	if e.Context["svc"] != "api" || e.Context["step"] != 2 {
		t.Fatalf("context merge wrong: %v", e.Context)
	}
	if e.Component != "auth" {
		t.Fatalf("component lost: %q", e.Component)
	}
}

func TestFlushAndClose(t *testing.T) {
	sink := &testSink{name: "capture"}
	l := newTestLogger(LevelDebug, sink)

	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if sink.flushed != 1 {
		t.Fatalf("flushed = %d, want 1", sink.flushed)
	}
	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.closed != 1 {
		t.Fatalf("closed = %d, want 1", sink.closed)
	}
}

func TestFlushHonorsContext(t *testing.T) {
	stuck := &blockingSink{release: make(chan struct{})}
	l := newTestLogger(LevelDebug, stuck)
	defer close(stuck.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("flush err = %v, want deadline exceeded", err)
	}
}

// blockingSink wedges Flush until released, ignoring the flush context
// on purpose so the logger's own deadline handling is what is tested.
type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Name() string { return "stuck" }

func (s *blockingSink) Write(ctx context.Context, e Entry) error { return nil }

func (s *blockingSink) Flush(ctx context.Context) error {
	<-s.release
	return nil
}

func TestRemoveSink(t *testing.T) {
	a := &testSink{name: "a"}
	b := &testSink{name: "b"}
	l := newTestLogger(LevelDebug, a, b)

	if !l.RemoveSink("a") {
		t.Fatal("RemoveSink(a) = false")
	}
	if l.RemoveSink("a") {
		t.Fatal("second RemoveSink(a) should report false")
	}
	l.Info("after removal")
	if a.count() != 0 || b.count() != 1 {
		t.Fatalf("removal not effective: a=%d b=%d", a.count(), b.count())
	}
}

func TestConcurrentLogging(t *testing.T) {
	sink := &testSink{name: "capture"}
	l := newTestLogger(LevelDebug, sink)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				l.Info("concurrent", map[string]any{"worker": n})
			}
		}(i)
	}
	wg.Wait()

	if got := sink.count(); got != 200 {
		t.Fatalf("got %d entries, want 200", got)
	}
}
