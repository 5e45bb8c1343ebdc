package compat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
)

type captureSink struct {
	mu      sync.Mutex
	entries []logging.Entry
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Write(_ context.Context, e logging.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *captureSink) all() []logging.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]logging.Entry(nil), c.entries...)
}

func (c *captureSink) last(t *testing.T) logging.Entry {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.entries, "no entries captured")
	return c.entries[len(c.entries)-1]
}

func newTestShim(t *testing.T) (*Shim, *captureSink) {
	t.Helper()
	l := logging.New(logging.Options{
		MinLevel: logging.LevelDebug,
		Fallback: logging.NopFallback(),
	})
	sink := &captureSink{}
	l.AddSink(sink)
	return NewShim(l), sink
}

func TestParseCallShapes(t *testing.T) {
	errBoom := errors.New("boom")
	data := map[string]any{"k": "v"}

	cases := []struct {
		name string
		args []any
		want call
	}{
		{
			name: "message only",
			args: []any{"hello"},
			want: call{message: "hello"},
		},
		{
			name: "message and data",
			args: []any{"hello", data},
			want: call{message: "hello", data: data},
		},
		{
			name: "component and message",
			args: []any{"auth", "login ok"},
			want: call{component: "auth", message: "login ok"},
		},
		{
			name: "message and error",
			args: []any{"save failed", errBoom},
			want: call{message: "save failed", err: errBoom},
		},
		{
			name: "component message data",
			args: []any{"auth", "login ok", data},
			want: call{component: "auth", message: "login ok", data: data},
		},
		{
			name: "component message error",
			args: []any{"auth", "login failed", errBoom},
			want: call{component: "auth", message: "login failed", err: errBoom},
		},
		{
			name: "message error data",
			args: []any{"save failed", errBoom, data},
			want: call{message: "save failed", err: errBoom, data: data},
		},
		{
			name: "component message error data",
			args: []any{"auth", "login failed", errBoom, data},
			want: call{component: "auth", message: "login failed", err: errBoom, data: data},
		},
		{
			name: "nil arguments are dropped",
			args: []any{"hello", nil, nil},
			want: call{message: "hello"},
		},
		{
			name: "bare error",
			args: []any{errBoom},
			want: call{err: errBoom},
		},
		{
			name: "no arguments",
			args: nil,
			want: call{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseCall(tc.args)
			assert.Equal(t, tc.want.component, got.component)
			assert.Equal(t, tc.want.message, got.message)
			assert.Equal(t, tc.want.err, got.err)
			assert.Equal(t, tc.want.data, got.data)
		})
	}
}

func TestParseCallFoldsExtras(t *testing.T) {
	got := parseCall([]any{"msg", 42, true})
	assert.Equal(t, "msg", got.message)
	assert.Equal(t, []any{42, true}, got.data["args"])

	// A second error is an extra, not a replacement.
	first := errors.New("first")
	second := errors.New("second")
	got = parseCall([]any{"msg", first, second})
	assert.Equal(t, first, got.err)
	assert.Equal(t, []any{second}, got.data["args"])
}

func TestParseCallDoesNotMutateCallerData(t *testing.T) {
	data := map[string]any{"k": "v"}
	got := parseCall([]any{"msg", data, "extra"})
	assert.Equal(t, []any{"extra"}, got.data["args"])
	assert.NotContains(t, data, "args")
}

func TestShimLevels(t *testing.T) {
	s, sink := newTestShim(t)

	s.Debug("d")
	s.Info("i")
	s.Warn("w")
	s.Error("e")

	entries := sink.all()
	require.Len(t, entries, 4)
	assert.Equal(t, logging.LevelDebug, entries[0].Level)
	assert.Equal(t, logging.LevelInfo, entries[1].Level)
	assert.Equal(t, logging.LevelWarn, entries[2].Level)
	assert.Equal(t, logging.LevelError, entries[3].Level)
}

func TestChildJoinsComponents(t *testing.T) {
	s, sink := newTestShim(t)

	db := s.Child("api").Child("db")
	db.Info("connected")
	assert.Equal(t, "api.db", sink.last(t).Component)

	// A per-call component extends the child's path.
	db.Info("pool", "exhausted")
	assert.Equal(t, "api.db.pool", sink.last(t).Component)
}

func TestChildFixedFields(t *testing.T) {
	s, sink := newTestShim(t)

	worker := s.Child("worker", map[string]any{"queue": "emails", "region": "eu"})
	worker.Info("picked up job", map[string]any{"job_id": 7, "region": "us"})

	e := sink.last(t)
	assert.Equal(t, "emails", e.Data["queue"])
	assert.Equal(t, 7, e.Data["job_id"])
	assert.Equal(t, "us", e.Data["region"], "call data wins over fixed fields")

	// Grandchildren inherit and extend fixed fields.
	sub := worker.Child("retry", map[string]any{"attempt": 1})
	sub.Warn("requeued")
	e = sink.last(t)
	assert.Equal(t, "worker.retry", e.Component)
	assert.Equal(t, "emails", e.Data["queue"])
	assert.Equal(t, 1, e.Data["attempt"])
}

func TestActionEvent(t *testing.T) {
	s, sink := newTestShim(t)

	s.Child("billing").Action("invoice_paid", map[string]any{"invoice": "inv-12"})

	e := sink.last(t)
	assert.Equal(t, logging.LevelInfo, e.Level)
	assert.Equal(t, "invoice_paid", e.Action)
	assert.Equal(t, "invoice_paid", e.Message)
	assert.Equal(t, "billing", e.Component)
	assert.Equal(t, "inv-12", e.Data["invoice"])
}

func TestBareErrorBecomesMessage(t *testing.T) {
	s, sink := newTestShim(t)

	errBoom := errors.New("connection reset")
	s.Error(errBoom)

	e := sink.last(t)
	assert.Equal(t, "connection reset", e.Message)
	assert.Equal(t, errBoom, e.Err)
}

func TestShimHonorsLevelFloor(t *testing.T) {
	l := logging.New(logging.Options{
		MinLevel: logging.LevelWarn,
		Fallback: logging.NopFallback(),
	})
	sink := &captureSink{}
	l.AddSink(sink)
	s := NewShim(l)

	s.Debug("quiet")
	s.Info("quiet")
	s.Warn("loud")

	entries := sink.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "loud", entries[0].Message)
}
