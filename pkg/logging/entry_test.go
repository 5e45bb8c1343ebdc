package logging

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEntryMarshalShape(t *testing.T) {
	e := Entry{
		Level:     LevelWarn,
		Message:   "disk almost full",
		Timestamp: time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
		Context:   map[string]any{"free_bytes": 1024},
		Err:       errors.New("statfs failed"),
		Tags:      []string{"storage"},
		UserID:    "u-1",
		SessionID: "s-1",
		Component: "disk",
	}

	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal into map: %v", err)
	}

	if m["level"] != "warn" {
		t.Errorf("level = %v, want warn", m["level"])
	}
	if m["message"] != "disk almost full" {
		t.Errorf("message = %v", m["message"])
	}
	if m["error"] != "statfs failed" {
		t.Errorf("error = %v, want statfs failed", m["error"])
	}
	if m["sessionId"] != "s-1" {
		t.Errorf("sessionId = %v", m["sessionId"])
	}
	if m["component"] != "disk" {
		t.Errorf("component = %v", m["component"])
	}
	if _, ok := m["data"]; ok {
		t.Error("empty data should be omitted")
	}
}

func TestEntryRoundTrip(t *testing.T) {
	in := Entry{
		Level:     LevelError,
		Message:   "boom",
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		Context:   map[string]any{"k": "v"},
		Err:       errors.New("cause"),
		SessionID: "sess",
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Entry
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Level != in.Level || out.Message != in.Message || out.SessionID != in.SessionID {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
	if out.Err == nil || out.Err.Error() != "cause" {
		t.Fatalf("error not restored: %v", out.Err)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("timestamp drift: %v vs %v", out.Timestamp, in.Timestamp)
	}
}

func TestEntryMarshalNeverFails(t *testing.T) {
	e := Entry{
		Level:     LevelInfo,
		Message:   "weird payload",
		Timestamp: time.Now(),
		Context: map[string]any{
			"fn": func() {},
			"ch": make(chan int),
			"ok": "plain",
		},
	}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal with unserializable context: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "[unserializable") {
		t.Errorf("expected placeholder for unserializable values, got %s", s)
	}
	if !strings.Contains(s, "plain") {
		t.Errorf("plain values should survive, got %s", s)
	}
}

func TestMergeMaps(t *testing.T) {
	global := map[string]any{"a": 1, "b": 1}
	call := map[string]any{"b": 2, "c": 2}
	got := mergeMaps(global, call)
	if got["a"] != 1 || got["b"] != 2 || got["c"] != 2 {
		t.Fatalf("merge = %v", got)
	}
	// Inputs stay untouched.
	if global["b"] != 1 {
		t.Fatal("merge mutated its input")
	}
	if mergeMaps(nil, nil) != nil {
		t.Fatal("merging nothing should stay nil")
	}
}
