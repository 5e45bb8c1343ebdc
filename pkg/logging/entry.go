package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entry is one structured log record. Entries are built by the logger
// and handed to every sink; sinks must treat them as read-only.
type Entry struct {
	Level     Level
	Message   string
	Timestamp time.Time
	Context   map[string]any
	Err       error
	Tags      []string
	UserID    string
	SessionID string

	// Historical call-site fields, populated by the compat layer.
	Component string
	Action    string
	Data      map[string]any
}

// entryWire is the JSON shape entries travel in. Errors flatten to
// strings; timestamps are RFC3339Nano.
type entryWire struct {
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
	Error     string         `json:"error,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Component string         `json:"component,omitempty"`
	Action    string         `json:"action,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	w := entryWire{
		Level:     e.Level,
		Message:   e.Message,
		Timestamp: e.Timestamp,
		Context:   e.Context,
		Tags:      e.Tags,
		UserID:    e.UserID,
		SessionID: e.SessionID,
		Component: e.Component,
		Action:    e.Action,
		Data:      e.Data,
	}
	if e.Err != nil {
		w.Error = e.Err.Error()
	}
	b, err := json.Marshal(w)
	if err == nil {
		return b, nil
	}
	// Context or data carried something json cannot represent. Logging
	// must not fail over it: substitute printable stand-ins and retry.
	w.Context = sanitizeMap(e.Context)
	w.Data = sanitizeMap(e.Data)
	return json.Marshal(w)
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var w entryWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Entry{
		Level:     w.Level,
		Message:   w.Message,
		Timestamp: w.Timestamp,
		Context:   w.Context,
		Tags:      w.Tags,
		UserID:    w.UserID,
		SessionID: w.SessionID,
		Component: w.Component,
		Action:    w.Action,
		Data:      w.Data,
	}
	if w.Error != "" {
		e.Err = errors.New(w.Error)
	}
	return nil
}

// sanitizeMap replaces values json.Marshal chokes on (functions,
// channels, self-referencing structures) with a typed placeholder.
// Printing the value itself is not safe: fmt recurses forever on cycles.
func sanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, err := json.Marshal(v); err != nil {
			out[k] = fmt.Sprintf("[unserializable %T]", v)
			continue
		}
		out[k] = v
	}
	return out
}

// mergeMaps overlays later maps onto earlier ones, later keys winning.
// The inputs are never mutated; nil inputs are skipped.
func mergeMaps(maps ...map[string]any) map[string]any {
	var out map[string]any
	for _, m := range maps {
		if len(m) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(m))
		}
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
