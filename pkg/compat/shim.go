// Package compat adapts loosely-typed legacy logging call sites to the
// structured pipeline. Old code logs with positional arguments in a
// handful of shapes; the shim classifies each call and produces a
// proper entry without any call-site changes.
package compat

import (
	"github.com/DeBrosOfficial/logfan/pkg/logging"
)

// Shim accepts legacy-style variadic log calls.
type Shim struct {
	logger    *logging.MultiLogger
	component string
	fixed     map[string]any
}

// NewShim wraps a logger.
func NewShim(l *logging.MultiLogger) *Shim {
	return &Shim{logger: l}
}

// Logger exposes the underlying structured logger.
func (s *Shim) Logger() *logging.MultiLogger { return s.logger }

// Component returns the fixed component path of this shim.
func (s *Shim) Component() string { return s.component }

// Child returns a shim whose entries carry the given component,
// dot-joined onto the parent's, plus optional fixed fields merged over
// the parent's.
func (s *Shim) Child(component string, fixed ...map[string]any) *Shim {
	child := &Shim{
		logger:    s.logger,
		component: joinComponent(s.component, component),
	}
	merged := map[string]any{}
	for k, v := range s.fixed {
		merged[k] = v
	}
	for _, m := range fixed {
		for k, v := range m {
			merged[k] = v
		}
	}
	if len(merged) > 0 {
		child.fixed = merged
	}
	return child
}

func (s *Shim) Debug(args ...any) { s.emit(logging.LevelDebug, args) }
func (s *Shim) Info(args ...any)  { s.emit(logging.LevelInfo, args) }
func (s *Shim) Warn(args ...any)  { s.emit(logging.LevelWarn, args) }
func (s *Shim) Error(args ...any) { s.emit(logging.LevelError, args) }

// Action records a named user or system action at info level.
func (s *Shim) Action(action string, data map[string]any) {
	s.logger.Emit(logging.Entry{
		Level:     logging.LevelInfo,
		Message:   action,
		Component: s.component,
		Action:    action,
		Data:      mergeData(s.fixed, data),
	})
}

func (s *Shim) emit(level logging.Level, args []any) {
	c := parseCall(args)
	msg := c.message
	if msg == "" && c.err != nil {
		// Bare log.Error(err) call sites.
		msg = c.err.Error()
	}
	s.logger.Emit(logging.Entry{
		Level:     level,
		Message:   msg,
		Err:       c.err,
		Component: joinComponent(s.component, c.component),
		Data:      mergeData(s.fixed, c.data),
	})
}

// call is one classified legacy invocation.
type call struct {
	component string
	message   string
	err       error
	data      map[string]any
}

// parseCall classifies legacy positional arguments. The recognized
// shapes are (message), (message, data), (component, message),
// (message, err), (component, message, data), (component, message,
// err), (message, err, data) and (component, message, err, data).
// Two leading strings always mean component plus message. Anything
// unrecognized is preserved under the "args" key rather than dropped.
func parseCall(args []any) call {
	var c call
	i := 0
	if len(args) > 0 {
		if first, ok := args[0].(string); ok {
			c.message = first
			i = 1
			if len(args) > 1 {
				if second, ok := args[1].(string); ok {
					c.component = first
					c.message = second
					i = 2
				}
			}
		}
	}

	var extras []any
	for _, a := range args[i:] {
		switch v := a.(type) {
		case nil:
			// Legacy sites pass nil errors unconditionally; drop them.
		case error:
			if c.err == nil {
				c.err = v
			} else {
				extras = append(extras, v)
			}
		case map[string]any:
			if c.data == nil {
				c.data = v
			} else {
				extras = append(extras, v)
			}
		default:
			extras = append(extras, a)
		}
	}
	if len(extras) > 0 {
		// Copy before annotating; the data map belongs to the caller.
		data := make(map[string]any, len(c.data)+1)
		for k, v := range c.data {
			data[k] = v
		}
		data["args"] = extras
		c.data = data
	}
	return c
}

func joinComponent(parent, child string) string {
	switch {
	case parent == "":
		return child
	case child == "":
		return parent
	default:
		return parent + "." + child
	}
}

// mergeData overlays call data over fixed fields without mutating
// either. Returns nil when both are empty.
func mergeData(fixed, data map[string]any) map[string]any {
	if len(fixed) == 0 {
		return data
	}
	out := make(map[string]any, len(fixed)+len(data))
	for k, v := range fixed {
		out[k] = v
	}
	for k, v := range data {
		out[k] = v
	}
	return out
}
