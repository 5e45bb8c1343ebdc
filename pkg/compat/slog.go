package compat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
)

// SlogHandler routes log/slog records into the structured pipeline.
// Groups become dot-qualified key prefixes and an "error" or "err"
// attribute carrying an error value becomes the entry error.
type SlogHandler struct {
	logger    *logging.MultiLogger
	component string
	groups    []string
	attrs     []attrPair
}

type attrPair struct {
	key string
	val any
}

// NewSlogHandler returns a handler emitting under the given component.
func NewSlogHandler(l *logging.MultiLogger, component string) *SlogHandler {
	return &SlogHandler{logger: l, component: component}
}

func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return fromSlogLevel(level) >= h.logger.MinLevel()
}

func (h *SlogHandler) Handle(_ context.Context, r slog.Record) error {
	e := logging.Entry{
		Timestamp: r.Time,
		Level:     fromSlogLevel(r.Level),
		Message:   r.Message,
		Component: h.component,
	}

	pairs := make([]attrPair, 0, len(h.attrs)+r.NumAttrs())
	pairs = append(pairs, h.attrs...)
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		flattenAttr(prefix, a, &pairs)
		return true
	})

	data := make(map[string]any, len(pairs))
	for _, p := range pairs {
		if err, ok := p.val.(error); ok && e.Err == nil && (p.key == "error" || p.key == "err") {
			e.Err = err
			continue
		}
		data[p.key] = p.val
	}
	if len(data) > 0 {
		e.Data = data
	}

	h.logger.Emit(e)
	return nil
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := h.clone()
	prefix := strings.Join(h.groups, ".")
	for _, a := range attrs {
		flattenAttr(prefix, a, &nh.attrs)
	}
	return nh
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *SlogHandler) clone() *SlogHandler {
	return &SlogHandler{
		logger:    h.logger,
		component: h.component,
		groups:    append([]string(nil), h.groups...),
		attrs:     append([]attrPair(nil), h.attrs...),
	}
}

// flattenAttr resolves an attribute into dot-qualified pairs. Group
// attributes recurse; an empty group key inlines its members.
func flattenAttr(prefix string, a slog.Attr, out *[]attrPair) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = joinComponent(prefix, a.Key)
		}
		for _, member := range v.Group() {
			flattenAttr(p, member, out)
		}
		return
	}
	if a.Key == "" {
		return
	}
	*out = append(*out, attrPair{key: joinComponent(prefix, a.Key), val: v.Any()})
}

func fromSlogLevel(l slog.Level) logging.Level {
	switch {
	case l < slog.LevelInfo:
		return logging.LevelDebug
	case l < slog.LevelWarn:
		return logging.LevelInfo
	case l < slog.LevelError:
		return logging.LevelWarn
	default:
		return logging.LevelError
	}
}
