// Package console renders entries to a terminal through a zap core
// with the compact colored encoder. The console is not a process
// boundary, so entries are shown unredacted; serialization still must
// never crash the host, whatever the context carries.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
)

// ColorMode controls ANSI output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// Options configure the sink.
type Options struct {
	// Writer defaults to os.Stdout.
	Writer io.Writer

	// Colors defaults to auto-detection on the writer.
	Colors ColorMode
}

// Sink writes entries to a terminal.
type Sink struct {
	log    *zap.Logger
	colors bool
}

// New builds a console sink.
func New(opts Options) *Sink {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	colors := false
	switch opts.Colors {
	case ColorAlways:
		colors = true
	case ColorNever:
		colors = false
	default:
		if f, ok := w.(*os.File); ok {
			colors = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}

	core := zapcore.NewCore(
		logging.NewConsoleEncoder(colors),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
	return &Sink{
		log:    zap.New(core),
		colors: colors,
	}
}

func (s *Sink) Name() string { return "console" }

// Write renders one entry. The entry's own timestamp is used, not the
// time of rendering.
func (s *Sink) Write(ctx context.Context, e logging.Entry) error {
	msg := e.Message
	if e.Component != "" {
		if s.colors {
			msg = fmt.Sprintf("%s[%s]%s %s", logging.BrightCyan, e.Component, logging.Reset, msg)
		} else {
			msg = fmt.Sprintf("[%s] %s", e.Component, msg)
		}
	}

	ce := s.log.Check(logging.ZapLevel(e.Level), msg)
	if ce == nil {
		return nil
	}
	ce.Time = e.Timestamp
	ce.Write(s.fields(e)...)
	return nil
}

func (s *Sink) fields(e logging.Entry) []zap.Field {
	fields := make([]zap.Field, 0, 6)
	if len(e.Context) > 0 {
		fields = append(fields, zap.Any("context", safeMap(e.Context)))
	}
	if len(e.Data) > 0 {
		fields = append(fields, zap.Any("data", safeMap(e.Data)))
	}
	if e.Err != nil {
		fields = append(fields, zap.String("error", e.Err.Error()))
	}
	if e.Action != "" {
		fields = append(fields, zap.String("action", e.Action))
	}
	if len(e.Tags) > 0 {
		fields = append(fields, zap.Strings("tags", e.Tags))
	}
	if e.UserID != "" {
		fields = append(fields, zap.String("user", e.UserID))
	}
	return fields
}

// Flush syncs the underlying writer.
func (s *Sink) Flush(ctx context.Context) error {
	// Sync on a terminal returns ENOTTY-style errors; those are not
	// failures of the sink.
	_ = s.log.Sync()
	return nil
}

// safeMap replaces values the zap json reflection cannot encode with a
// printable placeholder so one odd value never discards the line.
func safeMap(m map[string]any) map[string]any {
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
