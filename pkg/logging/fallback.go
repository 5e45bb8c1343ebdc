package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fallback carries the pipeline's own diagnostics: sink write failures,
// dropped batches, degraded configuration. It writes directly and never
// feeds back into the pipeline, so a broken sink cannot loop.
type Fallback struct {
	z *zap.Logger
}

// NewFallback builds a fallback logger writing to w.
func NewFallback(w io.Writer, enableColors bool) *Fallback {
	core := zapcore.NewCore(
		NewConsoleEncoder(enableColors),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
	return &Fallback{z: zap.New(core)}
}

// StderrFallback is the default target, with color auto-detection.
func StderrFallback() *Fallback {
	colors := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	return NewFallback(os.Stderr, colors)
}

// NopFallback discards everything. Useful in tests.
func NopFallback() *Fallback {
	return &Fallback{z: zap.NewNop()}
}

func (f *Fallback) Debugf(format string, args ...any) {
	f.z.Debug(fmt.Sprintf(format, args...))
}

func (f *Fallback) Infof(format string, args ...any) {
	f.z.Info(fmt.Sprintf(format, args...))
}

func (f *Fallback) Warnf(format string, args ...any) {
	f.z.Warn(fmt.Sprintf(format, args...))
}

func (f *Fallback) Errorf(format string, args ...any) {
	f.z.Error(fmt.Sprintf(format, args...))
}

// Sync flushes buffered output.
func (f *Fallback) Sync() error {
	return f.z.Sync()
}
