package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
	"github.com/DeBrosOfficial/logfan/pkg/redact"
)

// SelfTest pushes one probe entry per level through the logger,
// verifies they fan out, and verifies the redactor scrubs planted PII.
// All findings are combined into the returned error.
func (m *Monitor) SelfTest(ctx context.Context, l *logging.MultiLogger, r *redact.Redactor) error {
	var err error

	probe := &probeSink{}
	l.AddSink(probe)
	defer l.RemoveSink(probe.Name())

	marker := uuid.NewString()
	fields := map[string]any{"probe": marker}
	l.Debug("self-test debug probe", fields)
	l.Info("self-test info probe", fields)
	l.Warn("self-test warn probe", fields)
	l.Error("self-test error probe", fields)
	if ferr := l.Flush(ctx); ferr != nil {
		err = multierr.Append(err, fmt.Errorf("flush: %w", ferr))
	}

	// Entries below the level floor are filtered before dispatch, so
	// only count the levels that should have arrived.
	expected := 0
	for _, lvl := range []logging.Level{logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError} {
		if lvl >= l.MinLevel() {
			expected++
		}
	}
	if got := probe.count(marker); got != expected {
		err = multierr.Append(err, fmt.Errorf("fan-out delivered %d of %d probe entries", got, expected))
	}

	clean := r.RedactEntry(logging.Entry{
		Level:   logging.LevelError,
		Message: "self-test contact probe@example.com",
		Context: map[string]any{"password": "probe-secret-1"},
	})
	if strings.Contains(clean.Message, "probe@example.com") {
		err = multierr.Append(err, errors.New("redaction left an email in the message"))
	}
	if clean.Context["password"] != "[REDACTED]" {
		err = multierr.Append(err, errors.New("redaction left a password field intact"))
	}

	return err
}

// probeSink captures self-test entries without touching real
// destinations.
type probeSink struct {
	mu      sync.Mutex
	entries []logging.Entry
}

func (p *probeSink) Name() string { return "selftest-probe" }

func (p *probeSink) Write(ctx context.Context, e logging.Entry) error {
	p.mu.Lock()
	p.entries = append(p.entries, e)
	p.mu.Unlock()
	return nil
}

func (p *probeSink) count(marker string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.entries {
		if e.Context["probe"] == marker {
			n++
		}
	}
	return n
}
