package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
	"github.com/DeBrosOfficial/logfan/pkg/redact"
)

func write(t *testing.T, m *Monitor, level logging.Level, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := m.Write(context.Background(), logging.Entry{Level: level, Message: "x"}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
}

func TestCounters(t *testing.T) {
	m := New()
	write(t, m, logging.LevelDebug, 2)
	write(t, m, logging.LevelInfo, 3)
	write(t, m, logging.LevelError, 1)

	st := m.Stats()
	if st.Total != 6 {
		t.Errorf("Total = %d", st.Total)
	}
	if st.ByLevel["debug"] != 2 || st.ByLevel["info"] != 3 || st.ByLevel["error"] != 1 {
		t.Errorf("ByLevel = %v", st.ByLevel)
	}
	if st.LastEntry.IsZero() {
		t.Error("LastEntry not set")
	}
	if st.WindowSize != 6 {
		t.Errorf("WindowSize = %d", st.WindowSize)
	}
}

func TestNoEntriesIsDegraded(t *testing.T) {
	h := New().Health()
	if h.State != StateDegraded {
		t.Errorf("State = %q", h.State)
	}
	if len(h.Problems) == 0 || !strings.Contains(h.Problems[0], "no entries") {
		t.Errorf("Problems = %v", h.Problems)
	}
}

func TestErrorRateThresholds(t *testing.T) {
	tests := []struct {
		name   string
		errors int
		infos  int
		state  string
	}{
		{"all quiet", 0, 50, StateHealthy},
		{"exactly five percent", 5, 95, StateHealthy},
		{"six percent", 6, 94, StateDegraded},
		{"exactly ten percent", 10, 90, StateDegraded},
		{"eleven percent", 11, 89, StateUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			write(t, m, logging.LevelError, tt.errors)
			write(t, m, logging.LevelInfo, tt.infos)
			if h := m.Health(); h.State != tt.state {
				t.Errorf("State = %q, want %q (problems: %v)", h.State, tt.state, h.Problems)
			}
		})
	}
}

func TestErrorRateWindowForgets(t *testing.T) {
	m := New()
	write(t, m, logging.LevelError, 100)
	if h := m.Health(); h.State != StateUnhealthy {
		t.Fatalf("State = %q after an error storm", h.State)
	}
	// A full window of clean traffic pushes the storm out.
	write(t, m, logging.LevelInfo, 100)
	if h := m.Health(); h.State != StateHealthy {
		t.Errorf("State = %q after recovery (problems: %v)", h.State, h.Problems)
	}
	if st := m.Stats(); st.ErrorRate != 0 {
		t.Errorf("ErrorRate = %v", st.ErrorRate)
	}
}

func TestSilenceIsDegraded(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	m := New(WithClock(func() time.Time { return now }))

	write(t, m, logging.LevelInfo, 1)
	if h := m.Health(); h.State != StateHealthy {
		t.Fatalf("State = %q right after the entry", h.State)
	}

	now = now.Add(6 * time.Minute)
	h := m.Health()
	if h.State != StateDegraded {
		t.Errorf("State = %q after 6 minutes of silence", h.State)
	}
	if len(h.Problems) == 0 || !strings.Contains(h.Problems[0], "no entries for") {
		t.Errorf("Problems = %v", h.Problems)
	}
}

func TestOversizedEntriesAreDegraded(t *testing.T) {
	m := New()
	big := strings.Repeat("x", 20_000)
	for i := 0; i < 3; i++ {
		m.Write(context.Background(), logging.Entry{Level: logging.LevelInfo, Message: big})
	}
	h := m.Health()
	if h.State != StateDegraded {
		t.Fatalf("State = %q", h.State)
	}
	found := false
	for _, p := range h.Problems {
		if strings.Contains(p, "average entry size") {
			found = true
		}
	}
	if !found {
		t.Errorf("Problems = %v", h.Problems)
	}
}

func TestForwardedCounter(t *testing.T) {
	m := New()
	m.NoteForwarded()
	m.NoteForwarded()
	if st := m.Stats(); st.Forwarded != 2 {
		t.Errorf("Forwarded = %d", st.Forwarded)
	}
}

func TestSelfTestPasses(t *testing.T) {
	l := logging.New(logging.Options{
		MinLevel: logging.LevelDebug,
		Fallback: logging.NopFallback(),
	})
	m := New()
	l.AddSink(m)

	if err := m.SelfTest(context.Background(), l, redact.Default()); err != nil {
		t.Errorf("SelfTest: %v", err)
	}
	if st := m.Stats(); st.Total != 4 {
		t.Errorf("probes seen by monitor = %d", st.Total)
	}
}

func TestSelfTestHonorsLevelFloor(t *testing.T) {
	l := logging.New(logging.Options{
		MinLevel: logging.LevelWarn,
		Fallback: logging.NopFallback(),
	})
	if err := New().SelfTest(context.Background(), l, redact.Default()); err != nil {
		t.Errorf("SelfTest: %v", err)
	}
}
