// Package monitor watches the logging pipeline itself: how many
// entries flow, how many are errors, whether the stream has gone
// quiet. It implements the sink interface so it sees exactly what the
// real destinations see.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
)

// Health states, from best to worst.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

const (
	// errWindow is how many recent entries the error rate is computed
	// over. The health thresholds are percentages of this window.
	errWindow = 100

	// sizeWindow is how many recent entries the average size is
	// computed over. Larger than the error window so one burst of fat
	// entries does not dominate the average.
	sizeWindow = 1000

	// silenceLimit is how long the stream may go quiet before the
	// pipeline is suspect. An app that logs nothing for this long is
	// more likely wedged than idle.
	silenceLimit = 5 * time.Minute

	// largeEntryBytes flags payload bloat, usually an object dumped
	// into context by accident.
	largeEntryBytes = 16 << 10
)

// Monitor counts pipeline traffic. Safe for concurrent use.
type Monitor struct {
	clock func() time.Time

	mu        sync.Mutex
	started   time.Time
	total     uint64
	byLevel   map[logging.Level]uint64
	last      time.Time
	errRing   [errWindow]bool
	errLen    int
	errPos    int
	errCount  int
	sizeRing  [sizeWindow]int
	sizeLen   int
	sizePos   int
	sizeBytes int
	forwarded uint64
}

// Option adjusts a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now, for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Monitor) { m.clock = clock }
}

// New builds a monitor.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		clock:   time.Now,
		byLevel: make(map[logging.Level]uint64),
	}
	for _, o := range opts {
		o(m)
	}
	m.started = m.clock()
	return m
}

func (m *Monitor) Name() string { return "monitor" }

// Write records the entry. It never fails; a broken monitor must not
// count against the pipeline it watches.
func (m *Monitor) Write(ctx context.Context, e logging.Entry) error {
	size := entrySize(e)
	isErr := e.Level >= logging.LevelError

	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.byLevel[e.Level]++
	m.last = m.clock()

	if m.errLen == errWindow {
		if m.errRing[m.errPos] {
			m.errCount--
		}
	} else {
		m.errLen++
	}
	m.errRing[m.errPos] = isErr
	m.errPos = (m.errPos + 1) % errWindow
	if isErr {
		m.errCount++
	}

	if m.sizeLen == sizeWindow {
		m.sizeBytes -= m.sizeRing[m.sizePos]
	} else {
		m.sizeLen++
	}
	m.sizeRing[m.sizePos] = size
	m.sizePos = (m.sizePos + 1) % sizeWindow
	m.sizeBytes += size
	return nil
}

// NoteForwarded records one event handed to the error tracker.
func (m *Monitor) NoteForwarded() {
	m.mu.Lock()
	m.forwarded++
	m.mu.Unlock()
}

// Stats is a point-in-time snapshot of the counters.
type Stats struct {
	Total         uint64            `json:"total"`
	ByLevel       map[string]uint64 `json:"byLevel"`
	LastEntry     time.Time         `json:"lastEntry"`
	ErrorRate     float64           `json:"errorRate"` // over the error window
	AvgEntrySize  int               `json:"avgEntrySize"`
	WindowSize    int               `json:"windowSize"` // error window fill, up to 100
	Forwarded     uint64            `json:"forwarded"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
}

// Stats snapshots the counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	byLevel := make(map[string]uint64, len(m.byLevel))
	for lvl, n := range m.byLevel {
		byLevel[lvl.String()] = n
	}
	st := Stats{
		Total:         m.total,
		ByLevel:       byLevel,
		LastEntry:     m.last,
		WindowSize:    m.errLen,
		Forwarded:     m.forwarded,
		UptimeSeconds: int64(m.clock().Sub(m.started).Seconds()),
	}
	if m.errLen > 0 {
		st.ErrorRate = float64(m.errCount) / float64(m.errLen)
	}
	if m.sizeLen > 0 {
		st.AvgEntrySize = m.sizeBytes / m.sizeLen
	}
	return st
}

// Health describes the pipeline state with the reasons spelled out.
type Health struct {
	State    string       `json:"state"`
	Problems []string     `json:"problems,omitempty"`
	Stats    Stats        `json:"stats"`
	Memory   *MemoryStats `json:"memory,omitempty"`
}

// Health evaluates the counters against the health rules.
func (m *Monitor) Health() Health {
	st := m.Stats()
	h := Health{State: StateHealthy, Stats: st}

	if st.Total == 0 {
		h.degrade(StateDegraded, "no entries observed yet")
	} else {
		if quiet := m.clock().Sub(st.LastEntry); quiet > silenceLimit {
			h.degrade(StateDegraded, fmt.Sprintf("no entries for %s", quiet.Round(time.Second)))
		}
		// Exactly at a threshold is still the healthy side of it.
		if st.ErrorRate > 0.10 {
			h.degrade(StateUnhealthy, fmt.Sprintf("error rate %.0f%% over the last %d entries", st.ErrorRate*100, st.WindowSize))
		} else if st.ErrorRate > 0.05 {
			h.degrade(StateDegraded, fmt.Sprintf("error rate %.0f%% over the last %d entries", st.ErrorRate*100, st.WindowSize))
		}
		if st.AvgEntrySize > largeEntryBytes {
			h.degrade(StateDegraded, fmt.Sprintf("average entry size %dB exceeds %dB", st.AvgEntrySize, largeEntryBytes))
		}
	}

	if mem, err := readMemory(); err == nil {
		h.Memory = mem
	}
	return h
}

func (h *Health) degrade(state, reason string) {
	if state == StateUnhealthy || h.State == StateHealthy {
		h.State = state
	}
	h.Problems = append(h.Problems, reason)
}

// entrySize measures the entry as it would appear on the wire.
func entrySize(e logging.Entry) int {
	raw, err := json.Marshal(e)
	if err != nil {
		return len(e.Message)
	}
	return len(raw)
}
