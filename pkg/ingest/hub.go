package ingest

import (
	"sync"
	"sync/atomic"
)

// subBuffer is the per-subscriber line buffer. A tail that cannot keep
// up loses lines rather than stalling ingestion.
const subBuffer = 128

// tailHub fans freshly appended lines out to live tail subscribers,
// keyed by file name.
type tailHub struct {
	mu     sync.RWMutex
	subs   map[string][]*tailSub
	closed bool
}

type tailSub struct {
	lines   chan []byte
	dropped atomic.Uint64
}

func newTailHub() *tailHub {
	return &tailHub{subs: make(map[string][]*tailSub)}
}

func (h *tailHub) subscribe(filename string) *tailSub {
	s := &tailSub{lines: make(chan []byte, subBuffer)}
	h.mu.Lock()
	if h.closed {
		close(s.lines)
	} else {
		h.subs[filename] = append(h.subs[filename], s)
	}
	h.mu.Unlock()
	return s
}

func (h *tailHub) unsubscribe(filename string, s *tailSub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[filename]
	// Copy-on-write so a concurrent publish iterating the old slice
	// never observes the removal mid-flight.
	next := make([]*tailSub, 0, len(subs))
	for _, sub := range subs {
		if sub != s {
			next = append(next, sub)
		}
	}
	if len(next) == 0 {
		delete(h.subs, filename)
		return
	}
	h.subs[filename] = next
}

// publish offers each line to every subscriber of the file. Sends
// never block; a full subscriber buffer counts a drop instead.
func (h *tailHub) publish(filename string, lines [][]byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, s := range h.subs[filename] {
		for _, line := range lines {
			select {
			case s.lines <- line:
			default:
				s.dropped.Add(1)
			}
		}
	}
}

// closeAll ends every subscription; their channels are closed so tail
// writers can send a close frame and exit.
func (h *tailHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, subs := range h.subs {
		for _, s := range subs {
			close(s.lines)
		}
	}
	h.subs = make(map[string][]*tailSub)
}
