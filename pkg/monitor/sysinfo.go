package monitor

import (
	"errors"
	"time"

	"github.com/mackerelio/go-osstat/cpu"
	"github.com/mackerelio/go-osstat/memory"
)

// MemoryStats is the host memory picture attached to health reports.
type MemoryStats struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"usedPercent"`
}

func readMemory() (*MemoryStats, error) {
	mem, err := memory.Get()
	if err != nil {
		return nil, err
	}
	st := &MemoryStats{
		Total: mem.Total,
		Used:  mem.Used,
		Free:  mem.Free,
	}
	if mem.Total > 0 {
		st.UsedPercent = float64(mem.Used) / float64(mem.Total) * 100
	}
	return st, nil
}

// CPUUsagePercent samples the CPU counters twice, interval apart, and
// returns the busy share in percent.
func CPUUsagePercent(interval time.Duration) (float64, error) {
	before, err := cpu.Get()
	if err != nil {
		return 0, err
	}
	time.Sleep(interval)
	after, err := cpu.Get()
	if err != nil {
		return 0, err
	}
	idle := float64(after.Idle - before.Idle)
	total := float64(after.Total - before.Total)
	if total == 0 {
		return 0, errors.New("cpu counters did not advance")
	}
	return (1.0 - idle/total) * 100.0, nil
}
