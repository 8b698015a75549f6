// Package gauxps implements [gaux.DeviceMetrics] for the current process using gopsutil.
package gauxps

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gordian-engine/gstall/gaux"
	"github.com/gordian-engine/gstall/gstack"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/shirou/gopsutil/v4/sensors"
)

// Metrics reads process and device metrics through gopsutil.
type Metrics struct {
	proc *process.Process

	mu          sync.Mutex
	lastThreads map[int32]float64
	lastWall    time.Time
}

// New returns Metrics for the current process.
func New() (*Metrics, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open current process: %w", err)
	}
	return &Metrics{proc: p}, nil
}

// CPUUsage returns usage since the previous call.
// The first call returns zero.
func (m *Metrics) CPUUsage() (float64, error) {
	pct, err := m.proc.Percent(0)
	if err != nil {
		return 0, fmt.Errorf("failed to read process CPU percent: %w", err)
	}
	return pct, nil
}

// ThreadUsage returns per-thread usage since the previous call.
// Threads seen for the first time report zero.
func (m *Metrics) ThreadUsage() ([]gaux.ThreadUsage, error) {
	times, err := m.proc.Threads()
	if err != nil {
		return nil, fmt.Errorf("failed to read thread times: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	wall := now.Sub(m.lastWall).Seconds()

	cur := make(map[int32]float64, len(times))
	out := make([]gaux.ThreadUsage, 0, len(times))
	for tid, ts := range times {
		busy := ts.User + ts.System
		cur[tid] = busy

		var pct float64
		if prev, ok := m.lastThreads[tid]; ok && !m.lastWall.IsZero() && wall > 0 {
			pct = (busy - prev) / wall * 100
		}
		out = append(out, gaux.ThreadUsage{ID: gstack.ThreadID(tid), CPU: pct})
	}

	m.lastThreads = cur
	m.lastWall = now
	return out, nil
}

func (m *Metrics) MemoryFootprint() (uint64, error) {
	mi, err := m.proc.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("failed to read memory info: %w", err)
	}
	return mi.RSS, nil
}

// ThermalState buckets the hottest sensor reading.
// Hosts without temperature sensors always report nominal.
func (m *Metrics) ThermalState() (gaux.ThermalState, error) {
	temps, err := sensors.SensorsTemperatures()
	if err != nil && len(temps) == 0 {
		// Many hosts (containers, VMs) expose no sensors at all.
		return gaux.ThermalNominal, nil
	}

	state := gaux.ThermalNominal
	for _, t := range temps {
		if s := bucket(t.Temperature, t.Critical); s > state {
			state = s
		}
	}
	return state, nil
}

func bucket(temp, critical float64) gaux.ThermalState {
	if critical > 0 {
		switch r := temp / critical; {
		case r >= 0.95:
			return gaux.ThermalCritical
		case r >= 0.85:
			return gaux.ThermalSerious
		case r >= 0.7:
			return gaux.ThermalFair
		default:
			return gaux.ThermalNominal
		}
	}

	switch {
	case temp >= 90:
		return gaux.ThermalCritical
	case temp >= 80:
		return gaux.ThermalSerious
	case temp >= 65:
		return gaux.ThermalFair
	default:
		return gaux.ThermalNominal
	}
}
