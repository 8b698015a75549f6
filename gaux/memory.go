package gaux

// DefaultMemoryThresholdMB is the footprint above which memory is excessive.
const DefaultMemoryThresholdMB = 1024

// MemoryMonitor fires once when the footprint crosses the threshold,
// and re-arms when the footprint drops back below it.
type MemoryMonitor struct {
	threshold uint64
	over      bool
}

func NewMemoryMonitor(thresholdBytes uint64) *MemoryMonitor {
	return &MemoryMonitor{threshold: thresholdBytes}
}

// Observe reports whether footprint is a new crossing of the threshold.
func (m *MemoryMonitor) Observe(footprint uint64) bool {
	over := footprint > m.threshold
	fire := over && !m.over
	m.over = over
	return fire
}
