package gaux

import (
	"time"
)

const (
	DefaultCPULimit          = 80.0
	DefaultSustainedWindow   = 60 * time.Second
	BackgroundCPUTooSmallPct = 6.0

	// Polls further apart than this are ignored,
	// since the process was likely suspended in between.
	maxObservePeriod = 5 * time.Second
)

type CPUConfig struct {
	// Percent usage above which a single poll fires.
	InstantLimit float64

	// Percent usage that starts sustained tracking,
	// and the average that must be exceeded over Window to fire.
	SustainedLimit float64

	// Tracking window. After firing, the monitor cools down for one window.
	Window time.Duration
}

// DefaultCPUConfig returns an 80% instantaneous and sustained limit over a 60 second window.
func DefaultCPUConfig() CPUConfig {
	return CPUConfig{
		InstantLimit:   DefaultCPULimit,
		SustainedLimit: DefaultCPULimit,
		Window:         DefaultSustainedWindow,
	}
}

// CPUMonitor detects instantaneous and sustained high CPU usage.
// It is not safe for concurrent use.
type CPUMonitor struct {
	cfg CPUConfig

	tracking bool
	// Accumulated tracking time, and usage integrated over that time
	// in percent-seconds.
	trackedTime time.Duration
	trackedCost float64

	cooldown time.Duration

	bgTime time.Duration
	bgCost float64
}

func NewCPUMonitor(cfg CPUConfig) *CPUMonitor {
	return &CPUMonitor{cfg: cfg}
}

// Tracking reports whether a sustained-usage window is in progress.
// Callers collect high-usage thread stacks only while tracking.
func (m *CPUMonitor) Tracking() bool {
	return m.tracking
}

// Observe feeds one poll of process CPU usage covering period.
//
// instant is true when usage exceeds the instantaneous limit.
// sustained is true when a full tracking window averaged above the sustained limit.
// A tracking window is abandoned once half of it has elapsed
// with an average below half the limit.
func (m *CPUMonitor) Observe(usage float64, period time.Duration) (instant, sustained bool) {
	if period <= 0 || period > maxObservePeriod {
		return false, false
	}

	instant = usage > m.cfg.InstantLimit

	if m.cooldown > 0 {
		m.cooldown -= period
		return instant, false
	}

	cost := usage * period.Seconds()
	if !m.tracking {
		if usage > m.cfg.SustainedLimit {
			m.tracking = true
			m.trackedTime = period
			m.trackedCost = cost
		}
		return instant, false
	}

	m.trackedTime += period
	m.trackedCost += cost

	secs := m.trackedTime.Seconds()
	if m.trackedTime >= m.cfg.Window/2 && m.trackedTime < m.cfg.Window &&
		m.trackedCost < m.cfg.SustainedLimit*secs/2 {
		m.stopTracking()
		return instant, false
	}

	if m.trackedTime >= m.cfg.Window {
		sustained = m.trackedCost > m.cfg.SustainedLimit*secs
		m.stopTracking()
		if sustained {
			m.cooldown = m.cfg.Window
		}
	}

	return instant, sustained
}

func (m *CPUMonitor) stopTracking() {
	m.tracking = false
	m.trackedTime = 0
	m.trackedCost = 0
}

// ObserveBackground accumulates CPU usage observed while the app is in the background.
func (m *CPUMonitor) ObserveBackground(usage float64, period time.Duration) {
	if period <= 0 || period > maxObservePeriod {
		return
	}
	m.bgTime += period
	m.bgCost += usage * period.Seconds()
}

// ResetBackground clears background accounting, e.g. on return to the foreground.
func (m *CPUMonitor) ResetBackground() {
	m.bgTime = 0
	m.bgCost = 0
}

// BackgroundCPUTooSmall reports whether the average background usage
// is below [BackgroundCPUTooSmallPct],
// which suggests the system is throttling the process.
func (m *CPUMonitor) BackgroundCPUTooSmall() bool {
	if m.bgTime <= 0 {
		return false
	}
	return m.bgCost/m.bgTime.Seconds() < BackgroundCPUTooSmallPct
}
