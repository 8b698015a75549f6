package gwatchdog

import (
	"log/slog"
	"time"
)

const (
	MinTimeout  = 400 * time.Millisecond
	MaxTimeout  = 2 * time.Second
	TimeoutStep = 100 * time.Millisecond

	DefaultTimeout        = 2 * time.Second
	DefaultLowTimeout     = 1 * time.Second
	DefaultSampleInterval = 50 * time.Millisecond
)

// Thresholds is the timing configuration of one check cycle.
// The check period is always half the timeout
// and always a whole multiple of the sample interval.
type Thresholds struct {
	Timeout        time.Duration
	CheckPeriod    time.Duration
	SampleInterval time.Duration
}

// NewThresholds derives thresholds from a hang timeout.
// The timeout must lie in [MinTimeout, MaxTimeout] on a TimeoutStep boundary.
func NewThresholds(timeout, sampleInterval time.Duration) (Thresholds, error) {
	if timeout < MinTimeout || timeout > MaxTimeout {
		return Thresholds{}, InvalidThresholdError{Timeout: timeout, Reason: "outside legal range"}
	}
	if timeout%TimeoutStep != 0 {
		return Thresholds{}, InvalidThresholdError{Timeout: timeout, Reason: "not a multiple of the step"}
	}
	if sampleInterval <= 0 {
		return Thresholds{}, InvalidThresholdError{Timeout: timeout, Reason: "sample interval must be positive"}
	}

	cp := timeout / 2
	if cp%sampleInterval != 0 {
		return Thresholds{}, InvalidThresholdError{Timeout: timeout, Reason: "check period not a multiple of sample interval"}
	}

	return Thresholds{
		Timeout:        timeout,
		CheckPeriod:    cp,
		SampleInterval: sampleInterval,
	}, nil
}

// SampleCount is the number of samples taken in one check period.
func (t Thresholds) SampleCount() int {
	return int(t.CheckPeriod / t.SampleInterval)
}

func (t Thresholds) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("timeout", t.Timeout),
		slog.Duration("check_period", t.CheckPeriod),
		slog.Duration("sample_interval", t.SampleInterval),
	)
}
