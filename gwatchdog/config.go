package gwatchdog

import (
	"errors"
	"fmt"
	"time"

	"github.com/gordian-engine/gstall/gaux"
	"github.com/gordian-engine/gstall/gdump"
	"github.com/gordian-engine/gstall/gloop"
	"github.com/gordian-engine/gstall/gstack"
	"github.com/gordian-engine/gstall/gstore"
)

const (
	DefaultDailyDumpLimit    = 100
	DefaultSensitiveLoopHang = 250 * time.Millisecond
	DefaultAuxPollInterval   = 10 * time.Second
	DefaultTooManyThreads    = 64

	// A sampling pass that takes this many times its requested duration
	// means the process was not running in between.
	suspendFactor = 10

	// Threads below this CPU usage are not pooled for power reports.
	busyThreadCPU = 5.0
)

// Config is the configuration for a [Watchdog].
// Start from [DefaultConfig] and set the collaborators.
type Config struct {
	// Activity signals of the monitored loop. Required.
	Activity *gloop.Activity

	// Stack source and the thread backing the monitored loop.
	// Source is required when EnableStackSampling is set.
	// Without a Source, stalls have no point stack and are filtered as meaningless.
	Source     gstack.Source
	MainThread gstack.ThreadID

	// Report pipeline. Required.
	Pipeline *gdump.Pipeline

	// Durable daily quota. A nil store means the quota lives only in memory.
	Quota gstore.QuotaStore

	// Device metrics for the CPU, thermal and memory monitors.
	// A nil value disables all three.
	Metrics gaux.DeviceMetrics

	// Wall clock for report timestamps and quota days. Defaults to time.Now.
	Now func() time.Time

	HangTimeout    time.Duration
	LowTimeout     time.Duration
	SampleInterval time.Duration

	DailyDumpLimit int

	CPUInstantThreshold   float64
	CPUSustainedThreshold float64
	CPUWindow             time.Duration

	EnableStackSampling     bool
	EnableProfile           bool
	SuspendAllThreadsOnDump bool

	// Write a CPU report when sustained usage fires.
	CPUHighDump bool

	// Pool busy thread stacks while CPU usage is tracked
	// and write a power report when sustained usage fires.
	PowerConsumeStacks bool

	// Single iterations longer than this are reported as EventLoopHang.
	// Zero disables the check.
	SensitiveLoopHang time.Duration

	MemoryThresholdMB uint64
	AuxPollInterval   time.Duration

	// Stalls in a process with more threads than this
	// are reported as KindBlockThreadTooMuch.
	TooManyThreads int
}

// DefaultConfig returns a Config with every tunable at its default
// and no collaborators set.
func DefaultConfig() Config {
	return Config{
		HangTimeout:    DefaultTimeout,
		LowTimeout:     DefaultLowTimeout,
		SampleInterval: DefaultSampleInterval,

		DailyDumpLimit: DefaultDailyDumpLimit,

		CPUInstantThreshold:   gaux.DefaultCPULimit,
		CPUSustainedThreshold: gaux.DefaultCPULimit,
		CPUWindow:             gaux.DefaultSustainedWindow,

		EnableStackSampling: true,
		EnableProfile:       true,

		SensitiveLoopHang: DefaultSensitiveLoopHang,

		MemoryThresholdMB: gaux.DefaultMemoryThresholdMB,
		AuxPollInterval:   DefaultAuxPollInterval,

		TooManyThreads: DefaultTooManyThreads,
	}
}

func (c Config) validate() error {
	var err error

	if c.Activity == nil {
		err = errors.Join(err, errors.New("Activity must not be nil"))
	}
	if c.Pipeline == nil {
		err = errors.Join(err, errors.New("Pipeline must not be nil"))
	}
	if c.EnableStackSampling && c.Source == nil {
		err = errors.Join(err, errors.New("Source must not be nil when EnableStackSampling is set"))
	}

	if _, tErr := NewThresholds(c.HangTimeout, c.SampleInterval); tErr != nil {
		err = errors.Join(err, fmt.Errorf("HangTimeout: %w", tErr))
	}
	if c.LowTimeout != 0 {
		if _, tErr := NewThresholds(c.LowTimeout, c.SampleInterval); tErr != nil {
			err = errors.Join(err, fmt.Errorf("LowTimeout: %w", tErr))
		}
	}

	if c.DailyDumpLimit <= 0 {
		err = errors.Join(err, fmt.Errorf("DailyDumpLimit must be positive (got %d)", c.DailyDumpLimit))
	}

	if c.Metrics != nil {
		if c.CPUInstantThreshold <= 0 || c.CPUSustainedThreshold <= 0 {
			err = errors.Join(err, fmt.Errorf(
				"CPU thresholds must be positive (got instant=%v sustained=%v)",
				c.CPUInstantThreshold, c.CPUSustainedThreshold,
			))
		}
		if c.CPUWindow <= 0 {
			err = errors.Join(err, fmt.Errorf("CPUWindow must be positive (got %s)", c.CPUWindow))
		}
		if c.AuxPollInterval <= 0 {
			err = errors.Join(err, fmt.Errorf("AuxPollInterval must be positive (got %s)", c.AuxPollInterval))
		}
	}

	if c.SensitiveLoopHang < 0 {
		err = errors.Join(err, fmt.Errorf("SensitiveLoopHang must not be negative (got %s)", c.SensitiveLoopHang))
	}
	if c.TooManyThreads < 0 {
		err = errors.Join(err, fmt.Errorf("TooManyThreads must not be negative (got %d)", c.TooManyThreads))
	}

	return err
}

// Opt is an option for [New].
type Opt func(*Watchdog, *Config) error

// WithObserver adds an observer that receives every event.
func WithObserver(o Observer) Opt {
	return func(w *Watchdog, _ *Config) error {
		if o == nil {
			return errors.New("WithObserver: observer must not be nil")
		}
		w.observers = append(w.observers, o)
		return nil
	}
}

// WithCustomInfo sets the provider of host fields attached to each report.
func WithCustomInfo(p CustomInfoProvider) Opt {
	return func(w *Watchdog, _ *Config) error {
		w.custom = p
		return nil
	}
}

// WithDeviceMetrics sets cfg.Metrics.
func WithDeviceMetrics(m gaux.DeviceMetrics) Opt {
	return func(_ *Watchdog, cfg *Config) error {
		cfg.Metrics = m
		return nil
	}
}
