package gwatchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordian-engine/gstall/gdump"
	"github.com/gordian-engine/gstall/gloop"
	"github.com/gordian-engine/gstall/internal/gchan"
)

// AppState is the host application's lifecycle state.
type AppState int32

const (
	AppForeground AppState = iota
	AppBackground

	// The process is frozen by the host.
	// Stall detection pauses until the state changes again.
	AppSuspended
)

func (s AppState) String() string {
	switch s {
	case AppForeground:
		return "foreground"
	case AppBackground:
		return "background"
	case AppSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("AppState(%d)", s)
	}
}

// ParseAppState parses the output of [AppState.String].
func ParseAppState(s string) (AppState, error) {
	for _, st := range []AppState{AppForeground, AppBackground, AppSuspended} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown app state %q", s)
}

// Watchdog monitors one event loop for stalls.
//
// All detection state is owned by a single kernel goroutine.
// The exported methods are safe for concurrent use.
type Watchdog struct {
	log *slog.Logger

	activity *gloop.Activity

	observers []Observer
	custom    CustomInfoProvider

	hangTimeout, lowTimeout time.Duration
	sampleInterval          time.Duration

	// Serializes threshold setters so accepted and pending agree.
	thMu     sync.Mutex
	accepted atomic.Pointer[Thresholds]
	pending  atomic.Pointer[Thresholds]

	appState atomic.Int32
	resync   atomic.Bool

	cycles        atomic.Uint64
	lastReport    atomic.Pointer[string]
	bgCPUTooSmall atomic.Bool

	liveReports chan liveReportRequest

	done chan struct{}
}

// New validates cfg and starts the watchdog's kernel goroutine,
// which runs until ctx is canceled.
func New(ctx context.Context, log *slog.Logger, cfg Config, opts ...Opt) (*Watchdog, error) {
	w := &Watchdog{
		log: log,

		// Unbuffered since requests are synchronous.
		liveReports: make(chan liveReportRequest),

		done: make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(w, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid watchdog configuration: %w", err)
	}

	th, err := NewThresholds(cfg.HangTimeout, cfg.SampleInterval)
	if err != nil {
		// Unreachable after validate.
		return nil, err
	}

	w.activity = cfg.Activity
	w.hangTimeout = cfg.HangTimeout
	w.lowTimeout = cfg.LowTimeout
	w.sampleInterval = cfg.SampleInterval
	w.accepted.Store(&th)

	k, err := newKernel(log, w, cfg, th)
	if err != nil {
		return nil, err
	}

	go k.run(ctx)

	return w, nil
}

// Wait blocks until the kernel goroutine exits.
func (w *Watchdog) Wait() {
	<-w.done
}

// SetTimeout changes the hang timeout.
// The new thresholds take effect at the next cycle boundary.
// It reports false, leaving the current thresholds in place,
// if d is outside [MinTimeout, MaxTimeout] or off the TimeoutStep grid.
func (w *Watchdog) SetTimeout(d time.Duration) bool {
	th, err := NewThresholds(d, w.sampleInterval)
	if err != nil {
		w.log.Info("Rejected hang timeout", "timeout", d, "err", err)
		return false
	}

	w.thMu.Lock()
	defer w.thMu.Unlock()
	w.accepted.Store(&th)
	w.pending.Store(&th)
	return true
}

// LowerTimeout switches to the configured low timeout.
func (w *Watchdog) LowerTimeout() bool {
	if w.lowTimeout == 0 {
		return false
	}
	return w.SetTimeout(w.lowTimeout)
}

// RecoverTimeout switches back to the configured hang timeout.
func (w *Watchdog) RecoverTimeout() bool {
	return w.SetTimeout(w.hangTimeout)
}

// Thresholds returns the most recently accepted thresholds,
// which may not yet be applied.
func (w *Watchdog) Thresholds() Thresholds {
	return *w.accepted.Load()
}

// NotifyAppState records a lifecycle change of the host application.
// Leaving AppSuspended resynchronizes stall timing,
// so time spent suspended is never counted as a stall.
func (w *Watchdog) NotifyAppState(s AppState) {
	for {
		prev := AppState(w.appState.Load())
		if prev == s {
			return
		}

		// The resync flag must be visible to any reader of the new state.
		if prev == AppSuspended {
			w.resync.Store(true)
		}
		if w.appState.CompareAndSwap(int32(prev), int32(s)) {
			w.log.Info("App state changed", "from", prev, "to", s)
			return
		}
	}
}

func (w *Watchdog) AppState() AppState {
	return AppState(w.appState.Load())
}

// HandleBackgroundLaunch marks the current launch as a background launch.
func (w *Watchdog) HandleBackgroundLaunch() {
	w.activity.MarkBackgroundLaunch()
}

// BackgroundCPUTooSmall reports whether average CPU usage
// while in the background has stayed below [gaux.BackgroundCPUTooSmallPct].
func (w *Watchdog) BackgroundCPUTooSmall() bool {
	return w.bgCPUTooSmall.Load()
}

type liveReportRequest struct {
	Kind   gdump.Kind
	Detail string

	Resp chan liveReportResponse
}

type liveReportResponse struct {
	Path string
	Err  error
}

// GenerateLiveReport writes a report of the loop's current state
// outside the regular cycle, bypassing the filter.
// A zero kind means [gdump.KindSelfDefined].
func (w *Watchdog) GenerateLiveReport(ctx context.Context, kind gdump.Kind, detail string) (string, error) {
	if kind == 0 {
		kind = gdump.KindSelfDefined
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-w.done:
			cancel(ErrStopped)
		case <-ctx.Done():
		}
	}()

	req := liveReportRequest{
		Kind:   kind,
		Detail: detail,
		Resp:   make(chan liveReportResponse, 1),
	}
	resp, ok := gchan.ReqResp(ctx, w.log, w.liveReports, req, req.Resp, "live report")
	if !ok {
		// The kernel may have answered just before stopping.
		select {
		case resp := <-req.Resp:
			return resp.Path, resp.Err
		default:
			return "", context.Cause(ctx)
		}
	}
	return resp.Path, resp.Err
}

// Status is a point-in-time view of the watchdog.
type Status struct {
	Thresholds            Thresholds
	AppState              AppState
	Cycles                uint64
	LastReport            string
	BackgroundCPUTooSmall bool

	// Time since the monitored loop last finished an iteration.
	// Zero while an iteration is in progress or before the first one ends.
	Idle time.Duration
}

func (w *Watchdog) Status() Status {
	s := Status{
		Thresholds:            w.Thresholds(),
		AppState:              w.AppState(),
		Cycles:                w.cycles.Load(),
		BackgroundCPUTooSmall: w.bgCPUTooSmall.Load(),
	}
	if p := w.lastReport.Load(); p != nil {
		s.LastReport = *p
	}
	if running, _ := w.activity.Main.Snapshot(); !running {
		if end := w.activity.Main.LastEnd(); end > 0 {
			s.Idle = w.activity.Clock().Now() - end
		}
	}
	return s
}

func (s Status) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("thresholds", s.Thresholds),
		slog.String("app_state", s.AppState.String()),
		slog.Uint64("cycles", s.Cycles),
		slog.String("last_report", s.LastReport),
		slog.Bool("background_cpu_too_small", s.BackgroundCPUTooSmall),
		slog.Duration("idle", s.Idle),
	)
}
