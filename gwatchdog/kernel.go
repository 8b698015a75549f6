package gwatchdog

import (
	"context"
	"log/slog"
	"time"

	"github.com/gordian-engine/gstall/gaux"
	"github.com/gordian-engine/gstall/gdump"
	"github.com/gordian-engine/gstall/gfilter"
	"github.com/gordian-engine/gstall/gloop"
	"github.com/gordian-engine/gstall/gstack"
	"github.com/gordian-engine/gstall/gstack/gstackagg"
	"github.com/gordian-engine/gstall/internal/glog"
)

// kernel holds the state owned by the watchdog goroutine.
type kernel struct {
	log *slog.Logger
	w   *Watchdog
	cfg Config

	clock gloop.Clock
	now   func() time.Time

	th     Thresholds
	agg    *gstackagg.Aggregator
	filter *gfilter.Filter

	cpu     *gaux.CPUMonitor
	pool    *gaux.StackPool
	thermal gaux.ThermalMonitor
	mem     *gaux.MemoryMonitor

	cycle uint64

	// Stall timing never starts before this instant.
	resyncAt time.Duration

	lastCPUPoll time.Duration
	lastAuxPoll time.Duration
	lastState   AppState
}

type checkResult struct {
	Kind    gdump.Kind
	Hang    bool
	Blocked time.Duration

	// Sustained CPU usage fired this cycle.
	CPUHigh bool
}

func newKernel(log *slog.Logger, w *Watchdog, cfg Config, th Thresholds) (*kernel, error) {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	f, err := gfilter.New(log.With("sys", "filter"), gfilter.Config{
		DailyLimit: cfg.DailyDumpLimit,
		Quota:      cfg.Quota,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	return &kernel{
		log: log,
		w:   w,
		cfg: cfg,

		clock: cfg.Activity.Clock(),
		now:   now,

		th:     th,
		agg:    gstackagg.New(th.SampleCount()),
		filter: f,

		cpu: gaux.NewCPUMonitor(gaux.CPUConfig{
			InstantLimit:   cfg.CPUInstantThreshold,
			SustainedLimit: cfg.CPUSustainedThreshold,
			Window:         cfg.CPUWindow,
		}),
		pool: gaux.NewStackPool(gaux.DefaultStackPoolSize),
		mem:  gaux.NewMemoryMonitor(cfg.MemoryThresholdMB << 20),
	}, nil
}

func (k *kernel) run(ctx context.Context) {
	defer close(k.w.done)

	k.reconcile(ctx)

	now := k.clock.Now()
	k.lastCPUPoll = now
	k.lastAuxPoll = now
	if k.cfg.Metrics != nil {
		// The first reading covers an unknown period; discard it.
		_, _ = k.cfg.Metrics.CPUUsage()
	}

	for {
		if err := ctx.Err(); err != nil {
			k.log.Info("Stopping due to context cancellation", "cause", context.Cause(ctx))
			return
		}

		k.applyThresholds()

		k.cycle++
		k.w.cycles.Store(k.cycle)

		res := k.check()
		k.dispatch(Event{
			Type:      EventEnterNextCheck,
			Kind:      res.Kind,
			Blocked:   res.Blocked,
			Threshold: k.th.Timeout,
		})

		if res.Hang {
			k.handleHang(ctx, res)
		} else {
			k.filter.ResetInterval()
			if res.CPUHigh {
				k.handleCPUHigh(ctx)
			}
		}

		k.pollAux()

		k.agg.Reset()
		if !k.samplePass(ctx) {
			k.log.Info("Stopping due to context cancellation during sampling", "cause", context.Cause(ctx))
			return
		}
	}
}

// applyThresholds installs thresholds accepted since the previous cycle.
func (k *kernel) applyThresholds() {
	p := k.w.pending.Swap(nil)
	if p == nil || *p == k.th {
		return
	}

	k.log.Info("Applying new thresholds", "thresholds", *p)
	k.th = *p
	k.agg.Resize(k.th.SampleCount())
	k.filter.ResetInterval()
}

func (k *kernel) elapsed(now, start time.Duration) time.Duration {
	return now - max(start, k.resyncAt)
}

func (k *kernel) check() checkResult {
	now := k.clock.Now()

	state := k.w.AppState()
	if k.w.resync.Swap(false) {
		k.log.Info("Resynchronizing after suspension")
		k.resyncAt = now
	}
	if state != k.lastState {
		if state == AppForeground {
			k.cpu.ResetBackground()
		}
		k.lastState = state
	}

	cpuHigh := k.pollCPU(now, state)

	if state == AppSuspended {
		return checkResult{Kind: gdump.KindUnlag}
	}

	if res, ok := k.checkStall(now, state); ok {
		return res
	}

	if cpuHigh {
		kind := gdump.KindCPUBlock
		if !k.cfg.CPUHighDump {
			kind = gdump.KindPowerConsume
		}
		return checkResult{Kind: kind, CPUHigh: true}
	}
	return checkResult{Kind: gdump.KindUnlag}
}

func (k *kernel) checkStall(now time.Duration, state AppState) (checkResult, bool) {
	act := k.cfg.Activity
	launching := act.Launching() && !act.BackgroundLaunch()

	if launching {
		if running, start := act.Init.Snapshot(); running {
			if el := k.elapsed(now, start); el > k.th.Timeout {
				return checkResult{Kind: gdump.KindLaunchBlock, Hang: true, Blocked: el}, true
			}
		}
	}

	running, start := act.Main.Snapshot()
	if !running {
		return checkResult{}, false
	}
	el := k.elapsed(now, start)
	if el <= k.th.Timeout {
		return checkResult{}, false
	}

	res := checkResult{Hang: true, Blocked: el}
	switch {
	case launching:
		res.Kind = gdump.KindLaunchBlock
	case k.tooManyThreads():
		res.Kind = gdump.KindBlockThreadTooMuch
	case state == AppBackground:
		res.Kind = gdump.KindBackgroundMainThreadBlock
	default:
		res.Kind = gdump.KindMainThreadBlock
	}
	return res, true
}

func (k *kernel) tooManyThreads() bool {
	if k.cfg.TooManyThreads == 0 || k.cfg.Source == nil {
		return false
	}
	ids, err := k.cfg.Source.Threads()
	if err != nil {
		k.log.Debug("Failed to list threads", "err", err)
		return false
	}
	return len(ids) > k.cfg.TooManyThreads
}

// handleHang captures the final stack, filters the stall,
// and writes a report if it survives the filter.
// Without periodic sampling the point stack is the final capture alone,
// so a stall that persists across cycles is still annealed.
func (k *kernel) handleHang(ctx context.Context, res checkResult) {
	log := glog.Cycle(k.log, k.cycle, res.Kind.String())

	k.dispatch(Event{
		Type:      EventMainThreadHang,
		Kind:      res.Kind,
		Blocked:   res.Blocked,
		Threshold: k.th.Timeout,
	})

	var threads map[gstack.ThreadID]gstack.Stack
	if k.cfg.Source != nil {
		threads = k.finalCapture(log)
	}

	point := k.agg.PointStack()
	reason := k.filter.Check(ctx, point.Stack)
	if reason != gfilter.ReasonNone {
		log.Info("Stall not reported", "reason", reason, "blocked", glog.Ms(res.Blocked))
		k.dispatch(Event{
			Type:      EventDumpFiltered,
			Kind:      res.Kind,
			Blocked:   res.Blocked,
			Threshold: k.th.Timeout,
			Reason:    reason,
		})
		return
	}

	log.Info(
		"Stall detected",
		"blocked", glog.Ms(res.Blocked),
		"threshold", glog.Ms(k.th.Timeout),
		"point_stack", point.Stack,
		"repeat", point.Repeat,
	)

	p := k.newPayload(res.Kind)
	p.Blocked = res.Blocked
	p.Point = point
	p.Threads = threads
	if k.cfg.EnableProfile {
		p.Profile = k.agg.Profile()
	}
	_, _ = k.dump(ctx, log, p)
}

// finalCapture takes one precise sample of the main thread into the aggregator.
// When configured, it also suspends all threads and returns their stacks.
func (k *kernel) finalCapture(log *slog.Logger) map[gstack.ThreadID]gstack.Stack {
	src := k.cfg.Source

	var threads map[gstack.ThreadID]gstack.Stack
	if k.cfg.SuspendAllThreadsOnDump {
		resume, err := src.SuspendAll()
		if err != nil {
			log.Warn("Failed to suspend threads for final capture", "err", err)
		} else {
			defer resume()
			threads = k.sampleOthers(log)
		}
	}

	st, err := src.Sample(k.cfg.MainThread, gstack.ModeSuspend)
	if err != nil {
		log.Debug("Final capture of main thread failed", "err", err)
		return threads
	}
	k.agg.Add(st)
	return threads
}

func (k *kernel) sampleOthers(log *slog.Logger) map[gstack.ThreadID]gstack.Stack {
	ids, err := k.cfg.Source.Threads()
	if err != nil {
		log.Debug("Failed to list threads", "err", err)
		return nil
	}

	out := make(map[gstack.ThreadID]gstack.Stack, len(ids))
	for _, id := range ids {
		if id == k.cfg.MainThread {
			continue
		}
		st, err := k.cfg.Source.Sample(id, gstack.ModeCheap)
		if err != nil {
			log.Debug("Failed to sample thread", "thread", id, "err", err)
			continue
		}
		out[id] = st
	}
	return out
}

func (k *kernel) newPayload(kind gdump.Kind) gdump.Payload {
	p := gdump.NewPayload(kind, k.now())
	p.Threshold = k.th.Timeout
	p.CustomInfo = k.customInfo(kind)
	return p
}

func (k *kernel) customInfo(kind gdump.Kind) (info map[string]string) {
	if k.w.custom == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			k.log.Warn("Custom info provider panicked", "kind", kind, "panic", r)
			info = nil
		}
	}()
	return k.w.custom.CustomInfo(kind)
}

// dump hands p to the pipeline.
// The write is not interrupted by cancellation of ctx.
func (k *kernel) dump(ctx context.Context, log *slog.Logger, p gdump.Payload) (string, error) {
	k.dispatch(Event{
		Type:      EventBeginDump,
		Kind:      p.Kind,
		Blocked:   p.Blocked,
		Threshold: p.Threshold,
	})

	path, err := k.cfg.Pipeline.Dump(context.WithoutCancel(ctx), p)
	if err != nil {
		log.Warn("Failed to write report", "err", err)
		return "", err
	}

	k.w.lastReport.Store(&path)
	log.Info("Wrote report", "path", path)
	k.dispatch(Event{
		Type: EventDumpComplete,
		Kind: p.Kind,
		Path: path,
	})
	return path, nil
}

// reconcile reports launch reports orphaned by a previous process.
func (k *kernel) reconcile(ctx context.Context) {
	orphans, err := k.cfg.Pipeline.Reconcile(ctx)
	if err != nil {
		k.log.Warn("Failed to reconcile pending launch reports", "err", err)
		return
	}

	for _, o := range orphans {
		log := k.log.With("id", o.ID, "launch_kind", o.Kind)
		log.Info("Found launch report orphaned by a previous process")

		k.dispatch(Event{
			Type:   EventLaunchOrphaned,
			Kind:   gdump.KindBlockAndBeKilled,
			Orphan: o,
		})

		if !k.filter.AllowAux(ctx) {
			k.dispatch(Event{
				Type:   EventDumpFiltered,
				Kind:   gdump.KindBlockAndBeKilled,
				Reason: gfilter.ReasonQuota,
			})
			continue
		}

		p := k.newPayload(gdump.KindBlockAndBeKilled)
		p.Detail = "launch report " + o.ID + " was interrupted at " + o.Added.UTC().Format(time.RFC3339)
		_, _ = k.dump(ctx, log, p)
	}
}

// samplePass samples the main thread for the current annealing interval.
// It reports false if ctx was canceled.
func (k *kernel) samplePass(ctx context.Context) bool {
	units := k.filter.IntervalUnits()
	n := units * k.th.SampleCount()
	want := time.Duration(units) * k.th.CheckPeriod

	began := k.clock.Now()

	timer := time.NewTimer(k.th.SampleInterval)
	defer timer.Stop()

	for i := range n {
		if i > 0 {
			timer.Reset(k.th.SampleInterval)
		}
		if !k.wait(ctx, timer) {
			return false
		}

		if !k.cfg.EnableStackSampling {
			continue
		}
		st, err := k.cfg.Source.Sample(k.cfg.MainThread, gstack.ModeCheap)
		if err != nil {
			k.log.Debug("Failed to sample main thread", "err", err)
			continue
		}
		k.agg.Add(st)
	}

	now := k.clock.Now()
	if got := now - began; got > suspendFactor*want {
		k.log.Info(
			"Sampling pass overran; assuming the process was suspended",
			"want", want, "got", got,
		)
		k.resyncAt = now
	}
	return true
}

// wait blocks until timer fires, serving live report requests meanwhile.
func (k *kernel) wait(ctx context.Context, timer *time.Timer) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case req := <-k.w.liveReports:
			k.serveLiveReport(ctx, req)
		}
	}
}

func (k *kernel) serveLiveReport(ctx context.Context, req liveReportRequest) {
	log := glog.Cycle(k.log, k.cycle, req.Kind.String())

	var threads map[gstack.ThreadID]gstack.Stack
	if k.cfg.Source != nil {
		threads = k.finalCapture(log)
	}

	p := k.newPayload(req.Kind)
	p.Detail = req.Detail
	p.Point = k.agg.PointStack()
	p.Threads = threads
	if k.cfg.EnableProfile {
		p.Profile = k.agg.Profile()
	}
	if running, start := k.cfg.Activity.Main.Snapshot(); running {
		p.Blocked = k.elapsed(k.clock.Now(), start)
	}

	path, err := k.dump(ctx, log, p)

	// Buffered.
	req.Resp <- liveReportResponse{Path: path, Err: err}
}

func (k *kernel) dispatch(e Event) {
	for _, o := range k.w.observers {
		k.notify(o, e)
	}
}

func (k *kernel) notify(o Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Warn("Observer panicked", "event", e.Type, "panic", r)
		}
	}()
	o.OnEvent(e)
}
