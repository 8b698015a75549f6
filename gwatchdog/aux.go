package gwatchdog

import (
	"context"
	"time"

	"github.com/gordian-engine/gstall/gdump"
	"github.com/gordian-engine/gstall/gfilter"
	"github.com/gordian-engine/gstall/gstack"
	"github.com/gordian-engine/gstall/gstack/gstackagg"
	"github.com/gordian-engine/gstall/internal/glog"
)

// pollCPU feeds the CPU monitor once per cycle
// and reports whether sustained usage fired.
func (k *kernel) pollCPU(now time.Duration, state AppState) bool {
	if k.cfg.Metrics == nil {
		return false
	}

	period := now - k.lastCPUPoll
	k.lastCPUPoll = now

	usage, err := k.cfg.Metrics.CPUUsage()
	if err != nil {
		k.log.Debug("Failed to read CPU usage", "err", err)
		return false
	}

	if state == AppBackground {
		k.cpu.ObserveBackground(usage, period)
	}
	instant, sustained := k.cpu.Observe(usage, period)
	k.w.bgCPUTooSmall.Store(k.cpu.BackgroundCPUTooSmall())

	if instant {
		k.dispatch(Event{Type: EventCPUInstantHigh, CPU: usage})
	}

	if k.cfg.PowerConsumeStacks && k.cpu.Tracking() {
		k.poolBusyThreads(state)
	}

	if sustained {
		k.log.Info("Sustained high CPU usage", "cpu", usage)
		k.dispatch(Event{Type: EventCPUSustainedHigh, CPU: usage})
	}
	return sustained
}

func (k *kernel) poolBusyThreads(state AppState) {
	if k.cfg.Source == nil {
		return
	}

	usages, err := k.cfg.Metrics.ThreadUsage()
	if err != nil {
		k.log.Debug("Failed to read thread usage", "err", err)
		return
	}

	for _, u := range usages {
		if u.CPU < busyThreadCPU {
			continue
		}
		st, err := k.cfg.Source.Sample(u.ID, gstack.ModeCheap)
		if err != nil {
			k.log.Debug("Failed to sample busy thread", "thread", u.ID, "err", err)
			continue
		}
		k.pool.Add(st, u.CPU, state == AppBackground)
	}
}

// handleCPUHigh writes the reports configured for sustained CPU usage.
// Only the daily quota applies to them.
func (k *kernel) handleCPUHigh(ctx context.Context) {
	if k.cfg.CPUHighDump {
		log := glog.Cycle(k.log, k.cycle, gdump.KindCPUBlock.String())
		if k.allowAux(ctx, gdump.KindCPUBlock) {
			p := k.newPayload(gdump.KindCPUBlock)
			p.Point = k.agg.PointStack()
			if k.cfg.EnableProfile {
				p.Profile = k.agg.Profile()
			}
			_, _ = k.dump(ctx, log, p)
		}
	}

	if k.cfg.PowerConsumeStacks {
		log := glog.Cycle(k.log, k.cycle, gdump.KindPowerConsume.String())
		tree := k.pool.Conclude()
		if tree.Total() == 0 {
			log.Debug("No busy thread stacks collected")
			return
		}
		if k.allowAux(ctx, gdump.KindPowerConsume) {
			p := k.newPayload(gdump.KindPowerConsume)
			p.Point = gstackagg.PointStack{Stack: tree.Heaviest()}
			p.Profile = tree
			_, _ = k.dump(ctx, log, p)
		}
	}
}

func (k *kernel) allowAux(ctx context.Context, kind gdump.Kind) bool {
	if k.filter.AllowAux(ctx) {
		return true
	}
	k.dispatch(Event{
		Type:   EventDumpFiltered,
		Kind:   kind,
		Reason: gfilter.ReasonQuota,
	})
	return false
}

// pollAux checks single-iteration hangs every cycle,
// and the thermal and memory monitors at the coarser aux cadence.
func (k *kernel) pollAux() {
	if k.cfg.SensitiveLoopHang > 0 {
		if d := k.cfg.Activity.Main.TakeLongestIteration(); d > k.cfg.SensitiveLoopHang {
			k.log.Debug("Slow loop iteration", "duration", glog.Ms(d))
			k.dispatch(Event{
				Type:      EventLoopHang,
				Blocked:   d,
				Threshold: k.cfg.SensitiveLoopHang,
			})
		}
	}

	if k.cfg.Metrics == nil {
		return
	}
	now := k.clock.Now()
	if now-k.lastAuxPoll < k.cfg.AuxPollInterval {
		return
	}
	k.lastAuxPoll = now

	if s, err := k.cfg.Metrics.ThermalState(); err != nil {
		k.log.Debug("Failed to read thermal state", "err", err)
	} else if k.thermal.Observe(s) {
		k.log.Info("Thermal state elevated", "state", s)
		k.dispatch(Event{Type: EventThermalElevated, Thermal: s})
	}

	if fp, err := k.cfg.Metrics.MemoryFootprint(); err != nil {
		k.log.Debug("Failed to read memory footprint", "err", err)
	} else if k.mem.Observe(fp) {
		k.log.Info("Memory footprint excessive", "bytes", fp)
		k.dispatch(Event{Type: EventMemoryExcessive, Footprint: fp})
	}
}
