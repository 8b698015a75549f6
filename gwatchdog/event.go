package gwatchdog

import (
	"fmt"
	"time"

	"github.com/gordian-engine/gstall/gaux"
	"github.com/gordian-engine/gstall/gdump"
	"github.com/gordian-engine/gstall/gfilter"
	"github.com/gordian-engine/gstall/gstore"
)

type EventType uint8

const (
	// A check completed. Kind is KindUnlag when nothing was detected.
	EventEnterNextCheck EventType = iota

	// A stall was detected, before filtering.
	EventMainThreadHang

	// A report is about to be written.
	EventBeginDump

	// A detected stall or auxiliary condition was not reported. See Reason.
	EventDumpFiltered

	// A report was written to Path.
	EventDumpComplete

	EventCPUInstantHigh
	EventCPUSustainedHigh
	EventThermalElevated
	EventMemoryExcessive

	// A single loop iteration exceeded SensitiveLoopHang.
	// Blocked is its duration.
	EventLoopHang

	// A launch report from a previous process was never completed.
	EventLaunchOrphaned
)

func (t EventType) String() string {
	switch t {
	case EventEnterNextCheck:
		return "enter_next_check"
	case EventMainThreadHang:
		return "main_thread_hang"
	case EventBeginDump:
		return "begin_dump"
	case EventDumpFiltered:
		return "dump_filtered"
	case EventDumpComplete:
		return "dump_complete"
	case EventCPUInstantHigh:
		return "cpu_instant_high"
	case EventCPUSustainedHigh:
		return "cpu_sustained_high"
	case EventThermalElevated:
		return "thermal_elevated"
	case EventMemoryExcessive:
		return "memory_excessive"
	case EventLoopHang:
		return "loop_hang"
	case EventLaunchOrphaned:
		return "launch_orphaned"
	default:
		return fmt.Sprintf("EventType(%d)", t)
	}
}

// Event is delivered to every [Observer].
// Only the fields relevant to Type are set.
type Event struct {
	Type EventType
	Kind gdump.Kind

	Blocked   time.Duration
	Threshold time.Duration

	Reason gfilter.Reason
	Path   string

	CPU       float64
	Thermal   gaux.ThermalState
	Footprint uint64

	Orphan gstore.PendingLaunch
}

// Observer receives watchdog events on the kernel goroutine.
// OnEvent must return quickly; a panic is recovered and logged.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to an [Observer].
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}

// CustomInfoProvider supplies host-specific fields attached to a report.
type CustomInfoProvider interface {
	CustomInfo(kind gdump.Kind) map[string]string
}
