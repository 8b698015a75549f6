// Package gaux contains the auxiliary monitors that run alongside stall detection:
// sustained and instantaneous CPU usage, thermal state, and memory footprint.
// Each monitor is a small state machine fed by periodic polls of [DeviceMetrics];
// none of them block or sample stacks themselves.
package gaux

import (
	"fmt"

	"github.com/gordian-engine/gstall/gstack"
)

// ThermalState is a coarse device thermal level.
type ThermalState uint8

const (
	ThermalNominal ThermalState = iota
	ThermalFair
	ThermalSerious
	ThermalCritical
)

func (s ThermalState) String() string {
	switch s {
	case ThermalNominal:
		return "nominal"
	case ThermalFair:
		return "fair"
	case ThermalSerious:
		return "serious"
	case ThermalCritical:
		return "critical"
	default:
		return fmt.Sprintf("ThermalState(%d)", s)
	}
}

// ThreadUsage is the CPU usage of one thread, in percent of one core.
type ThreadUsage struct {
	ID  gstack.ThreadID
	CPU float64
}

// DeviceMetrics is the device-metrics collaborator.
type DeviceMetrics interface {
	// CPUUsage returns the process's CPU usage since the previous call,
	// in percent of one core; values above 100 mean more than one core was busy.
	CPUUsage() (float64, error)

	// ThreadUsage returns per-thread CPU usage since the previous call.
	ThreadUsage() ([]ThreadUsage, error)

	// MemoryFootprint returns the process's resident memory in bytes.
	MemoryFootprint() (uint64, error)

	ThermalState() (ThermalState, error)
}
