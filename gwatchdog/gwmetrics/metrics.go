// Package gwmetrics exports watchdog events as Prometheus metrics.
package gwmetrics

import (
	"fmt"

	"github.com/gordian-engine/gstall/gwatchdog"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gstall"

// Observer is a [gwatchdog.Observer] that updates Prometheus collectors.
type Observer struct {
	events   *prometheus.CounterVec
	filtered *prometheus.CounterVec
	stalls   *prometheus.HistogramVec

	timeout prometheus.Gauge
	cpu     prometheus.Gauge
}

// New returns an Observer whose collectors are registered with reg.
func New(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Watchdog events by type and report kind.",
		}, []string{"event", "kind"}),

		filtered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filtered_total",
			Help:      "Stalls and auxiliary reports suppressed, by reason.",
		}, []string{"reason"}),

		stalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stall_duration_seconds",
			Help:      "How long the monitored loop had been stalled when a hang was detected.",
			Buckets:   []float64{0.4, 0.8, 1.6, 3.2, 6.4, 12.8, 25.6},
		}, []string{"kind"}),

		timeout: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hang_timeout_seconds",
			Help:      "Hang timeout applied in the most recent check.",
		}),

		cpu: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_usage_percent",
			Help:      "Process CPU usage at the most recent high-usage event.",
		}),
	}

	for _, c := range []prometheus.Collector{o.events, o.filtered, o.stalls, o.timeout, o.cpu} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register watchdog collector: %w", err)
		}
	}

	return o, nil
}

func (o *Observer) OnEvent(e gwatchdog.Event) {
	var kind string
	if e.Kind != 0 {
		kind = e.Kind.String()
	}
	o.events.WithLabelValues(e.Type.String(), kind).Inc()

	switch e.Type {
	case gwatchdog.EventEnterNextCheck:
		o.timeout.Set(e.Threshold.Seconds())
	case gwatchdog.EventMainThreadHang:
		o.stalls.WithLabelValues(kind).Observe(e.Blocked.Seconds())
	case gwatchdog.EventDumpFiltered:
		o.filtered.WithLabelValues(e.Reason.String()).Inc()
	case gwatchdog.EventCPUInstantHigh, gwatchdog.EventCPUSustainedHigh:
		o.cpu.Set(e.CPU)
	}
}
