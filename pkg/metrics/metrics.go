// Package metrics exposes Prometheus instruments for the posting pipeline.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sipeed/picopost/pkg/pipeline"
)

var (
	// CyclesTotal counts finished cycles by mode, status and failure kind.
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "picopost_cycles_total",
			Help: "Finished posting cycles by mode, status and failure kind",
		},
		[]string{"mode", "status", "kind"},
	)

	// CycleDuration tracks how long cycles take end to end.
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "picopost_cycle_duration_seconds",
			Help:    "Duration of posting cycles",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 300},
		},
		[]string{"mode"},
	)

	// RelayEvents counts inbound relay events by correlation result.
	RelayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "picopost_relay_events_total",
			Help: "Inbound relay events by correlation result",
		},
		[]string{"result"},
	)

	// Awaiting is 1 while a relay request is outstanding.
	Awaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "picopost_relay_awaiting",
			Help: "1 while a relay request is waiting for its reply",
		},
	)

	// JobRuns counts scheduler job invocations.
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "picopost_job_runs_total",
			Help: "Scheduler job runs by job and result",
		},
		[]string{"job", "result"},
	)

	// KeepAlivePings counts self-pings by result.
	KeepAlivePings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "picopost_keepalive_pings_total",
			Help: "Self-ping attempts by result",
		},
		[]string{"result"},
	)
)

// Reporter records cycle outcomes.
type Reporter struct{}

func (Reporter) Report(_ context.Context, o pipeline.Outcome) {
	CyclesTotal.WithLabelValues(o.Mode, string(o.Status), o.Kind().String()).Inc()
	CycleDuration.WithLabelValues(o.Mode).Observe(o.Duration.Seconds())
}
