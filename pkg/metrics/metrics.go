// Package metrics exposes collection cycle results as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"regsweep/pkg/report"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "regsweep"

// Label constants for metrics.
const (
	LabelStatus = "status"
	LabelPhase  = "phase"
)

// Status constants for cycles.
const (
	StatusSucceeded = "succeeded"
	StatusPartial   = "partial" // 完成，但有删除失败
	StatusAborted   = "aborted"
)

// Sink 把每份报告转换成指标，实现 report.Sink
type Sink struct {
	cycles        *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	deleted       prometheus.Counter
	deleteFailed  prometheus.Counter

	lastReachable prometheus.Gauge
	lastGarbage   prometheus.Gauge
	lastDigests   prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// NewSink creates and registers cycle metrics.
// If registry is nil, metrics are created but not registered.
func NewSink(registry prometheus.Registerer) *Sink {
	s := &Sink{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "cycles_total",
			Help:      "Total number of collection cycles by outcome",
		}, []string{LabelStatus}),

		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each collection phase",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{LabelPhase}),

		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "deleted_locations_total",
			Help:      "Total number of storage locations deleted",
		}),

		deleteFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "failed_deletions_total",
			Help:      "Total number of storage locations that could not be deleted",
		}),

		lastReachable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "last_reachable_digests",
			Help:      "Reachable digests found by the last completed cycle",
		}),

		lastGarbage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "last_garbage_digests",
			Help:      "Unreachable digests found by the last completed cycle",
		}),

		lastDigests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "last_indexed_digests",
			Help:      "Digests indexed by the last completed cycle",
		}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that finished without errors",
		}),
	}

	if registry != nil {
		registry.MustRegister(
			s.cycles, s.phaseDuration, s.deleted, s.deleteFailed,
			s.lastReachable, s.lastGarbage, s.lastDigests, s.lastSuccess,
		)
	}
	return s
}

func (s *Sink) Publish(_ context.Context, r *report.Report) error {
	for phase, ms := range r.Timings {
		s.phaseDuration.WithLabelValues(string(phase)).Observe(float64(ms) / 1000)
	}

	switch {
	case r.Aborted:
		s.cycles.WithLabelValues(StatusAborted).Inc()
		return nil
	case len(r.Failures) > 0:
		s.cycles.WithLabelValues(StatusPartial).Inc()
	default:
		s.cycles.WithLabelValues(StatusSucceeded).Inc()
		s.lastSuccess.Set(float64(r.FinishedAt.Unix()))
	}

	// dry-run 没有真正删除任何东西
	if !r.DryRun {
		s.deleted.Add(float64(r.Deleted))
	}
	s.deleteFailed.Add(float64(len(r.Failures)))
	s.lastDigests.Set(float64(r.Digests))
	s.lastReachable.Set(float64(r.Reachable))
	s.lastGarbage.Set(float64(r.Garbage))
	return nil
}

// Handler 返回 /metrics 的 HTTP handler
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
