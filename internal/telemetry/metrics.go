// Package telemetry exposes Prometheus metrics for chain production.
//
// Every Metrics value owns its registry, so tests and multiple services in
// one process never collide on registration. A nil *Metrics is valid and
// records nothing.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chainforge"

// Metrics holds the production collectors.
type Metrics struct {
	registry *prometheus.Registry

	SegmentsCrafted *prometheus.CounterVec
	SegmentsFailed  *prometheus.CounterVec
	SegmentsDubbed  *prometheus.CounterVec
	MissingContent  *prometheus.CounterVec
	CraftDuration   *prometheus.HistogramVec
	FabricatedAhead *prometheus.GaugeVec
	ChainsActive    prometheus.Gauge
}

// New registers the collectors on a fresh registry, plus the Go runtime and
// process collectors when withRuntime is set.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SegmentsCrafted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "segments",
			Name:      "crafted_total",
			Help:      "Segments crafted, by chain and segment type.",
		}, []string{"chain", "type"}),
		SegmentsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "segments",
			Name:      "failed_total",
			Help:      "Segments persisted as Failed after exhausting retries.",
		}, []string{"chain"}),
		SegmentsDubbed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "segments",
			Name:      "dubbed_total",
			Help:      "Segments handed to the dubber successfully.",
		}, []string{"chain"}),
		MissingContent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "craft",
			Name:      "missing_content_total",
			Help:      "Content gaps reported while crafting, by entity.",
		}, []string{"entity"}),
		CraftDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "craft",
			Name:      "duration_seconds",
			Help:      "Wall time of one craft attempt.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"outcome"}),
		FabricatedAhead: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "fabricated_ahead_seconds",
			Help:      "How far crafted segments reach past the playback cursor.",
		}, []string{"chain"}),
		ChainsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "active",
			Help:      "Chains currently in the Fabricate state.",
		}),
	}
}

// Registry returns the registry collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Crafted records a successful craft.
func (m *Metrics) Crafted(chainID, segmentType string, took time.Duration) {
	if m == nil {
		return
	}
	m.SegmentsCrafted.WithLabelValues(chainID, segmentType).Inc()
	m.CraftDuration.WithLabelValues("crafted").Observe(took.Seconds())
}

// CraftFailed records a craft attempt that faulted.
func (m *Metrics) CraftFailed(took time.Duration) {
	if m == nil {
		return
	}
	m.CraftDuration.WithLabelValues("fault").Observe(took.Seconds())
}

// Failed records a segment persisted as Failed.
func (m *Metrics) Failed(chainID string) {
	if m == nil {
		return
	}
	m.SegmentsFailed.WithLabelValues(chainID).Inc()
}

// Dubbed records a dubbed segment.
func (m *Metrics) Dubbed(chainID string) {
	if m == nil {
		return
	}
	m.SegmentsDubbed.WithLabelValues(chainID).Inc()
}

// Missing records one content gap.
func (m *Metrics) Missing(entity string) {
	if m == nil {
		return
	}
	m.MissingContent.WithLabelValues(entity).Inc()
}

// Ahead sets how far a chain is fabricated past its cursor.
func (m *Metrics) Ahead(chainID string, ahead time.Duration) {
	if m == nil {
		return
	}
	m.FabricatedAhead.WithLabelValues(chainID).Set(ahead.Seconds())
}

// Active sets the number of fabricating chains.
func (m *Metrics) Active(n int) {
	if m == nil {
		return
	}
	m.ChainsActive.Set(float64(n))
}
