// Package metrics exposes governance counters to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer and before Register is called.
type Metrics struct {
	events       *prometheus.CounterVec
	scans        *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec

	registerOnce sync.Once
}

// New returns metrics registered with registry. A nil registry yields
// unregistered metrics whose methods are no-ops.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{}
	m.Register(registry)
	return m
}

// Register registers the collectors with registry. Subsequent calls are
// no-ops.
func (m *Metrics) Register(registry prometheus.Registerer) {
	if m == nil || registry == nil {
		return
	}

	m.registerOnce.Do(func() {
		factory := promauto.With(registry)

		m.events = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guildgov_events_total",
			Help: "Governance transitions by event kind",
		}, []string{"kind"})

		m.scans = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guildgov_scans_total",
			Help: "Per-guild scan runs by label and result",
		}, []string{"label", "result"})

		m.scanDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guildgov_scan_duration_seconds",
			Help:    "Per-guild scan duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"label"})
	})
}

// Event counts one governance transition.
func (m *Metrics) Event(kind string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// Scan records one per-guild scan run. result is "ok", "error" or "skipped".
func (m *Metrics) Scan(label, result string, elapsed time.Duration) {
	if m == nil || m.scans == nil {
		return
	}
	m.scans.WithLabelValues(label, result).Inc()
	if result != "skipped" {
		m.scanDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	}
}
