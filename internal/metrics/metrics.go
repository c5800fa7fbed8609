// Package metrics exposes the pipeline's operational counters over the
// standard Prometheus text endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Set struct {
	ReadingsIngested    prometheus.Counter
	LinesRejected       prometheus.Counter
	RolloversCompleted  prometheus.Counter
	PersistenceFailures prometheus.Counter
	LinkState           prometheus.Gauge

	registry *prometheus.Registry
}

// New builds a metric set on its own registry so parallel tests do not
// collide on the global default.
func New() *Set {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Set{
		ReadingsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "airmon_readings_ingested_total",
			Help: "Valid sensor readings accepted into the hourly bucket.",
		}),
		LinesRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "airmon_lines_rejected_total",
			Help: "Sensor lines dropped as incomplete or malformed.",
		}),
		RolloversCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "airmon_rollovers_completed_total",
			Help: "Hourly summaries produced by bucket rollover.",
		}),
		PersistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "airmon_persistence_failures_total",
			Help: "Storage writes that failed and were skipped.",
		}),
		LinkState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "airmon_link_state",
			Help: "Sensor link state (0 disconnected, 1 connecting, 2 connected, 3 reading).",
		}),
		registry: reg,
	}
}

// Handler serves the registry in Prometheus exposition format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
