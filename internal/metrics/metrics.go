// Package metrics holds the prometheus collectors of one mesher rank. Each
// mesher registers on its own registry so several ranks can share a process.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cvmesh"

type Metrics struct {
	Registry *prometheus.Registry

	PointsInserted prometheus.Counter
	PointsRemoved  prometheus.Counter
	PointsDropped  prometheus.Counter
	// Pairs counts conforming point groups inserted, by kind.
	Pairs *prometheus.CounterVec
	// Anomalies counts recoverable geometric anomalies, by kind.
	Anomalies  *prometheus.CounterVec
	Iterations prometheus.Counter
	Vertices   prometheus.Gauge
	Relaxation prometheus.Gauge
}

// New returns the collectors of rank registered on a fresh registry.
func New(rank int) *Metrics {
	labels := prometheus.Labels{"rank": strconv.Itoa(rank)}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help, ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help, ConstLabels: labels,
		})
	}
	m := &Metrics{
		Registry:       prometheus.NewRegistry(),
		PointsInserted: counter("points_inserted_total", "Points inserted by motion."),
		PointsRemoved:  counter("points_removed_total", "Points removed by motion."),
		PointsDropped:  counter("points_dropped_total", "Points dropped by the tessellation as coincident."),
		Pairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "conforming_groups_total",
			Help: "Conforming point groups inserted.", ConstLabels: labels,
		}, []string{"kind"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "anomalies_total",
			Help: "Recoverable geometric anomalies.", ConstLabels: labels,
		}, []string{"kind"}),
		Iterations: counter("iterations_total", "Motion iterations completed."),
		Vertices:   gauge("vertices", "Vertices owned after the last rebuild."),
		Relaxation: gauge("relaxation", "Relaxation factor of the last iteration."),
	}
	m.Registry.MustRegister(m.PointsInserted, m.PointsRemoved, m.PointsDropped,
		m.Pairs, m.Anomalies, m.Iterations, m.Vertices, m.Relaxation)
	return m
}

// AddAnomalies adds counts keyed by anomaly kind.
func (m *Metrics) AddAnomalies(counts map[string]int) {
	for kind, n := range counts {
		if n > 0 {
			m.Anomalies.WithLabelValues(kind).Add(float64(n))
		}
	}
}
