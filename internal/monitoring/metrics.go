// Package monitoring holds the Prometheus metrics of session loads.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fibre_map"

// Metrics holds the counters, histograms and gauges for session loads.
type Metrics struct {
	Runs          *prometheus.CounterVec   // labels: outcome={ok,error}, kind
	RunDuration   prometheus.Histogram
	PhaseDuration *prometheus.HistogramVec // labels: phase
	Communes      prometheus.Gauge
	Matched       prometheus.Gauge
	MeanPct       prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Session loads by outcome and failure kind.",
		}, []string{"outcome", "kind"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete session load.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of each load phase.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"phase"}),
		Communes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "communes",
			Help:      "Communes in the last rendered map.",
		}),
		Matched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "communes_matched",
			Help:      "Communes of the last rendered map with a coverage record.",
		}),
		MeanPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mean_pct_fiber",
			Help:      "National mean fibre coverage of the last rendered map.",
		}),
	}

	reg.MustRegister(m.Runs, m.RunDuration, m.PhaseDuration, m.Communes, m.Matched, m.MeanPct)
	return m
}
