package report

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/buckleypaul/simmatrix/internal/orchestrator"
)

// Metrics records run results as Prometheus series and writes them in the
// node-exporter textfile format.
type Metrics struct {
	orchestrator.NopObserver

	registry  *prometheus.Registry
	variants  *prometheus.CounterVec
	stages    *prometheus.CounterVec
	durations *prometheus.HistogramVec
	runTime   prometheus.Gauge
}

// NewMetrics registers the simmatrix series on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		variants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simmatrix_variants_total",
			Help: "Variants run, by result.",
		}, []string{"result"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simmatrix_stage_results_total",
			Help: "Stage results, by stage and result.",
		}, []string{"stage", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simmatrix_stage_duration_seconds",
			Help:    "Time spent in each stage.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		runTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simmatrix_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
	}
	m.registry.MustRegister(m.variants, m.stages, m.durations, m.runTime)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) StageFinished(_ int, r orchestrator.StageResult) {
	stage := string(r.Stage)
	m.stages.WithLabelValues(stage, resultLabel(r)).Inc()
	if !r.Skipped {
		m.durations.WithLabelValues(stage).Observe(r.Duration.Seconds())
	}
}

func (m *Metrics) VariantFinished(o orchestrator.VariantOutcome) {
	if o.Passed {
		m.variants.WithLabelValues("pass").Inc()
	} else {
		m.variants.WithLabelValues("fail").Inc()
	}
}

func (m *Metrics) RunFinished(r orchestrator.Run) {
	m.runTime.Set(r.Duration.Seconds())
}

// WriteTextfile atomically writes every series to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func resultLabel(r orchestrator.StageResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Passed:
		return "pass"
	default:
		return "fail"
	}
}
