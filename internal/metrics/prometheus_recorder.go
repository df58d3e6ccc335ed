package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	stepDuration     *prom.HistogramVec
	targetDuration   *prom.HistogramVec
	matrixDuration   prom.Histogram
	stepResults      *prom.CounterVec
	targetOutcomes   *prom.CounterVec
	buildConcurrency prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "pgmill",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual pipeline steps",
			Buckets:   prom.DefBuckets,
		}, []string{"step"})
		pr.targetDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "pgmill",
			Name:      "target_build_duration_seconds",
			Help:      "Duration of individual target builds",
			Buckets:   prom.DefBuckets,
		}, []string{"target"})
		pr.matrixDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "pgmill",
			Name:      "matrix_duration_seconds",
			Help:      "Total duration of one build matrix",
			Buckets:   prom.DefBuckets,
		})
		pr.stepResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pgmill",
			Name:      "step_results_total",
			Help:      "Step result counts by outcome",
		}, []string{"step", "result"})
		pr.targetOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pgmill",
			Name:      "target_outcomes_total",
			Help:      "Target build outcomes by terminal status",
		}, []string{"outcome"})
		pr.buildConcurrency = prom.NewGauge(prom.GaugeOpts{
			Namespace: "pgmill",
			Name:      "build_concurrency",
			Help:      "Configured maximum concurrent target builds",
		})
		reg.MustRegister(pr.stepDuration, pr.targetDuration, pr.matrixDuration, pr.stepResults, pr.targetOutcomes, pr.buildConcurrency)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveTargetDuration(target string, d time.Duration) {
	if p == nil || p.targetDuration == nil {
		return
	}
	p.targetDuration.WithLabelValues(target).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveMatrixDuration(d time.Duration) {
	if p == nil || p.matrixDuration == nil {
		return
	}
	p.matrixDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStepResult(step, result string) {
	if p == nil || p.stepResults == nil {
		return
	}
	p.stepResults.WithLabelValues(step, result).Inc()
}

func (p *PrometheusRecorder) IncTargetOutcome(outcome string) {
	if p == nil || p.targetOutcomes == nil {
		return
	}
	p.targetOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) SetBuildConcurrency(n int) {
	if p == nil || p.buildConcurrency == nil {
		return
	}
	p.buildConcurrency.Set(float64(n))
}
