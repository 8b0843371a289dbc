package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"undetected/internal/estimator"
	"undetected/pkg/domain"
)

const metricsNamespace = "undetected"

// Metrics aggregates sampler and experiment counters in a private
// Prometheus registry. It implements estimator.Recorder.
type Metrics struct {
	registry    *prometheus.Registry
	replicates  prometheus.Counter
	failures    prometheus.Counter
	excursions  prometheus.Counter
	evaluations prometheus.Counter
	sampling    prometheus.Histogram
	runs        *prometheus.CounterVec
	runSeconds  *prometheus.HistogramVec
}

var _ estimator.Recorder = (*Metrics)(nil)

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		replicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "replicates_total",
			Help:      "Trajectories sampled successfully.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "replicate_failures_total",
			Help:      "Trajectories that aborted their run.",
		}),
		excursions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "impossible_excursions_total",
			Help:      "Entries into the impossible region across all trajectories.",
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "midp_evaluations_total",
			Help:      "Mid-P evaluations performed by the bound inverter.",
		}),
		sampling: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "sampling_duration_seconds",
			Help:      "Wall time of one ensemble sampling pass.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Experiment runs by kind and outcome.",
		}, []string{"kind", "status"}),
		runSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of experiment runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.replicates, m.failures, m.excursions, m.evaluations, m.sampling, m.runs, m.runSeconds)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveReplicate implements estimator.Recorder.
func (m *Metrics) ObserveReplicate(p estimator.Path) {
	m.replicates.Inc()
	m.excursions.Add(float64(p.Excursions))
	m.evaluations.Add(float64(p.Evaluations))
}

// ObserveFailure implements estimator.Recorder.
func (m *Metrics) ObserveFailure(error) { m.failures.Inc() }

// ObserveRun implements estimator.Recorder.
func (m *Metrics) ObserveRun(_ int, elapsed time.Duration) { m.sampling.Observe(elapsed.Seconds()) }

// ObserveExperiment records one experiment outcome.
func (m *Metrics) ObserveExperiment(kind domain.RunKind, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.runs.WithLabelValues(string(kind), status).Inc()
	m.runSeconds.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
