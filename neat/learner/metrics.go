package learner

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the prometheus collectors a Learner updates.
type Metrics struct {
	Evaluations        prometheus.Counter
	EvaluationDuration prometheus.Histogram
	Generation         prometheus.Gauge
	Species            prometheus.Gauge
	GenerationBest     prometheus.Gauge
	GenerationMean     prometheus.Gauge
	HighestFitness     prometheus.Gauge
	RunsCompleted      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is useful when several learners share a
// process.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neat",
			Name:      "evaluations_total",
			Help:      "Total genome evaluations reported to the population.",
		}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neat",
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of one genome evaluation, repeats included.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 12),
		}),
		Generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neat",
			Name:      "generation",
			Help:      "Number of completed generations.",
		}),
		Species: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neat",
			Name:      "species",
			Help:      "Number of species in the current generation.",
		}),
		GenerationBest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neat",
			Name:      "generation_best_fitness",
			Help:      "Best fitness of the last completed generation.",
		}),
		GenerationMean: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neat",
			Name:      "generation_mean_fitness",
			Help:      "Mean fitness of the last completed generation.",
		}),
		HighestFitness: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neat",
			Name:      "highest_fitness",
			Help:      "Best fitness reported during the run.",
		}),
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neat",
			Name:      "runs_completed_total",
			Help:      "Finished runs by stop reason.",
		}, []string{"reason"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.Evaluations, m.EvaluationDuration, m.Generation, m.Species,
		m.GenerationBest, m.GenerationMean, m.HighestFitness, m.RunsCompleted,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
