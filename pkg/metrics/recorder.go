package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder exports research loop metrics to Prometheus.
type Recorder struct {
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	runs          *prometheus.CounterVec
	cycles        prometheus.Histogram
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "derma_research_stage_duration_seconds",
				Help:    "Duration of research loop stages",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"stage"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "derma_research_stage_failures_total",
				Help: "Total number of failed research loop stages",
			},
			[]string{"stage"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "derma_research_runs_total",
				Help: "Total number of research runs by outcome",
			},
			[]string{"outcome"},
		),
		cycles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "derma_research_cycles",
			Help:    "Research cycles performed per run",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
	}
	reg.MustRegister(r.stageDuration, r.stageFailures, r.runs, r.cycles)
	return r
}

func (r *Recorder) ObserveStage(stage string, elapsed time.Duration, err error) {
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		r.stageFailures.WithLabelValues(stage).Inc()
	}
}

func (r *Recorder) ObserveRun(outcome string, loops int) {
	r.runs.WithLabelValues(outcome).Inc()
	r.cycles.Observe(float64(loops))
}
