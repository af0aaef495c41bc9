package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/vision-pipeline/internal/pipeline"
)

// Pipeline exports stage timings and state transitions.
type Pipeline struct {
	stageDuration *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	stale         *prometheus.CounterVec
}

var _ pipeline.StageObserver = (*Pipeline)(nil)

// NewPipeline registers the pipeline collectors with reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vision",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in the upload and analysis stages.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"stage", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vision",
			Subsystem: "pipeline",
			Name:      "transitions_total",
			Help:      "State transitions by target phase.",
		}, []string{"phase"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vision",
			Subsystem: "pipeline",
			Name:      "stale_completions_total",
			Help:      "Completions dropped because a newer operation superseded them.",
		}, []string{"stage"}),
	}
	reg.MustRegister(p.stageDuration, p.transitions, p.stale)
	return p
}

// ObserveStage records how long a stage took.
func (p *Pipeline) ObserveStage(stage pipeline.Stage, outcome pipeline.Outcome, elapsed time.Duration) {
	p.stageDuration.WithLabelValues(string(stage), string(outcome)).Observe(elapsed.Seconds())
	if outcome == pipeline.OutcomeStale {
		p.stale.WithLabelValues(string(stage)).Inc()
	}
}

// ObserveTransition counts a move into phase.
func (p *Pipeline) ObserveTransition(phase pipeline.Phase) {
	p.transitions.WithLabelValues(phase.String()).Inc()
}
