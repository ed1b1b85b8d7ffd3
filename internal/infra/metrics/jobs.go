package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(researchJobsTotal, researchJobDuration, researchPhaseDuration, queueDepth)
}

var (
	researchJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_jobs_total",
			Help: "Research job state transitions, labeled by the state entered.",
		},
		[]string{"state"}, // queued|started|finished|failed
	)

	researchJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_job_duration_seconds",
			Help:    "Wall time of a research job from start to terminal state.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	researchPhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_phase_duration_seconds",
			Help:    "Duration of each research pipeline phase.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"phase"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Pending messages in the job queue as last observed by a worker.",
		},
	)
)

func IncJobState(state string) {
	researchJobsTotal.WithLabelValues(norm(state)).Inc()
}

func ObserveJobDuration(outcome string, d time.Duration) {
	researchJobDuration.WithLabelValues(norm(outcome)).Observe(d.Seconds())
}

func ObservePhase(phase string, d time.Duration) {
	researchPhaseDuration.WithLabelValues(norm(phase)).Observe(d.Seconds())
}

func SetQueueDepth(n int64) {
	queueDepth.Set(float64(n))
}
