package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transcription outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeQuota     = "quota_exceeded"
)

// Transcription modes used as the "mode" label.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

var (
	transcriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriptions_total",
		Help: "Transcription attempts by mode and outcome.",
	}, []string{"mode", "outcome"})

	transcribedMinutes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcribed_minutes_total",
		Help: "Audio minutes charged to users.",
	})

	engineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcription_engine_duration_seconds",
		Help:    "Time spent waiting on the external engine.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transcription_queue_depth",
		Help: "Tasks waiting in the work queue.",
	})

	queueRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcription_queue_rejected_total",
		Help: "Tasks that could not be queued.",
	})
)

// RecordTranscription counts one finished attempt. minutes is added to the
// charged total only for completed attempts.
func RecordTranscription(mode, outcome string, minutes float64) {
	transcriptions.WithLabelValues(mode, outcome).Inc()
	if outcome == OutcomeCompleted && minutes > 0 {
		transcribedMinutes.Add(minutes)
	}
}

// ObserveEngine records how long an engine call took.
func ObserveEngine(d time.Duration) { engineDuration.Observe(d.Seconds()) }

// SetQueueDepth publishes the current queue length.
func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

// RecordQueueRejected counts a task that hit a full or stopped queue.
func RecordQueueRejected() { queueRejected.Inc() }
