package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTranscription(t *testing.T) {
	beforeOK := testutil.ToFloat64(transcriptions.WithLabelValues(ModeSync, OutcomeCompleted))
	beforeMin := testutil.ToFloat64(transcribedMinutes)

	RecordTranscription(ModeSync, OutcomeCompleted, 2.5)
	RecordTranscription(ModeAsync, OutcomeQuota, 10) // minutes not charged

	if got := testutil.ToFloat64(transcriptions.WithLabelValues(ModeSync, OutcomeCompleted)); got != beforeOK+1 {
		t.Fatalf("completed counter: got %v want %v", got, beforeOK+1)
	}
	if got := testutil.ToFloat64(transcribedMinutes); got != beforeMin+2.5 {
		t.Fatalf("minutes counter: got %v want %v", got, beforeMin+2.5)
	}
}

func TestQueueAndEngineMetrics(t *testing.T) {
	SetQueueDepth(7)
	if got := testutil.ToFloat64(queueDepth); got != 7 {
		t.Fatalf("queue depth: got %v", got)
	}
	before := testutil.ToFloat64(queueRejected)
	RecordQueueRejected()
	if got := testutil.ToFloat64(queueRejected); got != before+1 {
		t.Fatalf("rejected: got %v", got)
	}
	ObserveEngine(1500 * time.Millisecond)
	if n := testutil.CollectAndCount(engineDuration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
}
