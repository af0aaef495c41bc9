package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/vision-pipeline/internal/pipeline"
)

func TestPipelineCountsTransitionsAndStale(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPipeline(reg)

	p.ObserveTransition(pipeline.PhaseUploading)
	p.ObserveTransition(pipeline.PhaseUploaded)
	p.ObserveTransition(pipeline.PhaseUploading)
	p.ObserveStage(pipeline.StageAnalysis, pipeline.OutcomeStale, 300*time.Millisecond)
	p.ObserveStage(pipeline.StageUpload, pipeline.OutcomeSuccess, 100*time.Millisecond)

	if got := testutil.ToFloat64(p.transitions.WithLabelValues("uploading")); got != 2 {
		t.Fatalf("expected 2 uploading transitions, got %v", got)
	}
	if got := testutil.ToFloat64(p.stale.WithLabelValues("analysis")); got != 1 {
		t.Fatalf("expected 1 stale analysis, got %v", got)
	}
	if got := testutil.ToFloat64(p.stale.WithLabelValues("upload")); got != 0 {
		t.Fatalf("expected no stale uploads, got %v", got)
	}
	if n := testutil.CollectAndCount(p.stageDuration); n != 2 {
		t.Fatalf("expected 2 histogram series, got %d", n)
	}
}
