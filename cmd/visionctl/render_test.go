package main

import (
	"strings"
	"testing"
	"time"

	"github.com/example/vision-pipeline/internal/events"
	"github.com/example/vision-pipeline/internal/normalizer"
	"github.com/example/vision-pipeline/internal/pipeline"
	"github.com/example/vision-pipeline/internal/storage"
)

func TestRenderStateAnnotated(t *testing.T) {
	guess := "oak tree"
	out := renderState(pipeline.State{
		Phase:  pipeline.PhaseAnnotated,
		Upload: &storage.UploadResult{URL: "https://cdn.example.com/a.png"},
		Result: &normalizer.Result{Labels: []string{"Tree", "Forest"}, WebGuess: &guess},
	})

	for _, want := range []string{"annotated", "https://cdn.example.com/a.png", "Tree, Forest", "oak tree"} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "Landmarks") {
		t.Fatalf("expected landmarks row:\n%s", out)
	}
}

func TestRenderStateWithoutResult(t *testing.T) {
	out := renderState(pipeline.State{Phase: pipeline.PhaseUploaded, Upload: &storage.UploadResult{URL: "https://cdn.example.com/b.png"}})
	if strings.Contains(out, "Labels") {
		t.Fatalf("uploaded state should not render result rows:\n%s", out)
	}
	if !strings.Contains(out, "https://cdn.example.com/b.png") {
		t.Fatalf("expected url:\n%s", out)
	}
}

func TestFormatTransition(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	line := formatTransition(events.Message{
		Session: "alice",
		State: pipeline.State{
			Phase:     pipeline.PhaseFailed,
			RunID:     "run-1",
			Failure:   &pipeline.Failure{Stage: pipeline.StageAnalysis, Reason: "status 500"},
			UpdatedAt: at,
		},
	})
	want := `2024-05-01T12:00:00Z alice run=run-1 phase=failed stage=analysis reason="status 500"`
	if line != want {
		t.Fatalf("unexpected line:\n got %s\nwant %s", line, want)
	}
}
