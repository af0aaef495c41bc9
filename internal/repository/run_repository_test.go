package repository

import "testing"

func TestSummarizeGroupsByOutcome(t *testing.T) {
	s := summarize([]phaseCount{
		{Phase: "uploaded", Count: 4},
		{Phase: "annotated", Count: 3},
		{Phase: "failed", Stage: "upload", Count: 1},
		{Phase: "failed", Stage: "analysis", Count: 2},
	})

	if s.Total != 10 {
		t.Fatalf("expected total 10, got %d", s.Total)
	}
	if s.Uploaded != 4 || s.Annotated != 3 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.UploadFailures != 1 || s.AnalysisFailures != 2 {
		t.Fatalf("unexpected failures %+v", s)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if s := summarize(nil); *s != (Summary{}) {
		t.Fatalf("expected zero summary, got %+v", s)
	}
}

func TestRunLogTableName(t *testing.T) {
	if got := (RunLog{}).TableName(); got != "run_logs" {
		t.Fatalf("unexpected table name %s", got)
	}
}
