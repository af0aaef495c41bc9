package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/example/vision-pipeline/internal/annotator"
	"github.com/example/vision-pipeline/internal/pipeline"
	"github.com/example/vision-pipeline/internal/storage"
)

type stubUploader struct {
	url string
	err error
}

func (s stubUploader) Upload(ctx context.Context, image storage.ImageHandle) (storage.UploadResult, error) {
	if s.err != nil {
		return storage.UploadResult{}, s.err
	}
	return storage.UploadResult{URL: s.url}, nil
}

type stubAnnotator struct {
	body string
	err  error
}

func (s stubAnnotator) Annotate(ctx context.Context, req annotator.Request) (*annotator.RawResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	var raw annotator.RawResponse
	if err := protojson.Unmarshal([]byte(s.body), &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

func runWithTimeout(t *testing.T, c *pipeline.Controller, analyze bool) (pipeline.State, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return runAnnotate(ctx, c, storage.ImageHandle("/tmp/image.png"), analyze)
}

func TestRunAnnotateSuccess(t *testing.T) {
	c := pipeline.NewController(
		stubUploader{url: "https://cdn.example.com/x.png"},
		stubAnnotator{body: `{"responses":[{"labelAnnotations":[{"description":"Tree"},{"description":"Forest"}]}]}`},
		zap.NewNop(),
	)
	defer c.Close()

	state, err := runWithTimeout(t, c, true)
	if err != nil {
		t.Fatalf("runAnnotate: %v", err)
	}
	if state.Phase != pipeline.PhaseAnnotated {
		t.Fatalf("expected annotated, got %s", state.Phase)
	}
	if got := state.Result.Labels; len(got) != 2 || got[0] != "Tree" || got[1] != "Forest" {
		t.Fatalf("unexpected labels %v", got)
	}
}

func TestRunAnnotateUploadOnly(t *testing.T) {
	c := pipeline.NewController(stubUploader{url: "https://cdn.example.com/x.png"}, stubAnnotator{}, zap.NewNop())
	defer c.Close()

	state, err := runWithTimeout(t, c, false)
	if err != nil {
		t.Fatalf("runAnnotate: %v", err)
	}
	if state.Phase != pipeline.PhaseUploaded || state.Upload.URL != "https://cdn.example.com/x.png" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestRunAnnotateReportsFailedStage(t *testing.T) {
	c := pipeline.NewController(
		stubUploader{url: "https://cdn.example.com/x.png"},
		stubAnnotator{err: &annotator.AnnotationError{Status: 500, Body: "boom"}},
		zap.NewNop(),
	)
	defer c.Close()

	state, err := runWithTimeout(t, c, true)
	var stageErr *stageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected stageError, got %v", err)
	}
	if stageErr.failure.Stage != pipeline.StageAnalysis {
		t.Fatalf("expected analysis stage, got %s", stageErr.failure.Stage)
	}
	if state.Phase != pipeline.PhaseFailed {
		t.Fatalf("expected failed, got %s", state.Phase)
	}
}

func TestRunAnnotateUploadFailure(t *testing.T) {
	c := pipeline.NewController(stubUploader{err: errors.New("disk full")}, stubAnnotator{}, zap.NewNop())
	defer c.Close()

	_, err := runWithTimeout(t, c, true)
	var stageErr *stageError
	if !errors.As(err, &stageErr) || stageErr.failure.Stage != pipeline.StageUpload {
		t.Fatalf("expected upload stageError, got %v", err)
	}
}
