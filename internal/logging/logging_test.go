package logging

import (
	"errors"
	"testing"
)

func TestNewOperationErrorNil(t *testing.T) {
	if err := NewOperationError("storage.upload", "run-1", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestOperationErrorFormatsAndUnwraps(t *testing.T) {
	base := errors.New("disk full")
	err := NewOperationError("storage.upload", "run-1", base)

	if got, want := err.Error(), "storage.upload (run_id=run-1): disk full"; got != want {
		t.Fatalf("unexpected message: %q", got)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to reach the wrapped error")
	}

	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "storage.upload" {
		t.Fatalf("expected OperationError, got %T", err)
	}

	bare := NewOperationError("annotator.annotate", "", base)
	if got, want := bare.Error(), "annotator.annotate: disk full"; got != want {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger("nonsense")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Fatal("debug should be disabled at the fallback level")
	}
	if !logger.Core().Enabled(0) {
		t.Fatal("info should be enabled at the fallback level")
	}
}
