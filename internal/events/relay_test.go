package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/example/vision-pipeline/internal/pipeline"
	"github.com/example/vision-pipeline/internal/storage"
)

type published struct {
	channel string
	message string
}

type stubPublisher struct {
	mu       sync.Mutex
	messages []published
	errs     []error
}

func (s *stubPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, published{channel: channel, message: message.(string)})
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func TestRelayPublishesEveryState(t *testing.T) {
	states := make(chan pipeline.State, 3)
	states <- pipeline.State{Phase: pipeline.PhaseUploading, RunID: "run-1", Generation: 1}
	states <- pipeline.State{Phase: pipeline.PhaseUploaded, RunID: "run-1", Generation: 1, Upload: &storage.UploadResult{URL: "https://store/x"}}
	close(states)

	pub := &stubPublisher{errs: []error{errors.New("redis down")}}
	Relay("alice", states, pub, zap.NewNop())

	if len(pub.messages) != 2 {
		t.Fatalf("expected 2 publishes even after a failure, got %d", len(pub.messages))
	}
	for _, m := range pub.messages {
		if m.channel != "pipeline:alice" {
			t.Fatalf("unexpected channel %s", m.channel)
		}
	}

	var msg Message
	if err := json.Unmarshal([]byte(pub.messages[1].message), &msg); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if msg.Session != "alice" || msg.State.Phase != pipeline.PhaseUploaded {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.State.Upload == nil || msg.State.Upload.URL != "https://store/x" {
		t.Fatalf("unexpected upload %+v", msg.State.Upload)
	}
}
