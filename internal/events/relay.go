package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/example/vision-pipeline/internal/logging"
	"github.com/example/vision-pipeline/internal/pipeline"
)

const publishTimeout = 2 * time.Second

// Channel is the pub/sub channel carrying the states of session.
func Channel(session string) string {
	return "pipeline:" + session
}

// Message is the payload published for every transition.
type Message struct {
	Session string         `json:"session"`
	State   pipeline.State `json:"state"`
}

// Relay publishes every state received from states until the channel closes. Publish
// failures are logged and skipped; the pipeline never waits on Redis.
func Relay(session string, states <-chan pipeline.State, pub Publisher, logger *zap.Logger) {
	channel := Channel(session)
	for state := range states {
		payload, err := json.Marshal(Message{Session: session, State: state})
		if err != nil {
			logger.Error("failed to encode state", zap.Error(err))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err = pub.Publish(ctx, channel, string(payload))
		cancel()
		if err != nil {
			wrapped := logging.NewOperationError("events.publish", state.RunID, err)
			logger.Warn("failed to publish state", zap.Error(wrapped), zap.String("channel", channel))
		}
	}
}

// Attach returns a registry hook relaying each new controller's states to pub.
func Attach(pub Publisher, logger *zap.Logger) pipeline.AttachFunc {
	logger = logger.Named("events")
	return func(session string, c *pipeline.Controller) {
		states, _ := c.Subscribe()
		go Relay(session, states, pub, logger.With(zap.String("session", session)))
	}
}
