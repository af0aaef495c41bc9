package main

import (
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/vision-pipeline/internal/events"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <session>",
		Short: "Print pipeline transitions published for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			defer client.Close()

			runCtx := cmd.Context()
			sub := events.Subscribe(runCtx, client, args[0])
			defer sub.Close()
			if _, err := sub.Receive(runCtx); err != nil {
				return fmt.Errorf("subscribe %s: %w", events.Channel(args[0]), err)
			}

			messages := sub.Channel()
			for {
				select {
				case <-runCtx.Done():
					return nil
				case msg, ok := <-messages:
					if !ok {
						return nil
					}
					var decoded events.Message
					if err := json.Unmarshal([]byte(msg.Payload), &decoded); err != nil {
						logger.Warn("skipping malformed message", zap.Error(err), zap.String("channel", msg.Channel))
						continue
					}
					fmt.Fprintln(cmd.OutOrStdout(), formatTransition(decoded))
				}
			}
		},
	}
}
