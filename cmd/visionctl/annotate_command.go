package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/vision-pipeline/internal/container"
	"github.com/example/vision-pipeline/internal/pipeline"
	"github.com/example/vision-pipeline/internal/storage"
)

// stageError reports a run that ended in Failed.
type stageError struct {
	failure pipeline.Failure
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.failure.Stage, e.failure.Reason)
}

func newAnnotateCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var uploadOnly bool

	cmd := &cobra.Command{
		Use:   "annotate <image>",
		Short: "Upload an image and print its annotations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			deps, err := container.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()
			controller := deps.Factory(logger)("cli")
			defer controller.Close()

			state, err := runAnnotate(cmd.Context(), controller, storage.ImageHandle(args[0]), !uploadOnly)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, state)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderState(state))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the final state as JSON")
	cmd.Flags().BoolVar(&uploadOnly, "upload-only", false, "Stop after the upload and print the URL")
	return cmd
}

// runAnnotate drives one run through the controller and returns its final state. A Failed
// run is returned together with a stageError.
func runAnnotate(ctx context.Context, c *pipeline.Controller, image storage.ImageHandle, analyze bool) (pipeline.State, error) {
	states, cancel := c.Subscribe()
	defer cancel()

	if err := c.BeginUpload(image); err != nil {
		return pipeline.State{}, err
	}

	var runID string
	for {
		select {
		case <-ctx.Done():
			return c.CurrentState(), ctx.Err()
		case state, ok := <-states:
			if !ok {
				return c.CurrentState(), pipeline.ErrClosed
			}
			// the first delivery is the state from before BeginUpload
			if runID == "" {
				if state.Phase != pipeline.PhaseUploading {
					continue
				}
				runID = state.RunID
			}
			if state.RunID != runID {
				continue
			}

			switch state.Phase {
			case pipeline.PhaseUploaded:
				if !analyze {
					return state, nil
				}
				if err := c.BeginAnalysis(); err != nil && !errors.Is(err, pipeline.ErrOutOfOrder) {
					return state, err
				}
			case pipeline.PhaseAnnotated:
				return state, nil
			case pipeline.PhaseFailed:
				return state, &stageError{failure: *state.Failure}
			}
		}
	}
}
