package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/vision-pipeline/internal/config"
	"github.com/example/vision-pipeline/internal/logging"
)

type commandContext struct {
	logLevel *string
	cfg      *config.Config
	logger   *zap.Logger
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) ensureLogger() (*zap.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	level := *c.logLevel
	if level == "" {
		cfg, err := c.ensureConfig()
		if err != nil {
			return nil, err
		}
		level = cfg.LogLevel
	}
	logger, err := logging.NewLogger(level)
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}

func newRootCommand() *cobra.Command {
	var logLevelFlag string
	ctx := &commandContext{logLevel: &logLevelFlag}

	rootCmd := &cobra.Command{
		Use:           "visionctl",
		Short:         "Upload and annotate images from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if ctx.logger != nil {
				_ = ctx.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (defaults to LOG_LEVEL)")

	rootCmd.AddCommand(newAnnotateCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))

	return rootCmd
}
