package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/vision-pipeline/internal/annotator"
	"github.com/example/vision-pipeline/internal/config"
	"github.com/example/vision-pipeline/internal/pipeline"
	"github.com/example/vision-pipeline/internal/storage"
	"github.com/example/vision-pipeline/internal/visionclient"
)

// Container holds the collaborators shared by every pipeline controller.
type Container struct {
	Uploader  storage.Uploader
	Annotator annotator.Client
	Spool     *storage.Spool

	vision *visionclient.Client
}

// New builds the uploader, spool and annotation client described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	uploader, err := newUploader(cfg)
	if err != nil {
		return nil, err
	}

	spool, err := storage.NewSpool(cfg.SpoolDir)
	if err != nil {
		return nil, err
	}

	client, err := visionclient.New(ctx, cfg.VisionAPIKey, logger,
		visionclient.WithEndpoint(cfg.VisionEndpoint),
		visionclient.WithTimeout(cfg.VisionTimeout),
	)
	if err != nil {
		return nil, err
	}

	return &Container{
		Uploader:  spool.Wrap(uploader),
		Annotator: client,
		Spool:     spool,
		vision:    client,
	}, nil
}

// Close releases the annotation client.
func (c *Container) Close() error {
	return c.vision.Close()
}

// Factory returns a pipeline factory using the container's collaborators.
func (c *Container) Factory(logger *zap.Logger, opts ...pipeline.Option) pipeline.Factory {
	return func(session string) *pipeline.Controller {
		return pipeline.NewController(c.Uploader, c.Annotator, logger.With(zap.String("session", session)), opts...)
	}
}

func newUploader(cfg *config.Config) (storage.Uploader, error) {
	switch cfg.StorageBackend {
	case config.StorageFilesystem:
		return storage.NewFilesystemUploader(cfg.StorageDir, cfg.PublicBaseURL)
	case config.StorageHTTP:
		return storage.NewHTTPUploader(cfg.StorageHTTPURL, cfg.PublicBaseURL, nil), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
