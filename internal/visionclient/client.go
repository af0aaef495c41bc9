package visionclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/googleapis/gax-go/v2/apierror"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/example/vision-pipeline/internal/annotator"
	"github.com/example/vision-pipeline/internal/logging"
)

// DefaultEndpoint is the public REST endpoint of the annotation service.
const DefaultEndpoint = "https://vision.googleapis.com"

// Client calls images:annotate through the REST image annotator. It performs exactly one
// request per Annotate call and never retries.
type Client struct {
	annotator *vision.ImageAnnotatorClient
	logger    *zap.Logger
}

var _ annotator.Client = (*Client)(nil)

type settings struct {
	endpoint      string
	timeout       time.Duration
	clientOptions []option.ClientOption
}

// Option configures a Client.
type Option func(*settings)

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(s *settings) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
	}
}

// WithTimeout bounds each Annotate call.
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.timeout = timeout
	}
}

// WithClientOptions passes extra options to the underlying image annotator.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) {
		s.clientOptions = append(s.clientOptions, opts...)
	}
}

// New returns a client authenticating with apiKey.
func New(ctx context.Context, apiKey string, logger *zap.Logger, opts ...Option) (*Client, error) {
	s := settings{endpoint: DefaultEndpoint}
	for _, opt := range opts {
		opt(&s)
	}

	clientOpts := []option.ClientOption{option.WithEndpoint(s.endpoint)}
	if apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
	}
	clientOpts = append(clientOpts, s.clientOptions...)

	ic, err := vision.NewImageAnnotatorRESTClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create image annotator: %w", err)
	}

	// replaces the generated defaults, which retry on 503/504
	var callOpts []gax.CallOption
	if s.timeout > 0 {
		callOpts = append(callOpts, gax.WithTimeout(s.timeout))
	}
	ic.CallOptions.BatchAnnotateImages = callOpts

	return &Client{annotator: ic, logger: logger.Named("visionclient")}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.annotator.Close()
}

// Annotate submits req and returns the response envelope. Only the envelope is checked:
// it must carry at least one response, and the first response must not report an error.
func (c *Client) Annotate(ctx context.Context, req annotator.Request) (*annotator.RawResponse, error) {
	features := make([]*visionpb.Feature, 0, len(req.Features))
	for _, f := range req.Features {
		features = append(features, &visionpb.Feature{Type: f.Type.Proto(), MaxResults: f.MaxResults})
	}

	batch, err := c.annotator.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Source: &visionpb.ImageSource{ImageUri: req.ImageURL}},
			Features: features,
		}},
	})
	if err != nil {
		return nil, c.fail(req, classify(err))
	}

	responses := batch.GetResponses()
	if len(responses) == 0 {
		return nil, c.fail(req, &annotator.AnnotationError{
			Status: http.StatusOK,
			Err:    errors.New("malformed response envelope: no responses"),
		})
	}
	if status := responses[0].GetError(); status.GetCode() != 0 {
		return nil, c.fail(req, &annotator.AnnotationError{
			Status: int(status.GetCode()),
			Body:   status.GetMessage(),
		})
	}
	return batch, nil
}

// classify maps a call error onto AnnotationError. Errors that are neither service
// errors nor transport failures happened while reading a 2xx body.
func classify(err error) *annotator.AnnotationError {
	if apiErr, ok := apierror.FromError(err); ok && apiErr.HTTPCode() > 0 {
		annErr := &annotator.AnnotationError{Status: apiErr.HTTPCode(), Body: apiErr.Error()}
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && gErr.Body != "" {
			annErr.Body = gErr.Body
		}
		return annErr
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &annotator.AnnotationError{Err: err}
	}
	return &annotator.AnnotationError{
		Status: http.StatusOK,
		Err:    fmt.Errorf("malformed response envelope: %w", err),
	}
}

func (c *Client) fail(req annotator.Request, annErr *annotator.AnnotationError) error {
	wrapped := logging.NewOperationError("visionclient.annotate", "", annErr)
	c.logger.Error("annotation call failed",
		zap.Error(wrapped),
		zap.Int("status", annErr.Status),
		zap.String("image_url", req.ImageURL),
	)
	return wrapped
}
