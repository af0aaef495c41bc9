package visionclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/example/vision-pipeline/internal/annotator"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(context.Background(), "secret", zap.NewNop(), WithEndpoint(server.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func requireAnnotationError(t *testing.T, err error) *annotator.AnnotationError {
	t.Helper()
	var annErr *annotator.AnnotationError
	if !errors.As(err, &annErr) {
		t.Fatalf("expected AnnotationError, got %T (%v)", err, err)
	}
	return annErr
}

func TestAnnotateSendsRequestBodyAndKey(t *testing.T) {
	var (
		gotPath string
		gotKey  string
		gotBody visionpb.BatchAnnotateImagesRequest
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		if gotKey == "" {
			gotKey = r.Header.Get("X-Goog-Api-Key")
		}
		data, _ := io.ReadAll(r.Body)
		if err := protojson.Unmarshal(data, &gotBody); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		respond(`{"responses":[{"labelAnnotations":[{"description":"Cat"}]}]}`)(w, r)
	})

	raw, err := client.Annotate(context.Background(), annotator.NewRequest("https://store/x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/v1/images:annotate" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "secret" {
		t.Fatalf("expected api key on the request, got %q", gotKey)
	}
	if len(gotBody.GetRequests()) != 1 {
		t.Fatalf("expected one request, got %d", len(gotBody.GetRequests()))
	}
	sent := gotBody.GetRequests()[0]
	if sent.GetImage().GetSource().GetImageUri() != "https://store/x" {
		t.Fatalf("unexpected image uri %q", sent.GetImage().GetSource().GetImageUri())
	}
	if len(sent.GetFeatures()) != len(annotator.DefaultFeatures) {
		t.Fatalf("expected %d features, got %d", len(annotator.DefaultFeatures), len(sent.GetFeatures()))
	}
	first, last := sent.GetFeatures()[0], sent.GetFeatures()[len(sent.GetFeatures())-1]
	if first.GetType() != visionpb.Feature_LABEL_DETECTION || first.GetMaxResults() != 10 {
		t.Fatalf("unexpected first feature %v", first)
	}
	if last.GetType() != visionpb.Feature_WEB_DETECTION || last.GetMaxResults() != 5 {
		t.Fatalf("unexpected last feature %v", last)
	}
	if got := raw.GetResponses()[0].GetLabelAnnotations()[0].GetDescription(); got != "Cat" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestAnnotateReturnsAnnotationErrorOnStatus(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"backend"}}`))
	})

	_, err := client.Annotate(context.Background(), annotator.NewRequest("https://store/x"))

	annErr := requireAnnotationError(t, err)
	if annErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", annErr.Status)
	}
	if annErr.Body != `{"error":{"code":503,"message":"backend"}}` {
		t.Fatalf("unexpected body %q", annErr.Body)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected exactly one call, got %d", n)
	}
}

func TestAnnotateRejectsMalformedEnvelope(t *testing.T) {
	for name, body := range map[string]string{
		"no responses":   `{}`,
		"null body":      `null`,
		"empty list":     `{"responses":[]}`,
		"wrong type":     `{"responses":"not-a-list"}`,
		"truncated json": `{"responses":[`,
	} {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, respond(body))

			raw, err := client.Annotate(context.Background(), annotator.NewRequest("https://store/x"))
			if raw != nil {
				t.Fatalf("expected no response, got %v", raw)
			}
			annErr := requireAnnotationError(t, err)
			if annErr.Status != http.StatusOK || annErr.Err == nil {
				t.Fatalf("unexpected annotation error %+v", annErr)
			}
		})
	}
}

func TestAnnotateSurfacesPerImageError(t *testing.T) {
	client := newTestClient(t, respond(`{"responses":[{"error":{"code":7,"message":"We can not access the URL currently."}}]}`))

	_, err := client.Annotate(context.Background(), annotator.NewRequest("https://store/x"))

	annErr := requireAnnotationError(t, err)
	if annErr.Status != 7 || annErr.Body != "We can not access the URL currently." {
		t.Fatalf("unexpected annotation error %+v", annErr)
	}
}

func TestAnnotateLeavesFeatureFieldsToCaller(t *testing.T) {
	client := newTestClient(t, respond(`{"responses":[{"webDetection":{}}]}`))

	raw, err := client.Annotate(context.Background(), annotator.NewRequest("https://store/x"))
	if err != nil {
		t.Fatalf("feature contents must not be validated here: %v", err)
	}
	if raw.GetResponses()[0].GetWebDetection() == nil {
		t.Fatalf("expected web detection to be passed through")
	}
}
