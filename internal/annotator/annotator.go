package annotator

import (
	"context"
	"fmt"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
)

// FeatureKind names one detection the annotation service can run on an image.
type FeatureKind string

const (
	FeatureLabel           FeatureKind = "LABEL_DETECTION"
	FeatureLandmark        FeatureKind = "LANDMARK_DETECTION"
	FeatureFace            FeatureKind = "FACE_DETECTION"
	FeatureLogo            FeatureKind = "LOGO_DETECTION"
	FeatureText            FeatureKind = "TEXT_DETECTION"
	FeatureDocumentText    FeatureKind = "DOCUMENT_TEXT_DETECTION"
	FeatureSafeSearch      FeatureKind = "SAFE_SEARCH_DETECTION"
	FeatureImageProperties FeatureKind = "IMAGE_PROPERTIES"
	FeatureCropHints       FeatureKind = "CROP_HINTS"
	FeatureWebDetection    FeatureKind = "WEB_DETECTION"
)

// Valid reports whether k is one of the known feature kinds.
func (k FeatureKind) Valid() bool {
	switch k {
	case FeatureLabel, FeatureLandmark, FeatureFace, FeatureLogo, FeatureText,
		FeatureDocumentText, FeatureSafeSearch, FeatureImageProperties,
		FeatureCropHints, FeatureWebDetection:
		return true
	}
	return false
}

// Proto returns the wire enum for k, or TYPE_UNSPECIFIED when k is unknown.
func (k FeatureKind) Proto() visionpb.Feature_Type {
	return visionpb.Feature_Type(visionpb.Feature_Type_value[string(k)])
}

// Feature pairs a detection with its result cap.
type Feature struct {
	Type       FeatureKind `json:"type"`
	MaxResults int32       `json:"maxResults"`
}

// DefaultFeatures is the fixed feature set requested for every analysis.
var DefaultFeatures = []Feature{
	{Type: FeatureLabel, MaxResults: 10},
	{Type: FeatureLandmark, MaxResults: 5},
	{Type: FeatureFace, MaxResults: 5},
	{Type: FeatureLogo, MaxResults: 5},
	{Type: FeatureText, MaxResults: 5},
	{Type: FeatureDocumentText, MaxResults: 5},
	{Type: FeatureSafeSearch, MaxResults: 5},
	{Type: FeatureImageProperties, MaxResults: 5},
	{Type: FeatureCropHints, MaxResults: 5},
	{Type: FeatureWebDetection, MaxResults: 5},
}

// Request describes a single image to annotate.
type Request struct {
	ImageURL string
	Features []Feature
}

// NewRequest builds a request for imageURL using a copy of DefaultFeatures.
func NewRequest(imageURL string) Request {
	features := make([]Feature, len(DefaultFeatures))
	copy(features, DefaultFeatures)
	return Request{ImageURL: imageURL, Features: features}
}

// RawResponse is the annotation envelope as received. Feature fields are left to the
// normalizer.
type RawResponse = visionpb.BatchAnnotateImagesResponse

// AnnotationError reports a transport or service level failure.
type AnnotationError struct {
	Status int
	Body   string
	Err    error
}

func (e *AnnotationError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("annotation failed with status %d: %v", e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("annotation failed: %v", e.Err)
	default:
		return fmt.Sprintf("annotation failed with status %d: %s", e.Status, e.Body)
	}
}

func (e *AnnotationError) Unwrap() error { return e.Err }

// Client exposes the annotation call used by the pipeline.
type Client interface {
	Annotate(ctx context.Context, req Request) (*RawResponse, error)
}
