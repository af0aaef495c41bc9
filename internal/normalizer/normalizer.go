// Package normalizer turns raw annotation envelopes into display-ready results.
//
// Normalize never fails. A feature that is absent or empty comes back as missing (nil) or
// as an empty list.
package normalizer

import (
	"cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/example/vision-pipeline/internal/annotator"
)

// Result is the display-ready view of one annotated image.
type Result struct {
	Labels    []string `json:"labels"`
	WebGuess  *string  `json:"webGuess"`
	FullText  *string  `json:"fullText"`
	Landmarks []string `json:"landmarks"`
}

// Normalize extracts labels, the best web guess, full text, and landmarks from the first
// response of raw.
func Normalize(raw *annotator.RawResponse) Result {
	result := Result{Labels: []string{}, Landmarks: []string{}}
	responses := raw.GetResponses()
	if len(responses) == 0 {
		return result
	}

	first := responses[0]
	result.Labels = descriptions(first.GetLabelAnnotations())
	result.Landmarks = descriptions(first.GetLandmarkAnnotations())
	result.WebGuess = bestGuess(first.GetWebDetection())
	result.FullText = optional(first.GetFullTextAnnotation().GetText())
	return result
}

// descriptions collects the description of every entity annotation, in source order.
// Entries without a description are skipped.
func descriptions(annotations []*visionpb.EntityAnnotation) []string {
	out := []string{}
	for _, a := range annotations {
		if desc := a.GetDescription(); desc != "" {
			out = append(out, desc)
		}
	}
	return out
}

func bestGuess(web *visionpb.WebDetection) *string {
	guesses := web.GetBestGuessLabels()
	if len(guesses) == 0 {
		return nil
	}
	return optional(guesses[0].GetLabel())
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
