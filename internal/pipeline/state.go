package pipeline

import (
	"fmt"
	"time"

	"github.com/example/vision-pipeline/internal/normalizer"
	"github.com/example/vision-pipeline/internal/storage"
)

// Phase is the coarse position of a pipeline run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUploading
	PhaseUploaded
	PhaseAnalyzing
	PhaseAnnotated
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:      "idle",
	PhaseUploading: "uploading",
	PhaseUploaded:  "uploaded",
	PhaseAnalyzing: "analyzing",
	PhaseAnnotated: "annotated",
	PhaseFailed:    "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText renders the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Stage identifies the part of the pipeline that failed.
type Stage string

const (
	StageUpload   Stage = "upload"
	StageAnalysis Stage = "analysis"
)

// Failure records which stage failed and why.
type Failure struct {
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
}

// State is a snapshot of a controller. Upload is set for Uploaded, Analyzing and Annotated;
// Result only for Annotated; Failure only for Failed.
type State struct {
	Phase      Phase                 `json:"phase"`
	RunID      string                `json:"runId,omitempty"`
	Generation uint64                `json:"generation"`
	Upload     *storage.UploadResult `json:"upload,omitempty"`
	Result     *normalizer.Result    `json:"result,omitempty"`
	Failure    *Failure              `json:"failure,omitempty"`
	UpdatedAt  time.Time             `json:"updatedAt"`
}

// Terminal reports whether no operation is in flight for this state.
func (s State) Terminal() bool {
	switch s.Phase {
	case PhaseUploading, PhaseAnalyzing:
		return false
	}
	return true
}

// CanAnalyze reports whether BeginAnalysis is allowed from s.
func (s State) CanAnalyze() bool {
	return (s.Phase == PhaseUploaded || s.Phase == PhaseAnnotated) && s.Upload != nil
}
