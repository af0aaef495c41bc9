package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/vision-pipeline/internal/logging"
	"github.com/example/vision-pipeline/internal/pipeline"
	"github.com/example/vision-pipeline/internal/repository"
)

const (
	saveTimeout  = 5 * time.Second
	DefaultLimit = 20
	MaxLimit     = 100
)

// Repository defines the persistence operations needed by the history service.
type Repository interface {
	SaveRun(ctx context.Context, log *repository.RunLog) error
	ListBySession(ctx context.Context, session string, limit int) ([]*repository.RunLog, error)
	Summarize(ctx context.Context, session string) (*repository.Summary, error)
}

// Service records pipeline outcomes and serves them back per session.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService constructs a new history service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger.Named("history")}
}

// Attach returns a registry hook that records the outcomes of each new controller.
func (s *Service) Attach() pipeline.AttachFunc {
	return func(session string, c *pipeline.Controller) {
		states, _ := c.Subscribe()
		go s.record(session, states)
	}
}

func (s *Service) record(session string, states <-chan pipeline.State) {
	for state := range states {
		log := NewRunLog(session, state)
		if log == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		err := s.repo.SaveRun(ctx, log)
		cancel()
		if err != nil {
			wrapped := logging.NewOperationError("history.save_run", state.RunID, err)
			logging.WithOperation(s.logger, "history.save_run", state.RunID).
				Error("failed to persist run log", zap.Error(wrapped), zap.String("session", session))
		}
	}
}

// List returns the latest entries of session. limit is clamped to [1, MaxLimit].
func (s *Service) List(ctx context.Context, session string, limit int) ([]*repository.RunLog, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return s.repo.ListBySession(ctx, session, limit)
}

// SummaryReport extends the stored counts with derived rates.
type SummaryReport struct {
	repository.Summary
	AnnotationRate float64 `json:"annotation_rate"`
}

// Summary aggregates the history of session.
func (s *Service) Summary(ctx context.Context, session string) (*SummaryReport, error) {
	summary, err := s.repo.Summarize(ctx, session)
	if err != nil {
		return nil, err
	}

	report := &SummaryReport{Summary: *summary}
	if attempts := summary.Annotated + summary.AnalysisFailures; attempts > 0 {
		report.AnnotationRate = float64(summary.Annotated) / float64(attempts)
	}
	return report, nil
}

// NewRunLog maps a state to a persisted entry. Only Uploaded, Annotated and Failed states
// are recorded; nil is returned for the rest.
func NewRunLog(session string, state pipeline.State) *repository.RunLog {
	switch state.Phase {
	case pipeline.PhaseUploaded, pipeline.PhaseAnnotated, pipeline.PhaseFailed:
	default:
		return nil
	}

	log := &repository.RunLog{
		Session:    session,
		RunID:      state.RunID,
		Generation: state.Generation,
		Phase:      state.Phase.String(),
		CreatedAt:  state.UpdatedAt,
	}
	if state.Upload != nil {
		log.ImageURL = state.Upload.URL
	}
	if state.Failure != nil {
		log.Stage = string(state.Failure.Stage)
		log.Reason = state.Failure.Reason
	}
	if r := state.Result; r != nil {
		log.Labels = r.Labels
		log.Landmarks = r.Landmarks
		log.WebGuess = r.WebGuess
		log.HasText = r.FullText != nil
	}
	return log
}
