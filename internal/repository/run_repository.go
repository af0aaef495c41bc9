package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// RunLog is one persisted pipeline transition.
type RunLog struct {
	ID         uint      `gorm:"primaryKey"`
	Session    string    `gorm:"column:session;size:128;index:idx_run_logs_session_created"`
	RunID      string    `gorm:"column:run_id;size:64;index"`
	Generation uint64    `gorm:"column:generation"`
	Phase      string    `gorm:"column:phase;size:16"`
	Stage      string    `gorm:"column:stage;size:16"`
	Reason     string    `gorm:"column:reason;type:text"`
	ImageURL   string    `gorm:"column:image_url;type:text"`
	Labels     []string  `gorm:"column:labels;serializer:json"`
	Landmarks  []string  `gorm:"column:landmarks;serializer:json"`
	WebGuess   *string   `gorm:"column:web_guess;type:text"`
	HasText    bool      `gorm:"column:has_text"`
	CreatedAt  time.Time `gorm:"column:created_at;index:idx_run_logs_session_created"`
}

// TableName overrides the default table name.
func (RunLog) TableName() string {
	return "run_logs"
}

// Summary aggregates the run history of a session.
type Summary struct {
	Total            int64 `json:"total"`
	Uploaded         int64 `json:"uploaded"`
	Annotated        int64 `json:"annotated"`
	UploadFailures   int64 `json:"upload_failures"`
	AnalysisFailures int64 `json:"analysis_failures"`
}

type phaseCount struct {
	Phase string
	Stage string
	Count int64
}

// RunRepository provides persistence APIs for run logs.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new repository instance.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// AutoMigrate ensures the schema is available.
func (r *RunRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&RunLog{})
}

// SaveRun persists a run log entry.
func (r *RunRepository) SaveRun(ctx context.Context, log *RunLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// ListBySession returns the newest entries of session first.
func (r *RunRepository) ListBySession(ctx context.Context, session string, limit int) ([]*RunLog, error) {
	var logs []*RunLog
	err := r.db.WithContext(ctx).
		Where("session = ?", session).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// Summarize counts the entries of session by outcome.
func (r *RunRepository) Summarize(ctx context.Context, session string) (*Summary, error) {
	var rows []phaseCount
	err := r.db.WithContext(ctx).
		Model(&RunLog{}).
		Select("phase, stage, COUNT(*) AS count").
		Where("session = ?", session).
		Group("phase, stage").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return summarize(rows), nil
}

func summarize(rows []phaseCount) *Summary {
	s := &Summary{}
	for _, row := range rows {
		s.Total += row.Count
		switch row.Phase {
		case "uploaded":
			s.Uploaded += row.Count
		case "annotated":
			s.Annotated += row.Count
		case "failed":
			if row.Stage == "upload" {
				s.UploadFailures += row.Count
			} else {
				s.AnalysisFailures += row.Count
			}
		}
	}
	return s
}
