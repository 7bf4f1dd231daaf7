package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"survey-insights-go/internal/types"
)

// JobRow is the persisted form of a batch job. One row per (run, chunk).
type JobRow struct {
	RunID      string           `gorm:"primaryKey"`
	ChunkIndex int              `gorm:"primaryKey;autoIncrement:false"`
	JobID      string           `gorm:"index"`
	State      string           `gorm:"not null"`
	Files      []string         `gorm:"serializer:json;type:text"`
	Items      []types.WorkItem `gorm:"serializer:json;type:text"`
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (JobRow) TableName() string {
	return "jobs"
}

func newJobRow(j types.Job) JobRow {
	return JobRow{
		RunID:      j.RunID,
		ChunkIndex: j.ChunkIndex,
		JobID:      j.JobID,
		State:      string(j.State),
		Files:      j.Files,
		Items:      j.Items,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
}

func (r JobRow) Job() types.Job {
	return types.Job{
		RunID:      r.RunID,
		ChunkIndex: r.ChunkIndex,
		JobID:      r.JobID,
		State:      types.JobState(r.State),
		Files:      r.Files,
		Items:      r.Items,
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// RunSummary describes one run as seen from its persisted jobs.
type RunSummary struct {
	RunID    string `json:"run_id"`
	Jobs     int    `json:"jobs"`
	Terminal int    `json:"terminal"`
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SaveJob inserts the job or overwrites the mutable columns of an existing row.
func (s *Store) SaveJob(ctx context.Context, job types.Job) error {
	row := newJobRow(job)
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "chunk_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"job_id", "state", "files", "items", "error", "updated_at"}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("save job %s/%d: %w", job.RunID, job.ChunkIndex, result.Error)
	}
	return nil
}

// ListJobs returns the jobs of a run ordered by chunk index.
func (s *Store) ListJobs(ctx context.Context, runID string) ([]types.Job, error) {
	var rows []JobRow
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("chunk_index").Find(&rows).Error; err != nil {
		return nil, err
	}
	jobs := make([]types.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.Job())
	}
	return jobs, nil
}

// ListRuns summarizes every run that has at least one persisted job.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	var rows []JobRow
	if err := s.db.WithContext(ctx).Select("run_id", "state").Order("run_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	var out []RunSummary
	for _, r := range rows {
		if len(out) == 0 || out[len(out)-1].RunID != r.RunID {
			out = append(out, RunSummary{RunID: r.RunID})
		}
		cur := &out[len(out)-1]
		cur.Jobs++
		if types.JobState(r.State).Terminal() {
			cur.Terminal++
		}
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
