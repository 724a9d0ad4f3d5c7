package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/sprintreport/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobRecord is the SQL row mirroring one job. The full job is kept as JSON;
// status and sprint columns exist for operator queries.
type JobRecord struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	SprintRef string    `gorm:"type:varchar(64);index"`
	Status    string    `gorm:"type:varchar(32);index"`
	Progress  int       `gorm:"not null;default:0"`
	Payload   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for JobRecord.
func (JobRecord) TableName() string {
	return "report_jobs"
}

// JobRepository persists job snapshots with GORM.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Save upserts the job snapshot.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job state to persist.
//
// Returns:
//   - error: non-nil if encoding or the upsert fails.
func (r *JobRepository) Save(ctx context.Context, job *domain.Job) error {
	rec, err := toRecord(job)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "progress", "payload", "updated_at"}),
	}).Create(rec).Error
}

// GetByID loads one job.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var rec JobRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return fromRecord(&rec)
}

// LoadAll returns every persisted job, oldest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - []*domain.Job: decoded jobs.
//   - error: non-nil if the query or decoding fails.
func (r *JobRepository) LoadAll(ctx context.Context) ([]*domain.Job, error) {
	var recs []JobRecord
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	jobs := make([]*domain.Job, 0, len(recs))
	for i := range recs {
		job, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// CountByStatus returns the number of jobs per status.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&JobRecord{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[domain.JobStatus]int64, len(rows))
	for _, row := range rows {
		out[domain.JobStatus(row.Status)] = row.Count
	}
	return out, nil
}

func toRecord(job *domain.Job) (*JobRecord, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return &JobRecord{
		ID:        job.ID,
		SprintRef: job.SprintRef,
		Status:    string(job.Status),
		Progress:  job.Progress,
		Payload:   string(payload),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}, nil
}

func fromRecord(rec *JobRecord) (*domain.Job, error) {
	var job domain.Job
	if err := json.Unmarshal([]byte(rec.Payload), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", rec.ID, err)
	}
	return &job, nil
}
