package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adlibra/adlibra-backend/pkg/db/models"
	"github.com/adlibra/adlibra-backend/pkg/enums"
)

const defaultListLimit = 20

// Repository persists scrape job state.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a job repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new pending job and leaves job.ID set.
func (r *Repository) Create(ctx context.Context, job *models.ScrapeJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = enums.JobStatusPending
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// FindByID retrieves a job; nil when absent.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ScrapeJob, error) {
	var job models.ScrapeJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns the most recent jobs, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.ScrapeJob, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var jobs []models.ScrapeJob
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// MarkProcessing records the start of a delivery attempt.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID, attempt int) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.ScrapeJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.JobStatusProcessing,
			"attempts":   attempt,
			"started_at": now,
		}).Error
}

// UpdateProgress advances the progress percentage. Progress never moves
// backwards, so re-deliveries and coarse scroll estimates cannot make the
// number regress.
func (r *Repository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return r.db.WithContext(ctx).
		Model(&models.ScrapeJob{}).
		Where("id = ? AND progress < ?", id, progress).
		Update("progress", progress).Error
}

// Counts summarizes the persistence outcome of a finished job.
type Counts struct {
	Total   int
	New     int
	Updated int
	Failed  int
}

// UpdateCounts persists the running persistence counters mid-run, so a job
// that later fails still reports how far it got.
func (r *Repository) UpdateCounts(ctx context.Context, id uuid.UUID, counts Counts) error {
	return r.db.WithContext(ctx).
		Model(&models.ScrapeJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_ads_saved": counts.Total,
			"new_ads":         counts.New,
			"updated_ads":     counts.Updated,
			"failed_ads":      counts.Failed,
		}).Error
}

// MarkCompleted records a successful run with its final counts.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, counts Counts) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.ScrapeJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          enums.JobStatusCompleted,
			"progress":        100,
			"total_ads_saved": counts.Total,
			"new_ads":         counts.New,
			"updated_ads":     counts.Updated,
			"failed_ads":      counts.Failed,
			"error":           nil,
			"completed_at":    now,
		}).Error
}

// MarkFailed records a terminal failure with its cause.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.ScrapeJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       enums.JobStatusFailed,
			"error":        cause,
			"completed_at": now,
		}).Error
}
