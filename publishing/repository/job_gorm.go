package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/AzielCF/az-publish/publishing/domain"
	"gorm.io/gorm"
)

type JobGormRepository struct {
	db *gorm.DB
}

func NewJobGormRepository(db *gorm.DB) *JobGormRepository {
	return &JobGormRepository{db: db}
}

func (r *JobGormRepository) Create(ctx context.Context, j *domain.PublishJob) error {
	if j.ID == "" {
		j.ID = domain.NewJobID()
	}
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.Status == "" {
		j.Status = domain.JobStatusQueued
	}

	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *JobGormRepository) Get(ctx context.Context, id string) (*domain.PublishJob, error) {
	var m jobModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return fromJobModel(m)
}

// Owner reads only the owning user of a job.
func (r *JobGormRepository) Owner(ctx context.Context, id string) (string, error) {
	var owners []string
	err := r.db.WithContext(ctx).Model(&jobModel{}).
		Where("id = ?", id).
		Limit(1).
		Pluck("user_id", &owners).Error
	if err != nil {
		return "", err
	}
	if len(owners) == 0 {
		return "", domain.ErrJobNotFound
	}
	return owners[0], nil
}

func (r *JobGormRepository) MarkRunning(ctx context.Context, id string, now time.Time) error {
	now = now.UTC()
	return r.transition(ctx, id, []domain.JobStatus{domain.JobStatusQueued}, map[string]any{
		"status":     string(domain.JobStatusRunning),
		"started_at": now,
		"updated_at": now,
	})
}

func (r *JobGormRepository) Finish(ctx context.Context, id string, status domain.JobStatus, results []domain.ProviderResult, errSummary *string, now time.Time) error {
	if !status.Terminal() {
		return domain.ErrInvalidTransition
	}
	if results == nil {
		results = []domain.ProviderResult{}
	}
	payload, err := json.Marshal(results)
	if err != nil {
		return err
	}
	now = now.UTC()
	return r.transition(ctx, id, []domain.JobStatus{domain.JobStatusRunning}, map[string]any{
		"status":      string(status),
		"result":      string(payload),
		"error":       errSummary,
		"finished_at": now,
		"updated_at":  now,
	})
}

// Fail moves a non-terminal job straight to failed, e.g. after a panic or a
// storage error that prevented normal completion.
func (r *JobGormRepository) Fail(ctx context.Context, id, reason string, now time.Time) error {
	now = now.UTC()
	return r.transition(ctx, id, []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusRunning}, map[string]any{
		"status":      string(domain.JobStatusFailed),
		"error":       reason,
		"finished_at": now,
		"updated_at":  now,
	})
}

func (r *JobGormRepository) transition(ctx context.Context, id string, from []domain.JobStatus, updates map[string]any) error {
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	res := r.db.WithContext(ctx).Model(&jobModel{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&jobModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrJobNotFound
		}
		return domain.ErrInvalidTransition
	}
	return nil
}
