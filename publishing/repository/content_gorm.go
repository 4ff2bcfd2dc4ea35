package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// claimPredicate is the selection predicate of the claim protocol. The
// conditional UPDATE that embeds it is the only mutual exclusion primitive.
const claimPredicate = "status = ? AND published_at IS NULL AND last_job_id IS NULL AND scheduled_for IS NOT NULL AND scheduled_for <= ?"

type ContentGormRepository struct {
	db *gorm.DB
}

func NewContentGormRepository(db *gorm.DB) *ContentGormRepository {
	return &ContentGormRepository{db: db}
}

func (r *ContentGormRepository) Create(ctx context.Context, c *domain.ScheduledContent) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = domain.ContentStatusDraft
	}

	m := toContentModel(c)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *ContentGormRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledContent, error) {
	var m contentModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrContentNotFound
		}
		return nil, err
	}
	return fromContentModel(m), nil
}

func (r *ContentGormRepository) ListClaimable(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledContent, error) {
	if limit <= 0 {
		limit = 25
	}
	var models []contentModel
	err := r.db.WithContext(ctx).
		Where(claimPredicate, string(domain.ContentStatusScheduled), now.UTC()).
		Order("scheduled_for ASC, id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScheduledContent, 0, len(models))
	for _, m := range models {
		out = append(out, *fromContentModel(m))
	}
	return out, nil
}

func (r *ContentGormRepository) Claim(ctx context.Context, id, jobID string, now time.Time) error {
	now = now.UTC()
	res := r.db.WithContext(ctx).Model(&contentModel{}).
		Where("id = ?", id).
		Where(claimPredicate, string(domain.ContentStatusScheduled), now).
		Updates(map[string]any{
			"last_job_id":     jobID,
			"last_job_status": string(domain.JobStatusQueued),
			"last_attempt_at": now,
			"last_error":      nil,
			"updated_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return domain.ErrClaimConflict
	}
	return nil
}

func (r *ContentGormRepository) ClaimNow(ctx context.Context, userID, id, jobID string, now time.Time) (*domain.ScheduledContent, error) {
	now = now.UTC()
	res := r.db.WithContext(ctx).Model(&contentModel{}).
		Where("id = ? AND user_id = ?", id, userID).
		Where("status = ? AND published_at IS NULL AND last_job_id IS NULL", string(domain.ContentStatusScheduled)).
		Updates(map[string]any{
			"scheduled_for":   now,
			"last_job_id":     jobID,
			"last_job_status": string(domain.JobStatusQueued),
			"last_attempt_at": now,
			"last_error":      nil,
			"updated_at":      now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		return r.GetByID(ctx, id)
	}

	// Nothing matched: explain why.
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case current.UserID != userID:
		return nil, domain.ErrContentNotFound
	case current.PublishedAt != nil:
		return nil, domain.ErrAlreadyPublished
	case current.LastJobID != nil && strings.TrimSpace(*current.LastJobID) != "":
		return nil, domain.ErrAlreadyQueued
	case current.Status != domain.ContentStatusScheduled:
		return nil, domain.ErrNotScheduled
	}
	return nil, domain.ErrClaimConflict
}

func (r *ContentGormRepository) ReleaseClaim(ctx context.Context, id, jobID string) error {
	return r.db.WithContext(ctx).Model(&contentModel{}).
		Where("id = ? AND last_job_id = ? AND published_at IS NULL", id, jobID).
		Updates(map[string]any{
			"last_job_id":     nil,
			"last_job_status": nil,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *ContentGormRepository) MarkInvalid(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	now = now.UTC()
	res := r.db.WithContext(ctx).Model(&contentModel{}).
		Where("id = ?", id).
		Where(claimPredicate, string(domain.ContentStatusScheduled), now).
		Updates(map[string]any{
			"status":          string(domain.ContentStatusFailed),
			"last_job_status": string(domain.JobStatusFailed),
			"last_error":      reason,
			"last_attempt_at": now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ContentGormRepository) RecordJobOutcome(ctx context.Context, id, jobID string, status domain.JobStatus, errMsg *string, publishedAt *time.Time) error {
	updates := map[string]any{
		"last_job_status": string(status),
		"last_error":      errMsg,
		"updated_at":      time.Now().UTC(),
	}
	if publishedAt != nil {
		updates["published_at"] = publishedAt.UTC()
		updates["status"] = string(domain.ContentStatusPublished)
	}

	// last_job_id is matched, never written: the slot stays consumed.
	res := r.db.WithContext(ctx).Model(&contentModel{}).
		Where("id = ? AND last_job_id = ?", id, jobID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrContentNotFound
	}
	return nil
}

func (r *ContentGormRepository) Requeue(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).Model(&contentModel{}).
		Where("id = ? AND user_id = ? AND published_at IS NULL AND last_job_id IS NOT NULL AND last_job_status = ?",
			id, userID, string(domain.JobStatusFailed)).
		Updates(map[string]any{
			"status":          string(domain.ContentStatusScheduled),
			"last_job_id":     nil,
			"last_job_status": nil,
			"last_error":      nil,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.UserID != userID {
			return domain.ErrContentNotFound
		}
		return domain.ErrNotRequeueable
	}
	return nil
}
