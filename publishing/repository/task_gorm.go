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

type TaskGormRepository struct {
	db *gorm.DB
}

func NewTaskGormRepository(db *gorm.DB) *TaskGormRepository {
	return &TaskGormRepository{db: db}
}

func (r *TaskGormRepository) Create(ctx context.Context, t *domain.AsyncExternalTask) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = domain.TaskStatusPending
	}

	m := taskModel{
		ID:             t.ID,
		UserID:         t.UserID,
		Kind:           t.Kind,
		ExternalTaskID: t.ExternalTaskID,
		Status:         string(t.Status),
		ResultURL:      t.ResultURL,
		ArtifactRef:    t.ArtifactRef,
		FailureReason:  t.FailureReason,
		Attempts:       t.Attempts,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		CompletedAt:    utcPtr(t.CompletedAt),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "duplicate key value") {
			return domain.ErrTaskAlreadyTracked
		}
		return err
	}
	return nil
}

func (r *TaskGormRepository) Get(ctx context.Context, id string) (*domain.AsyncExternalTask, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *TaskGormRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.AsyncExternalTask, error) {
	return r.first(ctx, "external_task_id = ?", externalID)
}

func (r *TaskGormRepository) first(ctx context.Context, query string, arg any) (*domain.AsyncExternalTask, error) {
	var m taskModel
	if err := r.db.WithContext(ctx).First(&m, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	return fromTaskModel(m), nil
}

func (r *TaskGormRepository) ListPending(ctx context.Context, limit int) ([]domain.AsyncExternalTask, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []taskModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.TaskStatusPending)).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.AsyncExternalTask, 0, len(models))
	for _, m := range models {
		out = append(out, *fromTaskModel(m))
	}
	return out, nil
}

func (r *TaskGormRepository) IncrementAttempts(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&taskModel{}).
		Where("id = ? AND status = ?", id, string(domain.TaskStatusPending)).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}

// ApplyTerminal is the first-terminal-write-wins guard: the row only changes
// while it is still pending.
func (r *TaskGormRepository) ApplyTerminal(ctx context.Context, id string, outcome domain.TaskOutcome, now time.Time) (bool, error) {
	if !outcome.Status.Terminal() {
		return false, nil
	}
	now = now.UTC()
	updates := map[string]any{
		"status":       string(outcome.Status),
		"completed_at": now,
		"updated_at":   now,
	}
	if outcome.ResultURL != "" {
		updates["result_url"] = outcome.ResultURL
	}
	if outcome.Reason != "" {
		updates["failure_reason"] = outcome.Reason
	}

	res := r.db.WithContext(ctx).Model(&taskModel{}).
		Where("id = ? AND status = ?", id, string(domain.TaskStatusPending)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *TaskGormRepository) SetArtifact(ctx context.Context, id, ref string) error {
	return r.db.WithContext(ctx).Model(&taskModel{}).
		Where("id = ? AND artifact_ref IS NULL", id).
		Updates(map[string]any{
			"artifact_ref": ref,
			"updated_at":   time.Now().UTC(),
		}).Error
}
