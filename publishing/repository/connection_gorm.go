package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/AzielCF/az-publish/publishing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConnectionGormRepository struct {
	db *gorm.DB
}

func NewConnectionGormRepository(db *gorm.DB) *ConnectionGormRepository {
	return &ConnectionGormRepository{db: db}
}

func (r *ConnectionGormRepository) Get(ctx context.Context, userID, provider string) (*domain.SocialConnection, error) {
	var m connectionModel
	err := r.db.WithContext(ctx).
		First(&m, "user_id = ? AND provider = ?", userID, strings.ToLower(provider)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConnectionNotFound
		}
		return nil, err
	}
	return fromConnectionModel(m), nil
}

func (r *ConnectionGormRepository) ListForUser(ctx context.Context, userID string) ([]domain.SocialConnection, error) {
	var models []connectionModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("provider ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SocialConnection, 0, len(models))
	for _, m := range models {
		out = append(out, *fromConnectionModel(m))
	}
	return out, nil
}

func (r *ConnectionGormRepository) Upsert(ctx context.Context, c *domain.SocialConnection) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m := connectionModel{
		UserID:            c.UserID,
		Provider:          strings.ToLower(c.Provider),
		ProviderAccountID: c.ProviderAccountID,
		Name:              c.Name,
		CreatedAt:         c.CreatedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"provider_account_id", "name"}),
	}).Create(&m).Error
}

func fromConnectionModel(m connectionModel) *domain.SocialConnection {
	return &domain.SocialConnection{
		UserID:            m.UserID,
		Provider:          m.Provider,
		ProviderAccountID: m.ProviderAccountID,
		Name:              m.Name,
		CreatedAt:         m.CreatedAt.UTC(),
	}
}
