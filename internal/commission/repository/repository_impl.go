package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/commission/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, eventID uuid.UUID) ([]domain.Commission, error) {
	var items []domain.Commission
	err := db.WithContext(ctx).
		Where("is_active = ? AND (event_id = ? OR event_id IS NULL)", true, eventID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
