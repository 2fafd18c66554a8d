package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/voucher/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, organizerID uuid.UUID, code string) (*domain.Voucher, error) {
	var voucher domain.Voucher
	err := db.WithContext(ctx).
		Where("organizer_id = ? AND code = ?", organizerID, code).
		Take(&voucher).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Voucher, error) {
	var voucher domain.Voucher
	err := db.WithContext(ctx).Where("id = ?", id).Take(&voucher).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *repo) IncrementUses(ctx context.Context, db *gorm.DB, id uuid.UUID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE vouchers
		 SET current_uses = current_uses + 1
		 WHERE id = ? AND (max_uses IS NULL OR current_uses < max_uses)`,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
