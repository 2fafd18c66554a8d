package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	taxdomain "github.com/smallbiznis/eventreg/internal/tax/domain"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() taxdomain.Repository {
	return &repository{}
}

func (r *repository) GetActiveTaxDefinition(ctx context.Context, db *gorm.DB, organizerID uuid.UUID) (*taxdomain.TaxDefinition, error) {
	var def taxdomain.TaxDefinition
	err := db.WithContext(ctx).
		Where("organizer_id = ? AND is_active = ?", organizerID, true).
		Order("created_at ASC").
		Take(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (r *repository) Create(ctx context.Context, db *gorm.DB, def *taxdomain.TaxDefinition) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tax_definitions (
			id, organizer_id, name, code, tax_mode, rate, description, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID,
		def.OrganizerID,
		def.Name,
		def.Code,
		def.TaxMode,
		def.Rate,
		def.Description,
		def.IsActive,
		def.CreatedAt,
		def.UpdatedAt,
	).Error
}
