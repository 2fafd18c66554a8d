package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/paymentprovider/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const configColumns = `id, organizer_id, provider, config, is_active, created_at, updated_at`

func (r *repo) ListConfigs(ctx context.Context, db *gorm.DB, organizerID uuid.UUID) ([]domain.ProviderConfig, error) {
	var configs []domain.ProviderConfig
	err := db.WithContext(ctx).Raw(
		`SELECT `+configColumns+`
		 FROM payment_provider_configs
		 WHERE organizer_id = ?
		 ORDER BY created_at DESC`,
		organizerID,
	).Scan(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *repo) FindConfig(ctx context.Context, db *gorm.DB, organizerID uuid.UUID, provider string) (*domain.ProviderConfig, error) {
	var item domain.ProviderConfig
	err := db.WithContext(ctx).Raw(
		`SELECT `+configColumns+`
		 FROM payment_provider_configs
		 WHERE organizer_id = ? AND provider = ?
		 LIMIT 1`,
		organizerID,
		provider,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListActiveByProvider(ctx context.Context, db *gorm.DB, provider string) ([]domain.ProviderConfig, error) {
	var configs []domain.ProviderConfig
	err := db.WithContext(ctx).Raw(
		`SELECT `+configColumns+`
		 FROM payment_provider_configs
		 WHERE provider = ? AND is_active = ?
		 ORDER BY created_at ASC`,
		provider,
		true,
	).Scan(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *repo) UpsertConfig(ctx context.Context, db *gorm.DB, config *domain.ProviderConfig) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_provider_configs (
			id, organizer_id, provider, config, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (organizer_id, provider)
		DO UPDATE SET config = EXCLUDED.config,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		config.ID,
		config.OrganizerID,
		config.Provider,
		config.Config,
		config.IsActive,
		config.CreatedAt,
		config.UpdatedAt,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, organizerID uuid.UUID, provider string, isActive bool, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_provider_configs
		 SET is_active = ?, updated_at = ?
		 WHERE organizer_id = ? AND provider = ?`,
		isActive,
		updatedAt,
		organizerID,
		provider,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
