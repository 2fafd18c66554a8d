package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	ListConfigs(ctx context.Context, db *gorm.DB, organizerID uuid.UUID) ([]ProviderConfig, error)
	FindConfig(ctx context.Context, db *gorm.DB, organizerID uuid.UUID, provider string) (*ProviderConfig, error)
	ListActiveByProvider(ctx context.Context, db *gorm.DB, provider string) ([]ProviderConfig, error)
	UpsertConfig(ctx context.Context, db *gorm.DB, config *ProviderConfig) error
	UpdateStatus(ctx context.Context, db *gorm.DB, organizerID uuid.UUID, provider string, isActive bool, updatedAt time.Time) (bool, error)
}

// ProviderCatalog reports which providers have an adapter.
type ProviderCatalog interface {
	ProviderExists(provider string) bool
}

type Service interface {
	ListConfigs(ctx context.Context, organizerID uuid.UUID) ([]ConfigSummary, error)
	UpsertConfig(ctx context.Context, organizerID uuid.UUID, req UpsertRequest) (*ConfigSummary, error)
	SetActive(ctx context.Context, organizerID uuid.UUID, provider string, isActive bool) (*ConfigSummary, error)
	// ActiveConfig returns the decrypted active config of one organizer.
	ActiveConfig(ctx context.Context, organizerID uuid.UUID, provider string) (*DecryptedConfig, error)
	// ActiveConfigs returns every decryptable active config for a provider.
	ActiveConfigs(ctx context.Context, provider string) ([]DecryptedConfig, error)
}

type ConfigSummary struct {
	Provider   string `json:"provider"`
	IsActive   bool   `json:"is_active"`
	Configured bool   `json:"configured"`
}

type UpsertRequest struct {
	Provider string         `json:"provider"`
	Config   map[string]any `json:"config"`
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidProvider      = errors.New("invalid_provider")
	ErrInvalidConfig        = errors.New("invalid_config")
	ErrNotFound             = errors.New("not_found")
	ErrEncryptionKeyMissing = errors.New("encryption_key_missing")
)
