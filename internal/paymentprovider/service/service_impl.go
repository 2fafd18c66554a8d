package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	auditmasking "github.com/smallbiznis/eventreg/internal/audit/masking"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/paymentprovider/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Cfg      config.Config
	Catalog  domain.ProviderCatalog
	Clock    clock.Clock         `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	genID    *snowflake.Node
	cipher   *domain.Cipher
	catalog  domain.ProviderCatalog
	clock    clock.Clock
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("paymentprovider.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		cipher:   domain.NewCipher(p.Cfg.PaymentProviderConfigSecret),
		catalog:  p.Catalog,
		clock:    c,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) ListConfigs(ctx context.Context, organizerID uuid.UUID) ([]domain.ConfigSummary, error) {
	if organizerID == uuid.Nil {
		return nil, domain.ErrInvalidOrganization
	}

	items, err := s.repo.ListConfigs(ctx, s.db, organizerID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.ConfigSummary, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.ConfigSummary{
			Provider:   item.Provider,
			IsActive:   item.IsActive,
			Configured: true,
		})
	}
	return resp, nil
}

func (s *Service) UpsertConfig(ctx context.Context, organizerID uuid.UUID, req domain.UpsertRequest) (*domain.ConfigSummary, error) {
	if organizerID == uuid.Nil {
		return nil, domain.ErrInvalidOrganization
	}
	provider, err := s.normalizeProvider(req.Provider)
	if err != nil {
		return nil, err
	}

	cfg := normalizeConfig(req.Config)
	if len(cfg) == 0 {
		return nil, domain.ErrInvalidConfig
	}
	encrypted, err := s.cipher.Encrypt(cfg)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindConfig(ctx, s.db, organizerID, provider)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	row := domain.ProviderConfig{
		ID:          s.genID.Generate(),
		OrganizerID: organizerID,
		Provider:    provider,
		Config:      encrypted,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		row.ID = existing.ID
		row.IsActive = existing.IsActive
		row.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.UpsertConfig(ctx, s.db, &row); err != nil {
		return nil, err
	}

	action := "provider.rotate_secret"
	if existing == nil {
		action = "provider.enable"
	}
	metadata := map[string]any{"provider": provider}
	if masked := auditmasking.MaskJSON(cfg); masked != nil {
		metadata["masked_fields"] = masked
	}
	s.audit(ctx, organizerID, action, provider, metadata)

	return &domain.ConfigSummary{Provider: provider, IsActive: row.IsActive, Configured: true}, nil
}

func (s *Service) SetActive(ctx context.Context, organizerID uuid.UUID, provider string, isActive bool) (*domain.ConfigSummary, error) {
	if organizerID == uuid.Nil {
		return nil, domain.ErrInvalidOrganization
	}
	provider, err := s.normalizeProvider(provider)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, s.db, organizerID, provider, isActive, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrNotFound
	}

	action := "provider.disable"
	if isActive {
		action = "provider.enable"
	}
	s.audit(ctx, organizerID, action, provider, map[string]any{"provider": provider, "is_active": isActive})

	return &domain.ConfigSummary{Provider: provider, IsActive: isActive, Configured: true}, nil
}

func (s *Service) ActiveConfig(ctx context.Context, organizerID uuid.UUID, provider string) (*domain.DecryptedConfig, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	row, err := s.repo.FindConfig(ctx, s.db, organizerID, provider)
	if err != nil {
		return nil, err
	}
	if row == nil || !row.IsActive {
		return nil, domain.ErrNotFound
	}
	plain, err := s.cipher.Decrypt(row.Config)
	if err != nil {
		return nil, err
	}
	return &domain.DecryptedConfig{OrganizerID: row.OrganizerID, Provider: row.Provider, Config: plain}, nil
}

func (s *Service) ActiveConfigs(ctx context.Context, provider string) ([]domain.DecryptedConfig, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	rows, err := s.repo.ListActiveByProvider(ctx, s.db, provider)
	if err != nil {
		return nil, err
	}

	out := make([]domain.DecryptedConfig, 0, len(rows))
	for _, row := range rows {
		plain, err := s.cipher.Decrypt(row.Config)
		if err != nil {
			if errors.Is(err, domain.ErrEncryptionKeyMissing) {
				return nil, err
			}
			s.log.Warn("skipping undecryptable provider config",
				zap.String("provider", provider),
				zap.String("organizer_id", row.OrganizerID.String()),
				zap.Error(err),
			)
			continue
		}
		out = append(out, domain.DecryptedConfig{OrganizerID: row.OrganizerID, Provider: row.Provider, Config: plain})
	}
	return out, nil
}

func (s *Service) normalizeProvider(provider string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "", domain.ErrInvalidProvider
	}
	if s.catalog != nil && !s.catalog.ProviderExists(provider) {
		return "", domain.ErrInvalidProvider
	}
	return provider, nil
}

func (s *Service) audit(ctx context.Context, organizerID uuid.UUID, action string, provider string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := provider
	if err := s.auditSvc.AuditLog(ctx, &organizerID, "", nil, action, "payment_provider_config", &targetID, metadata); err != nil {
		s.log.Warn("audit provider config change failed", zap.String("action", action), zap.Error(err))
	}
}

func normalizeConfig(config map[string]any) map[string]any {
	if len(config) == 0 {
		return nil
	}

	normalized := make(map[string]any, len(config))
	for key, value := range config {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || value == nil {
			continue
		}

		switch cast := value.(type) {
		case string:
			trimmedValue := strings.TrimSpace(cast)
			if trimmedValue == "" {
				continue
			}
			normalized[trimmedKey] = trimmedValue
		default:
			normalized[trimmedKey] = cast
		}
	}

	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
