package service

import (
	"context"

	"github.com/google/uuid"
	voucherdomain "github.com/smallbiznis/eventreg/internal/voucher/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo voucherdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo voucherdomain.Repository
}

func NewService(p Params) voucherdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("voucher.service"),
		repo: p.Repo,
	}
}

func (s *Service) Lookup(ctx context.Context, organizerID uuid.UUID, code string) (*voucherdomain.Voucher, error) {
	code = voucherdomain.NormalizeCode(code)
	if code == "" {
		return nil, voucherdomain.ErrVoucherNotFound
	}
	voucher, err := s.repo.FindByCode(ctx, s.db, organizerID, code)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, voucherdomain.ErrVoucherNotFound
	}
	return voucher, nil
}

func (s *Service) Consume(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		tx = s.db
	}
	ok, err := s.repo.IncrementUses(ctx, tx, id)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Info("voucher cap reached at settlement", zap.String("voucher_id", id.String()))
		return voucherdomain.ErrVoucherExhausted
	}
	return nil
}
