package service

import (
	"context"

	"github.com/google/uuid"
	eventdomain "github.com/smallbiznis/eventreg/internal/event/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo eventdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo eventdomain.Repository
}

func NewService(p Params) eventdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("event.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (*eventdomain.Event, error) {
	event, err := s.repo.FindEvent(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, eventdomain.ErrEventNotFound
	}
	return event, nil
}

// GetTicketTypes loads the requested tiers of one event. Every id must
// resolve, otherwise ErrTicketTypeNotFound is returned.
func (s *Service) GetTicketTypes(ctx context.Context, eventID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]eventdomain.TicketType, error) {
	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	items, err := s.repo.FindTicketTypes(ctx, s.db, eventID, unique)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]eventdomain.TicketType, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	if len(out) != len(unique) {
		return nil, eventdomain.ErrTicketTypeNotFound
	}
	return out, nil
}

func (s *Service) ReservedCounts(ctx context.Context, ticketTypeIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	return s.repo.CountReserved(ctx, s.db, ticketTypeIDs)
}
