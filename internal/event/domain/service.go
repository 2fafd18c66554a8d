package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Event, error)
	FindTicketTypes(ctx context.Context, db *gorm.DB, eventID uuid.UUID, ids []uuid.UUID) ([]TicketType, error)
	// CountReserved counts pending and active registrations per ticket type.
	CountReserved(ctx context.Context, db *gorm.DB, ticketTypeIDs []uuid.UUID) (map[uuid.UUID]int, error)
	// CountSold counts active registrations per ticket type.
	CountSold(ctx context.Context, db *gorm.DB, ticketTypeIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

type Service interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)
	GetTicketTypes(ctx context.Context, eventID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]TicketType, error)
	ReservedCounts(ctx context.Context, ticketTypeIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

var (
	ErrEventNotFound      = errors.New("event_not_found")
	ErrEventNotOpen       = errors.New("event_not_open")
	ErrTicketTypeNotFound = errors.New("ticket_type_not_found")
)
