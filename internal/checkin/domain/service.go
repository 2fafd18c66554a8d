package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	"gorm.io/gorm"
)

type Repository interface {
	FindRegistration(ctx context.Context, db *gorm.DB, id uuid.UUID) (*orderdomain.Registration, error)
	ListRegistrations(ctx context.Context, db *gorm.DB, orderID uuid.UUID) ([]orderdomain.Registration, error)
	// MarkCheckedIn stamps the registration only when it is active, paid and
	// not yet checked in, and reports whether it did.
	MarkCheckedIn(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error)
	InsertEvent(ctx context.Context, db *gorm.DB, evt *Event) error
	ListEvents(ctx context.Context, db *gorm.DB, registrationID uuid.UUID) ([]Event, error)
}

type Service interface {
	CheckIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error)
	// IssueTicket returns the registration's ticket and its QR as PNG.
	IssueTicket(ctx context.Context, registrationID uuid.UUID) (*Ticket, []byte, error)
	// OrderTickets lists the tickets of a paid order.
	OrderTickets(ctx context.Context, orderID uuid.UUID) ([]Ticket, error)
}

var (
	ErrNotFound          = errors.New("registration_not_found")
	ErrNotPaid           = errors.New("registration_not_paid")
	ErrAlreadyCheckedIn  = errors.New("already_checked_in")
	ErrInvalidTicketCode = errors.New("invalid_ticket_code")
	ErrInvalidMethod     = errors.New("invalid_check_in_method")
	ErrSigningKeyMissing = errors.New("ticket_signing_key_missing")
)
