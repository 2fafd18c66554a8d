package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SettledEvent announces that an order reached a settled state.
type SettledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	OrganizerID uuid.UUID `json:"organizer_id"`
	EventID     uuid.UUID `json:"event_id"`
	Outcome     string    `json:"outcome"`
	Email       string    `json:"email"`
	BuyerName   string    `json:"buyer_name"`
	Total       int64     `json:"total"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Dispatcher fans settled events out to buyers and subscribers. It never
// blocks the caller on delivery and reports failures only through logs.
type Dispatcher interface {
	OrderSettled(ctx context.Context, evt SettledEvent)
}

// Channel delivers one settled event over one medium.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, evt SettledEvent) error
}
