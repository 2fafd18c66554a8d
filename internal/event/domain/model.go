package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
)

type Event struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizerID uuid.UUID   `gorm:"type:uuid;not null;index" json:"organizer_id"`
	Name        string      `gorm:"type:text;not null" json:"name"`
	Currency    string      `gorm:"type:text;not null" json:"currency"`
	Status      EventStatus `gorm:"type:text;not null" json:"status"`
	StartsAt    time.Time   `gorm:"not null" json:"starts_at"`
	CreatedAt   time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"not null" json:"updated_at"`
}

func (Event) TableName() string { return "events" }

// TicketType is a purchasable tier of an event. Prices are minor units in the
// event currency; EarlyBirdPrice applies strictly before EarlyBirdEndDate.
type TicketType struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	EventID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"event_id"`
	Name             string     `gorm:"type:text;not null" json:"name"`
	Price            int64      `gorm:"not null" json:"price"`
	EarlyBirdPrice   *int64     `json:"early_bird_price,omitempty"`
	EarlyBirdEndDate *time.Time `json:"early_bird_end_date,omitempty"`
	Quantity         *int       `json:"quantity,omitempty"`
	MinAge           *int       `json:"min_age,omitempty"`
	MaxAge           *int       `json:"max_age,omitempty"`
	Gender           *string    `gorm:"type:text" json:"gender,omitempty"`
	IsActive         bool       `gorm:"not null" json:"is_active"`
	CreatedAt        time.Time  `gorm:"not null" json:"created_at"`
}

func (TicketType) TableName() string { return "ticket_types" }

// UnitPriceAt returns the price in effect at t.
func (t TicketType) UnitPriceAt(at time.Time) int64 {
	if t.EarlyBirdPrice != nil && t.EarlyBirdEndDate != nil && at.Before(*t.EarlyBirdEndDate) {
		return *t.EarlyBirdPrice
	}
	return t.Price
}

// Remaining returns the unsold capacity, or -1 when the tier is uncapped.
func (t TicketType) Remaining(sold int) int {
	if t.Quantity == nil {
		return -1
	}
	remaining := *t.Quantity - sold
	if remaining < 0 {
		return 0
	}
	return remaining
}
