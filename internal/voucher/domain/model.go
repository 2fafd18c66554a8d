package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Voucher is an organizer discount code. CurrentUses only moves inside the
// transaction that marks an order paid.
type Voucher struct {
	ID                uuid.UUID                     `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizerID       uuid.UUID                     `gorm:"type:uuid;not null;index" json:"organizer_id"`
	EventID           *uuid.UUID                    `gorm:"type:uuid" json:"event_id,omitempty"`
	TicketTypeIDs     datatypes.JSONSlice[uuid.UUID] `gorm:"type:jsonb" json:"ticket_type_ids,omitempty"`
	Code              string                        `gorm:"type:text;not null" json:"code"`
	DiscountType      DiscountType                  `gorm:"type:text;not null" json:"discount_type"`
	DiscountValue     decimal.Decimal               `gorm:"type:numeric;not null" json:"discount_value"`
	ValidFrom         *time.Time                    `json:"valid_from,omitempty"`
	ValidUntil        *time.Time                    `json:"valid_until,omitempty"`
	MaxUses           *int                          `json:"max_uses,omitempty"`
	CurrentUses       int                           `gorm:"not null;default:0" json:"current_uses"`
	MinPurchaseAmount *int64                        `json:"min_purchase_amount,omitempty"`
	IsActive          bool                          `gorm:"not null" json:"is_active"`
	CreatedAt         time.Time                     `gorm:"not null" json:"created_at"`
}

func (Voucher) TableName() string { return "vouchers" }

// NormalizeCode upper-cases and trims a code as entered by a buyer.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// AppliesTo reports whether the voucher scope covers the ticket type.
func (v Voucher) AppliesTo(eventID uuid.UUID, ticketTypeID uuid.UUID) bool {
	if v.EventID != nil && *v.EventID != eventID {
		return false
	}
	if len(v.TicketTypeIDs) == 0 {
		return true
	}
	for _, id := range v.TicketTypeIDs {
		if id == ticketTypeID {
			return true
		}
	}
	return false
}

// WithinWindow reports whether at falls inside the validity window.
func (v Voucher) WithinWindow(at time.Time) bool {
	if v.ValidFrom != nil && at.Before(*v.ValidFrom) {
		return false
	}
	if v.ValidUntil != nil && !at.Before(*v.ValidUntil) {
		return false
	}
	return true
}

// HasCapacity reports whether another use fits under MaxUses.
func (v Voucher) HasCapacity() bool {
	return v.MaxUses == nil || v.CurrentUses < *v.MaxUses
}
