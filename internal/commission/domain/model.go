package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type CommissionType string

const (
	CommissionTypePercentage CommissionType = "percentage"
	CommissionTypeFixed      CommissionType = "fixed"
)

// Commission is a platform fee override. A nil EventID marks a platform-wide
// row; an empty TicketTypeIDs set covers every tier of the event.
type Commission struct {
	ID            uuid.UUID                      `gorm:"type:uuid;primaryKey" json:"id"`
	EventID       *uuid.UUID                     `gorm:"type:uuid" json:"event_id,omitempty"`
	Type          CommissionType                 `gorm:"column:commission_type;type:text;not null" json:"type"`
	Value         decimal.Decimal                `gorm:"type:numeric;not null" json:"value"`
	TicketTypeIDs datatypes.JSONSlice[uuid.UUID] `gorm:"type:jsonb" json:"ticket_type_ids,omitempty"`
	IsActive      bool                           `gorm:"not null" json:"is_active"`
	CreatedAt     time.Time                      `gorm:"not null" json:"created_at"`
}

func (Commission) TableName() string { return "commissions" }

// Covers reports whether the override applies to the ticket type and whether
// it names the ticket type explicitly.
func (c Commission) Covers(ticketTypeID uuid.UUID) (covers bool, explicit bool) {
	if len(c.TicketTypeIDs) == 0 {
		return true, false
	}
	for _, id := range c.TicketTypeIDs {
		if id == ticketTypeID {
			return true, true
		}
	}
	return false, false
}

type ResolutionSource string

const (
	SourceEvent    ResolutionSource = "event"
	SourcePlatform ResolutionSource = "platform"
	SourceConfig   ResolutionSource = "config"
)

type Resolution struct {
	Source       ResolutionSource
	CommissionID *uuid.UUID
	Type         CommissionType
	Value        decimal.Decimal
}

type Split struct {
	Gross       int64 `json:"gross"`
	PlatformFee int64 `json:"platform_fee"`
	Net         int64 `json:"net"`
}

var hundred = decimal.NewFromInt(100)

// Split divides gross between the platform and the organizer. Percentage fees
// round half-up; fixed fees are charged per ticket. The fee never exceeds
// gross.
func (r Resolution) Split(gross int64, quantity int) Split {
	if gross <= 0 {
		return Split{Gross: gross, Net: gross}
	}

	var fee int64
	switch r.Type {
	case CommissionTypePercentage:
		fee = decimal.NewFromInt(gross).Mul(r.Value).Div(hundred).Round(0).IntPart()
	case CommissionTypeFixed:
		fee = r.Value.Round(0).IntPart() * int64(quantity)
	}
	if fee < 0 {
		fee = 0
	}
	if fee > gross {
		fee = gross
	}
	return Split{Gross: gross, PlatformFee: fee, Net: gross - fee}
}
