package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeExpired   Outcome = "expired"
	OutcomeRefunded  Outcome = "refunded"
)

const (
	ProviderStripe   = "stripe"
	ProviderMidtrans = "midtrans"
	ProviderWallet   = "wallet"
	ProviderManual   = "manual"
)

// EventRecord is the raw provider delivery kept for idempotency.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	OrderNumber     *string        `json:"order_number,omitempty" gorm:"type:text"`
	Outcome         Outcome        `json:"outcome" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// PaymentEvent is the canonical payment event parsed by adapters. Either
// ProviderReference or OrderNumber identifies the order.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderReference string
	OrderNumber       string
	OrganizerID       uuid.UUID
	Outcome           Outcome
	Amount            int64
	Currency          string
	OccurredAt        time.Time
	RawPayload        []byte
}

type InitiateRequest struct {
	OrderID     uuid.UUID
	OrderNumber string
	Amount      int64
	Currency    string
	BuyerName   string
	BuyerEmail  string
	Description string
	ExpiresAt   time.Time
}

// InitiateResult carries what the buyer needs to pay: a redirect for hosted
// checkouts or display data (virtual account, QR string, bank details).
type InitiateResult struct {
	ProviderReference string
	RedirectURL       *string
	Display           map[string]any
	ExpiresAt         time.Time
}
