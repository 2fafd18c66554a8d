package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
)

type Method string

const (
	MethodQR     Method = "qr"
	MethodManual Method = "manual"
)

func (m Method) Valid() bool {
	return m == MethodQR || m == MethodManual
}

type Outcome string

const (
	OutcomeCheckedIn        Outcome = "checked_in"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeNotPaid          Outcome = "not_paid"
	OutcomeAlreadyCheckedIn Outcome = "already_checked_in"
	OutcomeInvalidCode      Outcome = "invalid_code"
)

// Event is one scan attempt, successful or not.
type Event struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	RegistrationID *uuid.UUID   `gorm:"type:uuid" json:"registration_id,omitempty"`
	Method         Method       `gorm:"type:text;not null" json:"method"`
	ScannerID      *string      `gorm:"type:text" json:"scanner_id,omitempty"`
	Outcome        Outcome      `gorm:"type:text;not null" json:"outcome"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
}

func (Event) TableName() string { return "check_in_events" }

// CheckInRequest identifies a registration either directly or through a
// signed ticket code read from a QR.
type CheckInRequest struct {
	RegistrationID *uuid.UUID `json:"registration_id,omitempty"`
	TicketCode     string     `json:"ticket_code,omitempty"`
	Method         Method     `json:"method"`
	ScannerID      string     `json:"scanner_id,omitempty"`
}

type CheckInResult struct {
	Registration orderdomain.Registration `json:"registration"`
	CheckedInAt  time.Time                `json:"checked_in_at"`
}

type Ticket struct {
	RegistrationID     uuid.UUID `json:"registration_id"`
	RegistrationNumber string    `json:"registration_number"`
	ParticipantName    string    `json:"participant_name"`
	TicketTypeID       uuid.UUID `json:"ticket_type_id"`
	Code               string    `json:"code"`
	CheckInStatus      string    `json:"check_in_status"`
}
