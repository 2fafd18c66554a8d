package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Participant struct {
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone,omitempty"`
	Gender    *string    `json:"gender,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
}

// CheckoutItem buys one ticket per participant.
type CheckoutItem struct {
	TicketTypeID uuid.UUID     `json:"ticket_type_id"`
	Participants []Participant `json:"participants"`
}

type CheckoutRequest struct {
	EventID       uuid.UUID      `json:"event_id"`
	BuyerName     string         `json:"buyer_name"`
	BuyerEmail    string         `json:"buyer_email"`
	Provider      string         `json:"provider"`
	PaymentMethod string         `json:"payment_method"`
	VoucherCode   string         `json:"voucher_code,omitempty"`
	Items         []CheckoutItem `json:"items"`
}

func (r CheckoutRequest) TicketCount() int {
	total := 0
	for _, item := range r.Items {
		total += len(item.Participants)
	}
	return total
}

type PaymentInstructions struct {
	ProviderReference *string        `json:"provider_reference,omitempty"`
	RedirectURL       *string        `json:"redirect_url,omitempty"`
	Display           map[string]any `json:"display,omitempty"`
	ExpiresAt         time.Time      `json:"expires_at"`
}

type CheckoutResult struct {
	Order         Order               `json:"order"`
	Registrations []Registration      `json:"registrations"`
	Payment       PaymentInstructions `json:"payment"`
}

// FieldError names one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation_failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Err returns nil when no field was added.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
