package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaxMode represents how tax relates to the ticket price.
type TaxMode string

const (
	TaxModeExclusive TaxMode = "exclusive" // subtotal + tax
	TaxModeInclusive TaxMode = "inclusive" // price already includes tax
)

// TaxDefinition is an organizer-scoped tax policy. Rate is a fraction, e.g.
// 0.1100 for 11%.
type TaxDefinition struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizerID uuid.UUID       `gorm:"type:uuid;not null;index" json:"organizer_id"`
	Name        string          `gorm:"type:text;not null" json:"name"`
	Code        string          `gorm:"type:text;not null" json:"code"`
	TaxMode     TaxMode         `gorm:"column:tax_mode;type:text;not null" json:"tax_mode"`
	Rate        decimal.Decimal `gorm:"type:numeric(8,4);not null" json:"rate"`
	Description *string         `gorm:"type:text" json:"description,omitempty"`
	IsActive    bool            `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}

func (TaxDefinition) TableName() string { return "tax_definitions" }

func (t *TaxDefinition) Validate() error {
	if t.Code == "" {
		return ErrInvalidTaxCode
	}
	if t.TaxMode != TaxModeExclusive && t.TaxMode != TaxModeInclusive {
		return ErrInvalidTaxMode
	}
	if t.Rate.IsNegative() {
		return ErrInvalidTaxRate
	}
	return nil
}

// Breakdown is the tax outcome for one order. Tax is added to the order total;
// Included is the portion already inside an inclusive price.
type Breakdown struct {
	DefinitionID *uuid.UUID      `json:"definition_id,omitempty"`
	Mode         TaxMode         `json:"mode,omitempty"`
	Rate         decimal.Decimal `json:"rate"`
	Tax          int64           `json:"tax"`
	Included     int64           `json:"included"`
}
