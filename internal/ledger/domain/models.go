package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// LedgerEntryDirection represents debit or credit postings.
type LedgerEntryDirection string

const (
	LedgerEntryDirectionDebit  LedgerEntryDirection = "debit"
	LedgerEntryDirectionCredit LedgerEntryDirection = "credit"
)

type LedgerSourceType string

const (
	SourceTypeSale   LedgerSourceType = "sale"   // paid order
	SourceTypeRefund LedgerSourceType = "refund" // money returned to the buyer
	SourceTypePayout LedgerSourceType = "payout" // organizer settlement

	// SourceTypeHeldPayment is a capture for an order that could not be honoured.
	SourceTypeHeldPayment LedgerSourceType = "held_payment"
)

type LedgerAccountCode string

const (
	// Assets
	AccountCodeCash LedgerAccountCode = "cash"

	// Revenue
	AccountCodePlatformFeeRevenue LedgerAccountCode = "platform_fee_revenue"

	// Liabilities
	AccountCodeOrganizerPayable LedgerAccountCode = "organizer_payable"
	AccountCodeTaxPayable       LedgerAccountCode = "tax_payable"
	AccountCodeRefundPayable    LedgerAccountCode = "refund_payable"
)

// LedgerEntry captures the immutable header for a financial event.
type LedgerEntry struct {
	ID          snowflake.ID     `gorm:"primaryKey"`
	OrganizerID uuid.UUID        `gorm:"type:uuid;not null"`
	SourceType  LedgerSourceType `gorm:"type:text;not null"`
	SourceID    string           `gorm:"type:text;not null"`
	Currency    string           `gorm:"type:text;not null"`
	OccurredAt  time.Time        `gorm:"not null"`
	CreatedAt   time.Time        `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerEntryLine is a double-entry posting line.
type LedgerEntryLine struct {
	ID            snowflake.ID         `gorm:"primaryKey"`
	LedgerEntryID snowflake.ID         `gorm:"not null"`
	AccountCode   LedgerAccountCode    `gorm:"type:text;not null"`
	Direction     LedgerEntryDirection `gorm:"type:text;not null"`
	Amount        int64                `gorm:"not null"`
	CreatedAt     time.Time            `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntryLine) TableName() string { return "ledger_entry_lines" }

// Posting is a requested line before it is stored.
type Posting struct {
	AccountCode LedgerAccountCode
	Direction   LedgerEntryDirection
	Amount      int64
}

// EntryRequest describes one balanced entry. SourceType and SourceID
// identify it: posting the same source twice is a no-op.
type EntryRequest struct {
	OrganizerID uuid.UUID
	SourceType  LedgerSourceType
	SourceID    string
	Currency    string
	OccurredAt  time.Time
	Postings    []Posting
}

// Amounts is the money split of one order, in minor units.
type Amounts struct {
	Gross       int64
	PlatformFee int64
	Tax         int64
	Net         int64
}

// SalePostings moves the collected gross into platform revenue, tax and the
// organizer's payable balance.
func SalePostings(a Amounts) []Posting {
	postings := []Posting{
		{AccountCode: AccountCodeCash, Direction: LedgerEntryDirectionDebit, Amount: a.Gross},
		{AccountCode: AccountCodePlatformFeeRevenue, Direction: LedgerEntryDirectionCredit, Amount: a.PlatformFee},
		{AccountCode: AccountCodeOrganizerPayable, Direction: LedgerEntryDirectionCredit, Amount: a.Net},
	}
	if a.Tax > 0 {
		postings = append(postings, Posting{AccountCode: AccountCodeTaxPayable, Direction: LedgerEntryDirectionCredit, Amount: a.Tax})
	}
	return postings
}

// RefundPostings reverses SalePostings.
func RefundPostings(a Amounts) []Posting {
	sale := SalePostings(a)
	out := make([]Posting, 0, len(sale))
	for _, p := range sale {
		p.Direction = p.Direction.Opposite()
		out = append(out, p)
	}
	return out
}

// HeldPaymentPostings parks a captured gross that is owed back to the buyer.
func HeldPaymentPostings(gross int64) []Posting {
	return []Posting{
		{AccountCode: AccountCodeCash, Direction: LedgerEntryDirectionDebit, Amount: gross},
		{AccountCode: AccountCodeRefundPayable, Direction: LedgerEntryDirectionCredit, Amount: gross},
	}
}

// HeldRefundPostings pays a held gross back out of cash.
func HeldRefundPostings(gross int64) []Posting {
	return []Posting{
		{AccountCode: AccountCodeRefundPayable, Direction: LedgerEntryDirectionDebit, Amount: gross},
		{AccountCode: AccountCodeCash, Direction: LedgerEntryDirectionCredit, Amount: gross},
	}
}

// PayoutPostings settles the organizer's payable balance out of cash.
func PayoutPostings(net int64) []Posting {
	return []Posting{
		{AccountCode: AccountCodeOrganizerPayable, Direction: LedgerEntryDirectionDebit, Amount: net},
		{AccountCode: AccountCodeCash, Direction: LedgerEntryDirectionCredit, Amount: net},
	}
}

func (d LedgerEntryDirection) Opposite() LedgerEntryDirection {
	if d == LedgerEntryDirectionDebit {
		return LedgerEntryDirectionCredit
	}
	return LedgerEntryDirectionDebit
}
