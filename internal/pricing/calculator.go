// Package pricing computes order lines from ticket tiers and vouchers. It does
// no I/O: callers load tiers, reserved counts and the voucher beforehand.
package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	eventdomain "github.com/smallbiznis/eventreg/internal/event/domain"
	voucherdomain "github.com/smallbiznis/eventreg/internal/voucher/domain"
)

var hundred = decimal.NewFromInt(100)

type LineInput struct {
	TicketType eventdomain.TicketType
	Quantity   int
	// Reserved is the number of seats already held for the tier.
	Reserved int
}

type CartInput struct {
	EventID     uuid.UUID
	OrganizerID uuid.UUID
	Lines       []LineInput
	Voucher     *voucherdomain.Voucher
	EvaluatedAt time.Time
}

type PricedLine struct {
	TicketTypeID uuid.UUID
	Quantity     int
	UnitPrice    int64
	EarlyBird    bool
	Gross        int64
	Discount     int64
	Subtotal     int64
}

// UnitDiscounts spreads the line discount across units, remainder first.
func (l PricedLine) UnitDiscounts() []int64 {
	out := make([]int64, l.Quantity)
	if l.Quantity == 0 {
		return out
	}
	base := l.Discount / int64(l.Quantity)
	remainder := l.Discount % int64(l.Quantity)
	for i := range out {
		out[i] = base
		if int64(i) < remainder {
			out[i]++
		}
	}
	return out
}

type PricedCart struct {
	Lines     []PricedLine
	Gross     int64
	Discount  int64
	Subtotal  int64
	VoucherID *uuid.UUID
}

type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// PriceLine prices a single line, applying the voucher when given.
func (c *Calculator) PriceLine(eventID uuid.UUID, organizerID uuid.UUID, line LineInput, voucher *voucherdomain.Voucher, at time.Time) (PricedLine, error) {
	cart, err := c.PriceCart(CartInput{
		EventID:     eventID,
		OrganizerID: organizerID,
		Lines:       []LineInput{line},
		Voucher:     voucher,
		EvaluatedAt: at,
	})
	if err != nil {
		return PricedLine{}, err
	}
	return cart.Lines[0], nil
}

// PriceCart prices every line and applies the voucher at most once per order:
// a percentage voucher discounts each applicable line, a fixed voucher is
// capped by the applicable gross and filled line by line.
func (c *Calculator) PriceCart(in CartInput) (PricedCart, error) {
	if len(in.Lines) == 0 {
		return PricedCart{}, ErrInvalidQuantity
	}

	requested := map[uuid.UUID]int{}
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return PricedCart{}, ErrInvalidQuantity
		}
		if !line.TicketType.IsActive {
			return PricedCart{}, ErrTicketTypeInactive
		}
		requested[line.TicketType.ID] += line.Quantity
	}
	for _, line := range in.Lines {
		remaining := line.TicketType.Remaining(line.Reserved)
		if remaining >= 0 && requested[line.TicketType.ID] > remaining {
			return PricedCart{}, ErrCapacityExceeded
		}
	}

	cart := PricedCart{Lines: make([]PricedLine, 0, len(in.Lines))}
	for _, line := range in.Lines {
		unit := line.TicketType.UnitPriceAt(in.EvaluatedAt)
		gross := unit * int64(line.Quantity)
		cart.Lines = append(cart.Lines, PricedLine{
			TicketTypeID: line.TicketType.ID,
			Quantity:     line.Quantity,
			UnitPrice:    unit,
			EarlyBird:    unit != line.TicketType.Price,
			Gross:        gross,
			Subtotal:     gross,
		})
		cart.Gross += gross
	}

	if in.Voucher != nil {
		if err := applyVoucher(&cart, in); err != nil {
			return PricedCart{}, err
		}
		id := in.Voucher.ID
		cart.VoucherID = &id
	}

	for i := range cart.Lines {
		cart.Lines[i].Subtotal = cart.Lines[i].Gross - cart.Lines[i].Discount
		cart.Discount += cart.Lines[i].Discount
	}
	cart.Subtotal = cart.Gross - cart.Discount
	return cart, nil
}

func applyVoucher(cart *PricedCart, in CartInput) error {
	v := in.Voucher
	if !v.IsActive || v.OrganizerID != in.OrganizerID {
		return ErrVoucherNotApplicable
	}
	if !v.WithinWindow(in.EvaluatedAt) || !v.HasCapacity() {
		return ErrVoucherExhausted
	}

	applicable := make([]int, 0, len(cart.Lines))
	var applicableGross int64
	for i, line := range cart.Lines {
		if v.AppliesTo(in.EventID, line.TicketTypeID) {
			applicable = append(applicable, i)
			applicableGross += line.Gross
		}
	}
	if len(applicable) == 0 {
		return ErrVoucherNotApplicable
	}
	if v.MinPurchaseAmount != nil && applicableGross < *v.MinPurchaseAmount {
		return ErrVoucherNotApplicable
	}

	switch v.DiscountType {
	case voucherdomain.DiscountTypePercentage:
		for _, idx := range applicable {
			cart.Lines[idx].Discount = PercentOf(cart.Lines[idx].Gross, v.DiscountValue)
		}
	case voucherdomain.DiscountTypeFixed:
		budget := v.DiscountValue.Round(0).IntPart()
		if budget > applicableGross {
			budget = applicableGross
		}
		for _, idx := range applicable {
			if budget <= 0 {
				break
			}
			take := cart.Lines[idx].Gross
			if take > budget {
				take = budget
			}
			cart.Lines[idx].Discount = take
			budget -= take
		}
	default:
		return ErrVoucherNotApplicable
	}
	return nil
}

// PercentOf returns pct percent of amount rounded half-up to the minor unit.
// The result is clamped to [0, amount].
func PercentOf(amount int64, pct decimal.Decimal) int64 {
	if amount <= 0 || !pct.IsPositive() {
		return 0
	}
	value := decimal.NewFromInt(amount).Mul(pct).Div(hundred).Round(0).IntPart()
	if value > amount {
		return amount
	}
	return value
}
