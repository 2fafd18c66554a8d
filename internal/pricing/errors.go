package pricing

import (
	"errors"

	voucherdomain "github.com/smallbiznis/eventreg/internal/voucher/domain"
)

var (
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrTicketTypeInactive   = errors.New("ticket_type_inactive")
	ErrCapacityExceeded     = errors.New("capacity_exceeded")
	ErrVoucherNotApplicable = errors.New("voucher_not_applicable")
	ErrVoucherExhausted     = voucherdomain.ErrVoucherExhausted
)
