// Package fixtures seeds rows shared by service tests.
package fixtures

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	eventdomain "github.com/smallbiznis/eventreg/internal/event/domain"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	voucherdomain "github.com/smallbiznis/eventreg/internal/voucher/domain"
	"gorm.io/gorm"
)

// Now is the reference instant used by fixtures.
var Now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func Event(t testing.TB, db *gorm.DB, organizerID uuid.UUID) eventdomain.Event {
	t.Helper()
	event := eventdomain.Event{
		ID:          uuid.New(),
		OrganizerID: organizerID,
		Name:        "City Marathon",
		Currency:    "IDR",
		Status:      eventdomain.EventStatusPublished,
		StartsAt:    Now.AddDate(0, 2, 0),
		CreatedAt:   Now.AddDate(0, -1, 0),
		UpdatedAt:   Now.AddDate(0, -1, 0),
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return event
}

func TicketType(t testing.TB, db *gorm.DB, eventID uuid.UUID, price int64, mutate ...func(*eventdomain.TicketType)) eventdomain.TicketType {
	t.Helper()
	tt := eventdomain.TicketType{
		ID:        uuid.New(),
		EventID:   eventID,
		Name:      fmt.Sprintf("Tier %d", price),
		Price:     price,
		IsActive:  true,
		CreatedAt: Now.AddDate(0, -1, 0),
	}
	for _, fn := range mutate {
		fn(&tt)
	}
	if err := db.Create(&tt).Error; err != nil {
		t.Fatalf("seed ticket type: %v", err)
	}
	return tt
}

func Capacity(n int) func(*eventdomain.TicketType) {
	return func(tt *eventdomain.TicketType) { tt.Quantity = &n }
}

func Voucher(t testing.TB, db *gorm.DB, organizerID uuid.UUID, code string, discountType voucherdomain.DiscountType, value int64, mutate ...func(*voucherdomain.Voucher)) voucherdomain.Voucher {
	t.Helper()
	v := voucherdomain.Voucher{
		ID:            uuid.New(),
		OrganizerID:   organizerID,
		Code:          voucherdomain.NormalizeCode(code),
		DiscountType:  discountType,
		DiscountValue: decimal.NewFromInt(value),
		IsActive:      true,
		CreatedAt:     Now.AddDate(0, -1, 0),
	}
	for _, fn := range mutate {
		fn(&v)
	}
	if err := db.Create(&v).Error; err != nil {
		t.Fatalf("seed voucher: %v", err)
	}
	return v
}

// PendingOrder is a seeded order awaiting payment.
type PendingOrder struct {
	Order         orderdomain.Order
	Registrations []orderdomain.Registration
}

type OrderOption func(*PendingOrder)

func WithVoucher(id uuid.UUID, discountPerTicket int64) OrderOption {
	return func(p *PendingOrder) {
		p.Order.VoucherID = &id
		for i := range p.Registrations {
			p.Registrations[i].DiscountAmount = discountPerTicket
			p.Registrations[i].AmountPaid -= discountPerTicket
			p.Order.Discount += discountPerTicket
			p.Order.Total -= discountPerTicket
		}
	}
}

func WithProviderReference(ref string) OrderOption {
	return func(p *PendingOrder) { p.Order.ProviderReference = &ref }
}

func WithExpiry(at time.Time) OrderOption {
	return func(p *PendingOrder) { p.Order.ExpiresAt = at }
}

// Order seeds a pending order with one registration per ticket. The platform
// fee is ten percent of each ticket.
func Order(t testing.TB, db *gorm.DB, event eventdomain.Event, tt eventdomain.TicketType, tickets int, provider string, opts ...OrderOption) PendingOrder {
	t.Helper()
	orderID := uuid.New()
	number := "ORD-250601-" + orderID.String()[:8]
	p := PendingOrder{
		Order: orderdomain.Order{
			ID:            orderID,
			OrderNumber:   number,
			OrganizerID:   event.OrganizerID,
			EventID:       event.ID,
			BuyerName:     "Buyer",
			BuyerEmail:    "buyer@example.com",
			Subtotal:      tt.Price * int64(tickets),
			Total:         tt.Price * int64(tickets),
			Currency:      event.Currency,
			Status:        orderdomain.OrderStatusPending,
			PaymentStatus: orderdomain.PaymentStatusPending,
			PaymentMethod: provider,
			Provider:      provider,
			ExpiresAt:     Now.Add(time.Hour),
			CreatedAt:     Now,
			UpdatedAt:     Now,
		},
	}
	for i := 0; i < tickets; i++ {
		p.Registrations = append(p.Registrations, orderdomain.Registration{
			ID:                 uuid.New(),
			OrderID:            orderID,
			EventID:            event.ID,
			TicketTypeID:       tt.ID,
			RegistrationNumber: fmt.Sprintf("%s-%02d", number, i+1),
			ParticipantName:    fmt.Sprintf("Runner %d", i+1),
			ParticipantEmail:   fmt.Sprintf("runner%d@example.com", i+1),
			UnitPrice:          tt.Price,
			AmountPaid:         tt.Price,
			PlatformFee:        tt.Price / 10,
			Status:             orderdomain.RegistrationStatusPending,
			PaymentStatus:      orderdomain.PaymentStatusPending,
			CheckInStatus:      orderdomain.CheckInStatusNotCheckedIn,
			CreatedAt:          Now,
			UpdatedAt:          Now,
		})
	}
	for _, opt := range opts {
		opt(&p)
	}

	if err := db.Create(&p.Order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if err := db.Create(&p.Registrations).Error; err != nil {
		t.Fatalf("seed registrations: %v", err)
	}
	return p
}
