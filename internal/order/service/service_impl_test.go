package service_test

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/eventreg/internal/clock"
	commissionrepo "github.com/smallbiznis/eventreg/internal/commission/repository"
	commissionservice "github.com/smallbiznis/eventreg/internal/commission/service"
	"github.com/smallbiznis/eventreg/internal/config"
	eventdomain "github.com/smallbiznis/eventreg/internal/event/domain"
	eventrepo "github.com/smallbiznis/eventreg/internal/event/repository"
	eventservice "github.com/smallbiznis/eventreg/internal/event/service"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	"github.com/smallbiznis/eventreg/internal/order/repository"
	"github.com/smallbiznis/eventreg/internal/order/service"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/pricing"
	taxdomain "github.com/smallbiznis/eventreg/internal/tax/domain"
	taxrepo "github.com/smallbiznis/eventreg/internal/tax/repository"
	taxservice "github.com/smallbiznis/eventreg/internal/tax/service"
	"github.com/smallbiznis/eventreg/internal/testutil/fixtures"
	"github.com/smallbiznis/eventreg/internal/testutil/testdb"
	voucherdomain "github.com/smallbiznis/eventreg/internal/voucher/domain"
	voucherrepo "github.com/smallbiznis/eventreg/internal/voucher/repository"
	voucherservice "github.com/smallbiznis/eventreg/internal/voucher/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeGateway struct {
	err   error
	calls int
	last  paymentdomain.InitiateRequest
}

func (g *fakeGateway) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (*paymentdomain.InitiateResult, error) {
	g.calls++
	g.last = req
	if g.err != nil {
		return nil, g.err
	}
	url := "https://pay.example/" + req.OrderNumber
	return &paymentdomain.InitiateResult{
		ProviderReference: "ref-" + req.OrderNumber,
		RedirectURL:       &url,
		ExpiresAt:         req.ExpiresAt,
	}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return paymentdomain.ErrCallbackUnsupported
}

func (g *fakeGateway) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	return nil, paymentdomain.ErrCallbackUnsupported
}

type fakeGateways struct {
	gateway    *fakeGateway
	configured map[string]bool
}

func (f *fakeGateways) ProviderExists(provider string) bool {
	switch provider {
	case "stripe", "midtrans", "wallet", "manual":
		return true
	}
	return false
}

func (f *fakeGateways) Gateway(ctx context.Context, organizerID uuid.UUID, provider string) (paymentdomain.Gateway, error) {
	if !f.configured[provider] {
		return nil, paymentdomain.ErrProviderNotFound
	}
	return f.gateway, nil
}

type harness struct {
	db       *gorm.DB
	svc      orderdomain.Service
	gateway  *fakeGateway
	event    eventdomain.Event
	standard eventdomain.TicketType
}

func newHarness(t *testing.T, mutate func(*config.CheckoutConfig)) *harness {
	t.Helper()
	db := testdb.Open(t)
	log := zap.NewNop()

	cfg := config.DefaultCheckoutConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	gateway := &fakeGateway{}
	svc := service.NewService(service.Params{
		DB:          db,
		Log:         log,
		Repo:        repository.Provide(),
		Events:      eventservice.NewService(eventservice.Params{DB: db, Log: log, Repo: eventrepo.Provide()}),
		Vouchers:    voucherservice.NewService(voucherservice.Params{DB: db, Log: log, Repo: voucherrepo.Provide()}),
		Commissions: commissionservice.NewResolver(commissionservice.Params{DB: db, Log: log, Repo: commissionrepo.Provide()}),
		Tax:         taxservice.NewResolver(taxservice.ResolverParams{DB: db, Repository: taxrepo.NewRepository()}),
		Gateways:    &fakeGateways{gateway: gateway, configured: map[string]bool{"stripe": true, "midtrans": true}},
		Checkout:    config.NewStaticCheckoutConfigHolder(cfg),
		Clock:       clock.NewFakeClock(fixtures.Now),
	})

	event := fixtures.Event(t, db, uuid.New())
	standard := fixtures.TicketType(t, db, event.ID, 100000)
	return &harness{db: db, svc: svc, gateway: gateway, event: event, standard: standard}
}

func (h *harness) request(ticketTypeID uuid.UUID, participants int) orderdomain.CheckoutRequest {
	item := orderdomain.CheckoutItem{TicketTypeID: ticketTypeID}
	for i := 0; i < participants; i++ {
		item.Participants = append(item.Participants, orderdomain.Participant{
			Name:  "Runner",
			Email: "runner@example.com",
		})
	}
	return orderdomain.CheckoutRequest{
		EventID:    h.event.ID,
		BuyerName:  "Buyer",
		BuyerEmail: "Buyer@Example.com ",
		Provider:   "stripe",
		Items:      []orderdomain.CheckoutItem{item},
	}
}

func (h *harness) countOrders(t *testing.T) int64 {
	var n int64
	require.NoError(t, h.db.Model(&orderdomain.Order{}).Count(&n).Error)
	return n
}

func seedTax(t *testing.T, db *gorm.DB, organizerID uuid.UUID, mode taxdomain.TaxMode, rate string) {
	t.Helper()
	def := taxdomain.TaxDefinition{
		ID:          uuid.New(),
		OrganizerID: organizerID,
		Name:        "VAT",
		Code:        "VAT",
		TaxMode:     mode,
		Rate:        decimal.RequireFromString(rate),
		IsActive:    true,
		CreatedAt:   fixtures.Now,
		UpdatedAt:   fixtures.Now,
	}
	require.NoError(t, db.Create(&def).Error)
}

var orderNumberPattern = regexp.MustCompile(`^ORD-250601-[0-9A-Z]{8}$`)

func TestCheckoutPricesPersistsThenInitiates(t *testing.T) {
	h := newHarness(t, nil)
	fixtures.Voucher(t, h.db, h.event.OrganizerID, "RUN10", voucherdomain.DiscountTypePercentage, 10)
	seedTax(t, h.db, h.event.OrganizerID, taxdomain.TaxModeExclusive, "0.11")

	req := h.request(h.standard.ID, 2)
	req.VoucherCode = " run10 "
	result, err := h.svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	order := result.Order
	assert.Regexp(t, orderNumberPattern, order.OrderNumber)
	assert.Equal(t, int64(200000), order.Subtotal)
	assert.Equal(t, int64(20000), order.Discount)
	assert.Equal(t, int64(0), order.Fees)
	assert.Equal(t, int64(19800), order.Tax)
	assert.Equal(t, int64(199800), order.Total)
	assert.Equal(t, order.Subtotal-order.Discount+order.Fees+order.Tax, order.Total)
	assert.Equal(t, "buyer@example.com", order.BuyerEmail)
	assert.Equal(t, "stripe", order.PaymentMethod)
	assert.Equal(t, fixtures.Now.Add(time.Hour), order.ExpiresAt)
	require.NotNil(t, order.VoucherID)

	require.Len(t, result.Registrations, 2)
	for i, reg := range result.Registrations {
		assert.Equal(t, order.OrderNumber+[]string{"-01", "-02"}[i], reg.RegistrationNumber)
		assert.Equal(t, int64(100000), reg.UnitPrice)
		assert.Equal(t, int64(10000), reg.DiscountAmount)
		assert.Equal(t, int64(90000), reg.AmountPaid)
		assert.Equal(t, int64(4500), reg.PlatformFee)
		require.NotNil(t, reg.VoucherCode)
		assert.Equal(t, "RUN10", *reg.VoucherCode)
		assert.Equal(t, orderdomain.RegistrationStatusPending, reg.Status)
	}

	assert.Equal(t, 1, h.gateway.calls)
	assert.Equal(t, int64(199800), h.gateway.last.Amount)
	assert.Equal(t, "IDR", h.gateway.last.Currency)
	require.NotNil(t, result.Payment.ProviderReference)
	assert.Equal(t, "ref-"+order.OrderNumber, *result.Payment.ProviderReference)
	require.NotNil(t, result.Payment.RedirectURL)

	var stored orderdomain.Order
	require.NoError(t, h.db.Where("id = ?", order.ID).Take(&stored).Error)
	require.NotNil(t, stored.ProviderReference)
	assert.Equal(t, "ref-"+order.OrderNumber, *stored.ProviderReference)
	assert.Equal(t, orderdomain.OrderStatusPending, stored.Status)
	assert.Contains(t, stored.PaymentPayload, "redirect_url")
	assert.Contains(t, stored.PaymentPayload, "tax")

	var voucher voucherdomain.Voucher
	require.NoError(t, h.db.Where("id = ?", *order.VoucherID).Take(&voucher).Error)
	assert.Equal(t, 0, voucher.CurrentUses)
}

func TestCheckoutChargesFeesWhenPassedToBuyer(t *testing.T) {
	h := newHarness(t, func(cfg *config.CheckoutConfig) { cfg.PassFeesToBuyer = true })

	result, err := h.svc.Checkout(context.Background(), h.request(h.standard.ID, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(10000), result.Order.Fees)
	assert.Equal(t, int64(210000), result.Order.Total)
}

func TestCheckoutInclusiveTaxLeavesTotalUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	seedTax(t, h.db, h.event.OrganizerID, taxdomain.TaxModeInclusive, "0.11")

	result, err := h.svc.Checkout(context.Background(), h.request(h.standard.ID, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Order.Tax)
	assert.Equal(t, int64(100000), result.Order.Total)
}

func TestCheckoutKeepsOrderPendingWhenProviderUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.err = paymentdomain.ErrProviderUnavailable

	result, err := h.svc.Checkout(context.Background(), h.request(h.standard.ID, 1))
	require.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)
	require.NotNil(t, result)
	assert.Nil(t, result.Order.ProviderReference)

	var stored orderdomain.Order
	require.NoError(t, h.db.Where("id = ?", result.Order.ID).Take(&stored).Error)
	assert.Equal(t, orderdomain.OrderStatusPending, stored.Status)
	assert.Nil(t, stored.ProviderReference)

	h.gateway.err = nil
	retried, err := h.svc.RetryPayment(context.Background(), result.Order.ID)
	require.NoError(t, err)
	require.NotNil(t, retried.Payment.ProviderReference)
	assert.Len(t, retried.Registrations, 1)

	require.NoError(t, h.db.Where("id = ?", result.Order.ID).Take(&stored).Error)
	require.NotNil(t, stored.ProviderReference)
}

func TestCheckoutWrapsProviderRejection(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.err = paymentdomain.ErrPaymentRejected

	_, err := h.svc.Checkout(context.Background(), h.request(h.standard.ID, 1))
	assert.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentRejected)
	assert.Equal(t, int64(1), h.countOrders(t))
}

func TestCheckoutValidation(t *testing.T) {
	h := newHarness(t, nil)

	req := h.request(h.standard.ID, 1)
	req.BuyerEmail = "not-an-email"
	req.Items[0].Participants[0].Name = " "
	req.Provider = "paypal"

	_, err := h.svc.Checkout(context.Background(), req)
	var verr *orderdomain.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)

	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["buyer_email"])
	assert.True(t, fields["provider"])
	assert.True(t, fields["items[0].participants[0].name"])
	assert.Equal(t, 0, h.gateway.calls)
	assert.Equal(t, int64(0), h.countOrders(t))
}

func TestCheckoutRejectsTooManyTickets(t *testing.T) {
	h := newHarness(t, func(cfg *config.CheckoutConfig) { cfg.MaxTicketsPerOrder = 2 })

	_, err := h.svc.Checkout(context.Background(), h.request(h.standard.ID, 3))
	var verr *orderdomain.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestCheckoutEnforcesParticipantRestrictions(t *testing.T) {
	h := newHarness(t, nil)
	minAge := 18
	women := "female"
	restricted := fixtures.TicketType(t, h.db, h.event.ID, 50000, func(tt *eventdomain.TicketType) {
		tt.MinAge = &minAge
		tt.Gender = &women
	})

	req := h.request(restricted.ID, 1)
	// Turns 18 one day after the event starts.
	birth := h.event.StartsAt.AddDate(-18, 0, 1)
	male := "male"
	req.Items[0].Participants[0].BirthDate = &birth
	req.Items[0].Participants[0].Gender = &male

	_, err := h.svc.Checkout(context.Background(), req)
	var verr *orderdomain.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	assert.Len(t, verr.Fields, 2)

	birth = h.event.StartsAt.AddDate(-18, 0, 0)
	female := "Female"
	req.Items[0].Participants[0].Gender = &female
	_, err = h.svc.Checkout(context.Background(), req)
	assert.NoError(t, err)
}

func TestCheckoutCapacityCountsPendingOrders(t *testing.T) {
	h := newHarness(t, nil)
	limited := fixtures.TicketType(t, h.db, h.event.ID, 75000, fixtures.Capacity(1))
	fixtures.Order(t, h.db, h.event, limited, 1, "stripe")

	_, err := h.svc.Checkout(context.Background(), h.request(limited.ID, 1))
	assert.ErrorIs(t, err, pricing.ErrCapacityExceeded)
}

func TestCheckoutVoucherErrors(t *testing.T) {
	h := newHarness(t, nil)
	fixtures.Voucher(t, h.db, h.event.OrganizerID, "USED", voucherdomain.DiscountTypeFixed, 5000, func(v *voucherdomain.Voucher) {
		max := 1
		v.MaxUses = &max
		v.CurrentUses = 1
	})

	req := h.request(h.standard.ID, 1)
	req.VoucherCode = "missing"
	_, err := h.svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, pricing.ErrVoucherNotApplicable)

	req.VoucherCode = "used"
	_, err = h.svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, pricing.ErrVoucherExhausted)
}

func TestCheckoutRejectsClosedEventAndUnconfiguredProvider(t *testing.T) {
	h := newHarness(t, nil)

	req := h.request(h.standard.ID, 1)
	req.Provider = "wallet"
	_, err := h.svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)

	require.NoError(t, h.db.Model(&eventdomain.Event{}).Where("id = ?", h.event.ID).Update("status", eventdomain.EventStatusDraft).Error)
	_, err = h.svc.Checkout(context.Background(), h.request(h.standard.ID, 1))
	assert.ErrorIs(t, err, eventdomain.ErrEventNotOpen)
	assert.Equal(t, int64(0), h.countOrders(t))
}

func TestRetryPaymentRequiresPendingOrder(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.RetryPayment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)

	seeded := fixtures.Order(t, h.db, h.event, h.standard, 1, "stripe")
	require.NoError(t, h.db.Model(&orderdomain.Order{}).Where("id = ?", seeded.Order.ID).
		Updates(map[string]any{"status": "paid", "payment_status": "paid"}).Error)

	_, err = h.svc.RetryPayment(context.Background(), seeded.Order.ID)
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotPending)

	overdue := fixtures.Order(t, h.db, h.event, h.standard, 1, "stripe", fixtures.WithExpiry(fixtures.Now.Add(-time.Minute)))
	_, err = h.svc.RetryPayment(context.Background(), overdue.Order.ID)
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotPending)
}

func TestRetryPaymentRefusesLiveSession(t *testing.T) {
	h := newHarness(t, nil)

	seeded := fixtures.Order(t, h.db, h.event, h.standard, 1, "stripe", fixtures.WithProviderReference("cs_live"))
	_, err := h.svc.RetryPayment(context.Background(), seeded.Order.ID)
	assert.ErrorIs(t, err, orderdomain.ErrPaymentInProgress)
	assert.Equal(t, 0, h.gateway.calls)

	var stored orderdomain.Order
	require.NoError(t, h.db.Where("id = ?", seeded.Order.ID).Take(&stored).Error)
	require.NotNil(t, stored.ProviderReference)
	assert.Equal(t, "cs_live", *stored.ProviderReference)
}

func TestNewOrderNumber(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		number := service.NewOrderNumber("ord", fixtures.Now)
		assert.Regexp(t, orderNumberPattern, number)
		seen[number] = struct{}{}
	}
	assert.Len(t, seen, 50)
}
