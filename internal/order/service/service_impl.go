package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/clock"
	commissiondomain "github.com/smallbiznis/eventreg/internal/commission/domain"
	"github.com/smallbiznis/eventreg/internal/config"
	eventdomain "github.com/smallbiznis/eventreg/internal/event/domain"
	"github.com/smallbiznis/eventreg/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/pricing"
	taxdomain "github.com/smallbiznis/eventreg/internal/tax/domain"
	voucherdomain "github.com/smallbiznis/eventreg/internal/voucher/domain"
	pkgdb "github.com/smallbiznis/eventreg/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxOrderNumberAttempts = 5

const (
	checkoutOutcomeCreated     = "created"
	checkoutOutcomeRejected    = "rejected"
	checkoutOutcomeUnavailable = "provider_unavailable"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        orderdomain.Repository
	Events      eventdomain.Service
	Vouchers    voucherdomain.Service
	Commissions commissiondomain.Resolver
	Tax         taxdomain.TaxResolver
	Gateways    paymentdomain.Gateways
	Checkout    *config.CheckoutConfigHolder
	Clock       clock.Clock      `optional:"true"`
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        orderdomain.Repository
	events      eventdomain.Service
	vouchers    voucherdomain.Service
	commissions commissiondomain.Resolver
	tax         taxdomain.TaxResolver
	gateways    paymentdomain.Gateways
	checkout    *config.CheckoutConfigHolder
	calculator  *pricing.Calculator
	clock       clock.Clock
	metrics     *metrics.Metrics
}

func NewService(p Params) orderdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("order.service"),
		repo:        p.Repo,
		events:      p.Events,
		vouchers:    p.Vouchers,
		commissions: p.Commissions,
		tax:         p.Tax,
		gateways:    p.Gateways,
		checkout:    p.Checkout,
		calculator:  pricing.NewCalculator(),
		clock:       clk,
		metrics:     p.Metrics,
	}
}

func (s *Service) Checkout(ctx context.Context, req orderdomain.CheckoutRequest) (*orderdomain.CheckoutResult, error) {
	cfg := s.checkout.Get()
	req = normalizeRequest(req)

	result, gateway, err := s.buildOrder(ctx, req, cfg)
	if err != nil {
		s.metrics.RecordCheckout(ctx, req.Provider, checkoutOutcomeRejected)
		return nil, err
	}

	if err := s.persist(ctx, result, cfg); err != nil {
		s.metrics.RecordCheckout(ctx, req.Provider, checkoutOutcomeRejected)
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_id", result.Order.ID.String()),
		zap.String("order_number", result.Order.OrderNumber),
		zap.String("provider", result.Order.Provider),
		zap.Int64("total", result.Order.Total),
		zap.Int("tickets", len(result.Registrations)),
	)

	if err := s.initiate(ctx, gateway, result); err != nil {
		s.metrics.RecordCheckout(ctx, req.Provider, checkoutOutcomeUnavailable)
		return result, err
	}
	s.metrics.RecordCheckout(ctx, req.Provider, checkoutOutcomeCreated)
	return result, nil
}

// buildOrder prices the request and returns the unsaved order together with
// the gateway that will collect it.
func (s *Service) buildOrder(ctx context.Context, req orderdomain.CheckoutRequest, cfg config.CheckoutConfig) (*orderdomain.CheckoutResult, paymentdomain.Gateway, error) {
	if err := validateRequest(req, cfg, s.gateways.ProviderExists); err != nil {
		return nil, nil, err
	}

	event, err := s.events.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, nil, err
	}
	if event.Status != eventdomain.EventStatusPublished {
		return nil, nil, eventdomain.ErrEventNotOpen
	}

	ids := make([]uuid.UUID, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.TicketTypeID)
	}
	ticketTypes, err := s.events.GetTicketTypes(ctx, event.ID, ids)
	if err != nil {
		return nil, nil, err
	}
	if err := validateParticipants(req, ticketTypes, event.StartsAt); err != nil {
		return nil, nil, err
	}

	var voucher *voucherdomain.Voucher
	if req.VoucherCode != "" {
		voucher, err = s.vouchers.Lookup(ctx, event.OrganizerID, req.VoucherCode)
		if errors.Is(err, voucherdomain.ErrVoucherNotFound) {
			return nil, nil, pricing.ErrVoucherNotApplicable
		}
		if err != nil {
			return nil, nil, err
		}
	}

	reserved, err := s.events.ReservedCounts(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	lines := make([]pricing.LineInput, 0, len(req.Items))
	for _, item := range req.Items {
		tt := ticketTypes[item.TicketTypeID]
		lines = append(lines, pricing.LineInput{
			TicketType: tt,
			Quantity:   len(item.Participants),
			Reserved:   reserved[tt.ID],
		})
	}
	cart, err := s.calculator.PriceCart(pricing.CartInput{
		EventID:     event.ID,
		OrganizerID: event.OrganizerID,
		Lines:       lines,
		Voucher:     voucher,
		EvaluatedAt: now,
	})
	if err != nil {
		return nil, nil, err
	}

	gateway, err := s.gateways.Gateway(ctx, event.OrganizerID, req.Provider)
	if err != nil {
		return nil, nil, err
	}

	orderID := uuid.New()
	regs, platformFees, err := s.buildRegistrations(ctx, orderID, event, req, cart, voucher, cfg, now)
	if err != nil {
		return nil, nil, err
	}

	fees := int64(0)
	if cfg.PassFeesToBuyer {
		fees = platformFees
	}

	breakdown, err := s.tax.Compute(ctx, event.OrganizerID, cart.Subtotal)
	if err != nil {
		return nil, nil, err
	}

	total := cart.Gross - cart.Discount + fees + breakdown.Tax
	if total <= 0 {
		verr := &orderdomain.ValidationError{}
		verr.Add("items", "order total must be positive")
		return nil, nil, verr
	}

	order := orderdomain.Order{
		ID:             orderID,
		OrganizerID:    event.OrganizerID,
		EventID:        event.ID,
		BuyerName:      req.BuyerName,
		BuyerEmail:     req.BuyerEmail,
		Subtotal:       cart.Gross,
		Discount:       cart.Discount,
		Fees:           fees,
		Tax:            breakdown.Tax,
		Total:          total,
		Currency:       event.Currency,
		Status:         orderdomain.OrderStatusPending,
		PaymentStatus:  orderdomain.PaymentStatusPending,
		PaymentMethod:  req.PaymentMethod,
		Provider:       req.Provider,
		PaymentPayload: taxPayload(breakdown),
		VoucherID:      cart.VoucherID,
		ExpiresAt:      now.Add(cfg.ExpiryFor(req.Provider)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	return &orderdomain.CheckoutResult{
		Order:         order,
		Registrations: regs,
		Payment:       orderdomain.PaymentInstructions{ExpiresAt: order.ExpiresAt},
	}, gateway, nil
}

// buildRegistrations creates one registration per participant, spreading the
// line discount across units and resolving the commission per ticket type.
func (s *Service) buildRegistrations(
	ctx context.Context,
	orderID uuid.UUID,
	event *eventdomain.Event,
	req orderdomain.CheckoutRequest,
	cart pricing.PricedCart,
	voucher *voucherdomain.Voucher,
	cfg config.CheckoutConfig,
	now time.Time,
) ([]orderdomain.Registration, int64, error) {
	resolutions := map[uuid.UUID]commissiondomain.Resolution{}
	regs := make([]orderdomain.Registration, 0, req.TicketCount())
	var platformFees int64

	for i, item := range req.Items {
		line := cart.Lines[i]
		res, ok := resolutions[line.TicketTypeID]
		if !ok {
			var err error
			res, err = s.commissions.Resolve(ctx, event.ID, line.TicketTypeID, cfg.PlatformCommission)
			if err != nil {
				return nil, 0, err
			}
			resolutions[line.TicketTypeID] = res
		}

		discounts := line.UnitDiscounts()
		for j, p := range item.Participants {
			amountPaid := line.UnitPrice - discounts[j]
			fee := res.Split(amountPaid, 1).PlatformFee
			platformFees += fee

			reg := orderdomain.Registration{
				ID:               uuid.New(),
				OrderID:          orderID,
				EventID:          event.ID,
				TicketTypeID:     line.TicketTypeID,
				ParticipantName:  p.Name,
				ParticipantEmail: p.Email,
				Gender:           p.Gender,
				BirthDate:        p.BirthDate,
				UnitPrice:        line.UnitPrice,
				AmountPaid:       amountPaid,
				DiscountAmount:   discounts[j],
				PlatformFee:      fee,
				Status:           orderdomain.RegistrationStatusPending,
				PaymentStatus:    orderdomain.PaymentStatusPending,
				CheckInStatus:    orderdomain.CheckInStatusNotCheckedIn,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if p.Phone != "" {
				phone := p.Phone
				reg.ParticipantPhone = &phone
			}
			if voucher != nil && discounts[j] > 0 {
				code := voucher.Code
				reg.VoucherCode = &code
			}
			regs = append(regs, reg)
		}
	}
	return regs, platformFees, nil
}

// persist assigns an order number and writes the order with its
// registrations in one transaction, retrying on number collisions.
func (s *Service) persist(ctx context.Context, result *orderdomain.CheckoutResult, cfg config.CheckoutConfig) error {
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		number := NewOrderNumber(cfg.OrderNumberPrefix, result.Order.CreatedAt)
		exists, err := s.repo.OrderNumberExists(ctx, s.db, number)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		result.Order.OrderNumber = number
		for i := range result.Registrations {
			result.Registrations[i].RegistrationNumber = registrationNumber(number, i+1)
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			order := result.Order
			if err := s.repo.InsertOrder(ctx, tx, &order); err != nil {
				return err
			}
			return s.repo.InsertRegistrations(ctx, tx, result.Registrations)
		})
		if err == nil {
			return nil
		}
		if !pkgdb.IsDuplicateKeyErr(err) {
			return err
		}
		s.log.Warn("order number collision, retrying", zap.String("order_number", number), zap.Int("attempt", attempt+1))
	}
	return orderdomain.ErrOrderNumberExhausted
}

// initiate asks the provider for payment instructions. Failures leave the
// order pending without a provider reference.
func (s *Service) initiate(ctx context.Context, gateway paymentdomain.Gateway, result *orderdomain.CheckoutResult) error {
	order := &result.Order
	res, err := gateway.Initiate(ctx, paymentdomain.InitiateRequest{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      order.Total,
		Currency:    order.Currency,
		BuyerName:   order.BuyerName,
		BuyerEmail:  order.BuyerEmail,
		Description: fmt.Sprintf("%d ticket(s) %s", len(result.Registrations), order.OrderNumber),
		ExpiresAt:   order.ExpiresAt,
	})
	if err != nil {
		s.log.Warn("payment initiation failed",
			zap.String("order_number", order.OrderNumber),
			zap.String("provider", order.Provider),
			zap.Error(err),
		)
		if errors.Is(err, paymentdomain.ErrProviderUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", paymentdomain.ErrProviderUnavailable, err)
	}

	expiresAt := order.ExpiresAt
	if !res.ExpiresAt.IsZero() && res.ExpiresAt.Before(expiresAt) {
		expiresAt = res.ExpiresAt
	}
	payload := paymentPayload(order.PaymentPayload, res)
	now := s.clock.Now()

	ok, err := s.repo.SetPaymentReference(ctx, s.db, order.ID, res.ProviderReference, payload, expiresAt, now)
	if err != nil {
		return err
	}
	if !ok {
		return orderdomain.ErrOrderNotPending
	}

	reference := res.ProviderReference
	order.ProviderReference = &reference
	order.PaymentPayload = payload
	order.ExpiresAt = expiresAt
	order.UpdatedAt = now
	result.Payment = orderdomain.PaymentInstructions{
		ProviderReference: &reference,
		RedirectURL:       res.RedirectURL,
		Display:           res.Display,
		ExpiresAt:         expiresAt,
	}
	return nil
}

func (s *Service) RetryPayment(ctx context.Context, orderID uuid.UUID) (*orderdomain.CheckoutResult, error) {
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	if order.Status != orderdomain.OrderStatusPending || order.PaymentStatus != orderdomain.PaymentStatusPending {
		return nil, orderdomain.ErrOrderNotPending
	}
	if !s.clock.Now().Before(order.ExpiresAt) {
		return nil, orderdomain.ErrOrderNotPending
	}
	// A second live session could be paid alongside the first.
	if order.ProviderReference != nil && strings.TrimSpace(*order.ProviderReference) != "" {
		return nil, orderdomain.ErrPaymentInProgress
	}

	regs, err := s.repo.ListRegistrations(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	gateway, err := s.gateways.Gateway(ctx, order.OrganizerID, order.Provider)
	if err != nil {
		return nil, err
	}

	result := &orderdomain.CheckoutResult{
		Order:         *order,
		Registrations: regs,
		Payment:       orderdomain.PaymentInstructions{ExpiresAt: order.ExpiresAt},
	}
	if err := s.initiate(ctx, gateway, result); err != nil {
		s.metrics.RecordCheckout(ctx, order.Provider, checkoutOutcomeUnavailable)
		return result, err
	}
	s.log.Info("payment re-initiated", zap.String("order_number", order.OrderNumber))
	return result, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (*orderdomain.Order, []orderdomain.Registration, error) {
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, orderdomain.ErrOrderNotFound
	}
	regs, err := s.repo.ListRegistrations(ctx, s.db, order.ID)
	if err != nil {
		return nil, nil, err
	}
	return order, regs, nil
}

func taxPayload(b taxdomain.Breakdown) datatypes.JSONMap {
	if b.DefinitionID == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap{
		"tax": map[string]any{
			"definition_id": b.DefinitionID.String(),
			"mode":          string(b.Mode),
			"rate":          b.Rate.String(),
			"tax":           b.Tax,
			"included":      b.Included,
		},
	}
}

func paymentPayload(base datatypes.JSONMap, res *paymentdomain.InitiateResult) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range base {
		out[k] = v
	}
	if res.RedirectURL != nil {
		out["redirect_url"] = *res.RedirectURL
	}
	if len(res.Display) > 0 {
		out["display"] = res.Display
	}
	return out
}
