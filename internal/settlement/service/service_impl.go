package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/internal/clock"
	eventdomain "github.com/smallbiznis/eventreg/internal/event/domain"
	ledgerdomain "github.com/smallbiznis/eventreg/internal/ledger/domain"
	notificationdomain "github.com/smallbiznis/eventreg/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/pricing"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	voucherdomain "github.com/smallbiznis/eventreg/internal/voucher/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       settlementdomain.Repository
	Orders     orderdomain.Repository
	Events     eventdomain.Repository
	Payments   paymentdomain.Repository
	Vouchers   voucherdomain.Service
	Ledger     ledgerdomain.Service
	AuditSvc   auditdomain.Service           `optional:"true"`
	Dispatcher notificationdomain.Dispatcher `optional:"true"`
	Clock      clock.Clock                   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics           `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       settlementdomain.Repository
	orders     orderdomain.Repository
	events     eventdomain.Repository
	payments   paymentdomain.Repository
	vouchers   voucherdomain.Service
	ledger     ledgerdomain.Service
	auditSvc   auditdomain.Service
	dispatcher notificationdomain.Dispatcher
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
	ops        *obsmetrics.OperationsMetrics
}

func newService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("settlement.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		orders:     p.Orders,
		events:     p.Events,
		payments:   p.Payments,
		vouchers:   p.Vouchers,
		ledger:     p.Ledger,
		auditSvc:   p.AuditSvc,
		dispatcher: p.Dispatcher,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
		ops:        obsmetrics.Operations(),
	}
}

func NewService(p Params) settlementdomain.Service {
	return newService(p)
}

func NewPayoutService(p Params) settlementdomain.PayoutService {
	return newService(p)
}

// outcome carries what a transition did so side effects run after commit.
type outcome struct {
	result  *settlementdomain.TransitionResult
	changed bool
	notify  *notificationdomain.SettledEvent
	// err is a rejection whose bookkeeping (review item, cancellation) is
	// committed with the transaction.
	err error
}

// Transition moves one order to req.Target. It is the only writer of order
// payment state: the order row is locked and every write is conditional on
// the state it was read in.
func (s *Service) Transition(ctx context.Context, req settlementdomain.TransitionRequest) (*settlementdomain.TransitionResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var out outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.transitionTx(ctx, tx, req)
		return err
	})
	if err != nil {
		if errors.Is(err, settlementdomain.ErrAlreadyTerminal) {
			return out.result, err
		}
		return nil, err
	}

	s.afterCommit(ctx, req, out)
	return out.result, out.err
}

func validateRequest(req settlementdomain.TransitionRequest) error {
	if req.OrderID == nil && strings.TrimSpace(req.OrderNumber) == "" {
		return orderdomain.ErrOrderNotFound
	}
	if !req.Source.Valid() {
		return settlementdomain.ErrInvalidSource
	}
	switch req.Target {
	case orderdomain.OrderStatusPaid, orderdomain.OrderStatusCancelled, orderdomain.OrderStatusExpired:
	case orderdomain.OrderStatusRefunded:
		if req.Source != settlementdomain.SourceManual {
			return settlementdomain.ErrRefundRequiresManual
		}
	default:
		return settlementdomain.ErrInvalidTransition
	}
	return nil
}

func (s *Service) transitionTx(ctx context.Context, tx *gorm.DB, req settlementdomain.TransitionRequest) (outcome, error) {
	lockStart := time.Now()
	var (
		order *orderdomain.Order
		err   error
	)
	if req.OrderID != nil {
		order, err = s.repo.LockOrderByID(ctx, tx, *req.OrderID)
	} else {
		order, err = s.repo.LockOrderByNumber(ctx, tx, strings.TrimSpace(req.OrderNumber))
	}
	s.ops.ObserveDBLockWait(obsmetrics.LockResourceOrderByID, time.Since(lockStart))
	if err != nil {
		return outcome{}, err
	}
	if order == nil {
		return outcome{}, orderdomain.ErrOrderNotFound
	}

	out := outcome{result: &settlementdomain.TransitionResult{Order: *order, From: order.Status}}
	now := s.clock.Now().UTC()

	switch req.Target {
	case orderdomain.OrderStatusPaid:
		err = s.markPaid(ctx, tx, order, req, now, &out)
	case orderdomain.OrderStatusCancelled, orderdomain.OrderStatusExpired:
		err = s.markClosed(ctx, tx, order, req, now, &out)
	case orderdomain.OrderStatusRefunded:
		err = s.markRefunded(ctx, tx, order, req, now, &out)
	default:
		err = settlementdomain.ErrInvalidTransition
	}
	out.result.Order = *order
	if err != nil {
		return out, err
	}

	if out.changed && req.Source == settlementdomain.SourceManual {
		if err := s.auditTransition(ctx, tx, req, out.result); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (s *Service) markPaid(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, req settlementdomain.TransitionRequest, now time.Time, out *outcome) error {
	if order.Status != orderdomain.OrderStatusPending || order.PaymentStatus != orderdomain.PaymentStatusPending {
		return settlementdomain.ErrAlreadyTerminal
	}

	if detail, mismatch := amountMismatch(order, req); mismatch {
		if err := s.insertReview(ctx, tx, order, req, settlementdomain.ReviewReasonMismatch, detail); err != nil {
			return err
		}
		s.log.Warn("payment does not match order",
			zap.String("order_number", order.OrderNumber),
			zap.Any("detail", detail),
		)
		out.err = settlementdomain.ErrReconciliationMismatch
		return nil
	}

	regs, err := s.orders.ListRegistrations(ctx, tx, order.ID)
	if err != nil {
		return err
	}

	oversold, err := s.oversold(ctx, tx, regs)
	if err != nil {
		return err
	}
	if oversold {
		return s.cancelForRefund(ctx, tx, order, req, now, "capacity_exceeded", pricing.ErrCapacityExceeded, out)
	}

	if order.VoucherID != nil {
		if err := s.vouchers.Consume(ctx, tx, *order.VoucherID); err != nil {
			if errors.Is(err, voucherdomain.ErrVoucherExhausted) {
				return s.cancelForRefund(ctx, tx, order, req, now, "voucher_exhausted", voucherdomain.ErrVoucherExhausted, out)
			}
			return err
		}
	}

	ok, err := s.repo.UpdateOrderStatus(ctx, tx, order.ID, orderdomain.OrderStatusPending, settlementdomain.OrderUpdate{
		Status:        orderdomain.OrderStatusPaid,
		PaymentStatus: orderdomain.PaymentStatusPaid,
		PaymentDate:   &now,
		UpdatedAt:     now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return settlementdomain.ErrAlreadyTerminal
	}
	if _, err := s.repo.UpdateRegistrations(ctx, tx, order.ID,
		orderdomain.RegistrationStatusPending,
		orderdomain.RegistrationStatusActive,
		orderdomain.PaymentStatusPaid,
		false,
		now,
	); err != nil {
		return err
	}

	order.Status = orderdomain.OrderStatusPaid
	order.PaymentStatus = orderdomain.PaymentStatusPaid
	order.PaymentDate = &now
	order.UpdatedAt = now

	if err := s.book(ctx, tx, order, regs, settlementdomain.TransactionKindSale, now); err != nil {
		return err
	}
	out.changed = true
	out.notify = settledEvent(order, now)
	return nil
}

// cancelForRefund cancels an order whose payment was captured but cannot be
// honoured, and queues the refund for an operator.
func (s *Service) cancelForRefund(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, req settlementdomain.TransitionRequest, now time.Time, cause string, rejection error, out *outcome) error {
	ok, err := s.repo.UpdateOrderStatus(ctx, tx, order.ID, orderdomain.OrderStatusPending, settlementdomain.OrderUpdate{
		Status:         orderdomain.OrderStatusCancelled,
		PaymentStatus:  orderdomain.PaymentStatusPaid,
		PaymentDate:    &now,
		CancelledAt:    &now,
		ReviewRequired: true,
		UpdatedAt:      now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return settlementdomain.ErrAlreadyTerminal
	}
	if _, err := s.repo.UpdateRegistrations(ctx, tx, order.ID,
		orderdomain.RegistrationStatusPending,
		orderdomain.RegistrationStatusCancelled,
		orderdomain.PaymentStatusPaid,
		false,
		now,
	); err != nil {
		return err
	}

	detail := map[string]any{"cause": cause, "amount": order.Total, "currency": order.Currency}
	if err := s.insertReview(ctx, tx, order, req, settlementdomain.ReviewReasonRefundRequired, detail); err != nil {
		return err
	}
	if _, err := s.ledger.CreateEntry(ctx, tx, ledgerdomain.EntryRequest{
		OrganizerID: order.OrganizerID,
		SourceType:  ledgerdomain.SourceTypeHeldPayment,
		SourceID:    order.ID.String(),
		Currency:    order.Currency,
		OccurredAt:  now,
		Postings:    ledgerdomain.HeldPaymentPostings(order.Total),
	}); err != nil {
		return fmt.Errorf("post held payment ledger entry: %w", err)
	}

	order.Status = orderdomain.OrderStatusCancelled
	order.PaymentStatus = orderdomain.PaymentStatusPaid
	order.PaymentDate = &now
	order.CancelledAt = &now
	order.ReviewRequired = true
	order.UpdatedAt = now

	s.log.Warn("paid order cancelled, refund required",
		zap.String("order_number", order.OrderNumber),
		zap.String("cause", cause),
	)
	out.changed = true
	out.notify = settledEvent(order, now)
	out.err = rejection
	return nil
}

func (s *Service) markClosed(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, req settlementdomain.TransitionRequest, now time.Time, out *outcome) error {
	if order.Status != orderdomain.OrderStatusPending || order.PaymentStatus != orderdomain.PaymentStatusPending {
		return settlementdomain.ErrAlreadyTerminal
	}

	ok, err := s.repo.UpdateOrderStatus(ctx, tx, order.ID, orderdomain.OrderStatusPending, settlementdomain.OrderUpdate{
		Status:        req.Target,
		PaymentStatus: orderdomain.PaymentStatusFailed,
		CancelledAt:   &now,
		UpdatedAt:     now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return settlementdomain.ErrAlreadyTerminal
	}
	if _, err := s.repo.UpdateRegistrations(ctx, tx, order.ID,
		orderdomain.RegistrationStatusPending,
		orderdomain.RegistrationStatusCancelled,
		orderdomain.PaymentStatusFailed,
		false,
		now,
	); err != nil {
		return err
	}

	order.Status = req.Target
	order.PaymentStatus = orderdomain.PaymentStatusFailed
	order.CancelledAt = &now
	order.UpdatedAt = now
	out.changed = true
	out.notify = settledEvent(order, now)
	return nil
}

func (s *Service) markRefunded(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, req settlementdomain.TransitionRequest, now time.Time, out *outcome) error {
	switch {
	case order.Status == orderdomain.OrderStatusRefunded:
		return settlementdomain.ErrAlreadyTerminal
	case order.Status == orderdomain.OrderStatusPaid:
	case order.Status == orderdomain.OrderStatusCancelled && order.PaymentStatus == orderdomain.PaymentStatusPaid && order.ReviewRequired:
		return s.refundHeld(ctx, tx, order, now, out)
	default:
		return settlementdomain.ErrInvalidTransition
	}

	regs, err := s.orders.ListRegistrations(ctx, tx, order.ID)
	if err != nil {
		return err
	}

	ok, err := s.repo.UpdateOrderStatus(ctx, tx, order.ID, orderdomain.OrderStatusPaid, settlementdomain.OrderUpdate{
		Status:        orderdomain.OrderStatusRefunded,
		PaymentStatus: orderdomain.PaymentStatusRefunded,
		RefundedAt:    &now,
		UpdatedAt:     now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return settlementdomain.ErrAlreadyTerminal
	}
	refunded, err := s.repo.UpdateRegistrations(ctx, tx, order.ID,
		orderdomain.RegistrationStatusActive,
		orderdomain.RegistrationStatusRefunded,
		orderdomain.PaymentStatusRefunded,
		true,
		now,
	)
	if err != nil {
		return err
	}
	if kept := int64(len(regs)) - refunded; kept > 0 {
		s.log.Info("checked-in registrations kept on refund",
			zap.String("order_number", order.OrderNumber),
			zap.Int64("kept", kept),
		)
	}

	order.Status = orderdomain.OrderStatusRefunded
	order.PaymentStatus = orderdomain.PaymentStatusRefunded
	order.RefundedAt = &now
	order.UpdatedAt = now

	if err := s.book(ctx, tx, order, regs, settlementdomain.TransactionKindRefund, now); err != nil {
		return err
	}
	out.changed = true
	out.notify = settledEvent(order, now)
	return nil
}

// refundHeld returns a payment captured for an order cancelled at settlement.
// No sale was booked for it, so the organizer's transactions are untouched and
// only the held amount leaves cash.
func (s *Service) refundHeld(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, now time.Time, out *outcome) error {
	ok, err := s.repo.UpdateOrderStatus(ctx, tx, order.ID, orderdomain.OrderStatusCancelled, settlementdomain.OrderUpdate{
		Status:        orderdomain.OrderStatusRefunded,
		PaymentStatus: orderdomain.PaymentStatusRefunded,
		RefundedAt:    &now,
		UpdatedAt:     now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return settlementdomain.ErrAlreadyTerminal
	}
	if _, err := s.repo.UpdateRegistrations(ctx, tx, order.ID,
		orderdomain.RegistrationStatusCancelled,
		orderdomain.RegistrationStatusCancelled,
		orderdomain.PaymentStatusRefunded,
		false,
		now,
	); err != nil {
		return err
	}
	if _, err := s.ledger.CreateEntry(ctx, tx, ledgerdomain.EntryRequest{
		OrganizerID: order.OrganizerID,
		SourceType:  ledgerdomain.SourceTypeRefund,
		SourceID:    order.ID.String(),
		Currency:    order.Currency,
		OccurredAt:  now,
		Postings:    ledgerdomain.HeldRefundPostings(order.Total),
	}); err != nil {
		return fmt.Errorf("post held refund ledger entry: %w", err)
	}

	order.Status = orderdomain.OrderStatusRefunded
	order.PaymentStatus = orderdomain.PaymentStatusRefunded
	order.RefundedAt = &now
	order.UpdatedAt = now
	out.changed = true
	out.notify = settledEvent(order, now)
	return nil
}

// oversold re-checks capacity against active registrations while holding the
// ticket type rows.
func (s *Service) oversold(ctx context.Context, tx *gorm.DB, regs []orderdomain.Registration) (bool, error) {
	wanted := map[uuid.UUID]int{}
	ids := make([]uuid.UUID, 0, len(regs))
	for _, reg := range regs {
		if _, ok := wanted[reg.TicketTypeID]; !ok {
			ids = append(ids, reg.TicketTypeID)
		}
		wanted[reg.TicketTypeID]++
	}

	lockStart := time.Now()
	caps, err := s.repo.LockTicketCapacity(ctx, tx, ids)
	s.ops.ObserveDBLockWait(obsmetrics.LockResourceTicketCapacity, time.Since(lockStart))
	if err != nil {
		return false, err
	}
	sold, err := s.events.CountSold(ctx, tx, ids)
	if err != nil {
		return false, err
	}
	for id, n := range wanted {
		limit := caps[id]
		if limit != nil && sold[id]+n > *limit {
			return true, nil
		}
	}
	return false, nil
}

func amountMismatch(order *orderdomain.Order, req settlementdomain.TransitionRequest) (map[string]any, bool) {
	detail := map[string]any{
		"expected_amount":   order.Total,
		"expected_currency": order.Currency,
	}
	mismatch := false
	if req.Amount != nil {
		detail["amount"] = *req.Amount
		if *req.Amount != order.Total {
			mismatch = true
		}
	}
	if req.Currency != nil {
		detail["currency"] = *req.Currency
		if settlementdomain.NormalizeCurrency(*req.Currency) != settlementdomain.NormalizeCurrency(order.Currency) {
			mismatch = true
		}
	}
	return detail, mismatch
}

// book records the commission split and posts the matching ledger entry.
func (s *Service) book(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, regs []orderdomain.Registration, kind settlementdomain.TransactionKind, now time.Time) error {
	amounts := splitOrder(order, regs)
	txn := settlementdomain.Transaction{
		ID:          s.genID.Generate(),
		OrderID:     order.ID,
		OrganizerID: order.OrganizerID,
		EventID:     order.EventID,
		Kind:        kind,
		Gross:       amounts.Gross,
		PlatformFee: amounts.PlatformFee,
		Net:         amounts.Net,
		Currency:    settlementdomain.NormalizeCurrency(order.Currency),
		OccurredAt:  now,
	}
	if _, err := s.repo.InsertTransaction(ctx, tx, &txn); err != nil {
		return fmt.Errorf("insert %s transaction: %w", kind, err)
	}

	sourceType := ledgerdomain.SourceTypeSale
	postings := ledgerdomain.SalePostings(amounts)
	if kind == settlementdomain.TransactionKindRefund {
		sourceType = ledgerdomain.SourceTypeRefund
		postings = ledgerdomain.RefundPostings(amounts)
	}
	if _, err := s.ledger.CreateEntry(ctx, tx, ledgerdomain.EntryRequest{
		OrganizerID: order.OrganizerID,
		SourceType:  sourceType,
		SourceID:    order.ID.String(),
		Currency:    order.Currency,
		OccurredAt:  now,
		Postings:    postings,
	}); err != nil {
		return fmt.Errorf("post %s ledger entry: %w", kind, err)
	}
	return nil
}

// splitOrder derives the organizer share: the platform keeps the resolved
// per-ticket fees and tax is held separately.
func splitOrder(order *orderdomain.Order, regs []orderdomain.Registration) ledgerdomain.Amounts {
	var fee int64
	for _, reg := range regs {
		fee += reg.PlatformFee
	}
	if fee > order.Total-order.Tax {
		fee = order.Total - order.Tax
	}
	return ledgerdomain.Amounts{
		Gross:       order.Total,
		PlatformFee: fee,
		Tax:         order.Tax,
		Net:         order.Total - order.Tax - fee,
	}
}

func (s *Service) insertReview(ctx context.Context, db *gorm.DB, order *orderdomain.Order, req settlementdomain.TransitionRequest, reason settlementdomain.ReviewReason, detail map[string]any) error {
	item := &settlementdomain.ReviewItem{
		ID:        s.genID.Generate(),
		Reason:    reason,
		Detail:    datatypes.JSONMap(detail),
		Status:    settlementdomain.ReviewStatusOpen,
		CreatedAt: s.clock.Now().UTC(),
	}
	if order != nil {
		id, number, organizerID := order.ID, order.OrderNumber, order.OrganizerID
		item.OrderID = &id
		item.OrderNumber = &number
		item.OrganizerID = &organizerID
	}
	if req.Provider != "" {
		provider := req.Provider
		item.Provider = &provider
	}
	if req.ProviderEventID != "" {
		eventID := req.ProviderEventID
		item.ProviderEventID = &eventID
	}
	if err := s.repo.InsertReviewItem(ctx, db, item); err != nil {
		return fmt.Errorf("insert review item: %w", err)
	}
	s.ops.IncReviewItem(string(reason))
	return nil
}

func (s *Service) auditTransition(ctx context.Context, tx *gorm.DB, req settlementdomain.TransitionRequest, result *settlementdomain.TransitionResult) error {
	if s.auditSvc == nil {
		return nil
	}
	actorType, actorID := splitActor(req.Actor)
	orderID := result.Order.ID.String()
	organizerID := result.Order.OrganizerID
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		OrganizerID: &organizerID,
		ActorType:   actorType,
		ActorID:     actorID,
		Action:      "order." + string(req.Target),
		TargetType:  "order",
		TargetID:    &orderID,
		Metadata: map[string]any{
			"order_number": result.Order.OrderNumber,
			"from":         string(result.From),
			"to":           string(result.Order.Status),
			"source":       string(req.Source),
			"reason":       req.Reason,
		},
	})
}

func (s *Service) afterCommit(ctx context.Context, req settlementdomain.TransitionRequest, out outcome) {
	if !out.changed || out.result == nil {
		return
	}
	s.ops.IncOrderTransition(string(out.result.From), string(out.result.Order.Status), string(req.Source))
	s.log.Info("order transitioned",
		zap.String("order_number", out.result.Order.OrderNumber),
		zap.String("from", string(out.result.From)),
		zap.String("to", string(out.result.Order.Status)),
		zap.String("source", string(req.Source)),
	)
	if s.dispatcher != nil && out.notify != nil {
		s.dispatcher.OrderSettled(ctx, *out.notify)
	}
}

func settledEvent(order *orderdomain.Order, now time.Time) *notificationdomain.SettledEvent {
	return &notificationdomain.SettledEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OrganizerID: order.OrganizerID,
		EventID:     order.EventID,
		Outcome:     string(order.Status),
		Email:       order.BuyerEmail,
		BuyerName:   order.BuyerName,
		Total:       order.Total,
		Currency:    order.Currency,
		OccurredAt:  now,
	}
}

// splitActor parses "type:id" actor strings such as "admin:42".
func splitActor(actor string) (string, *string) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return string(auditdomain.ActorTypeSystem), nil
	}
	kind, id, found := strings.Cut(actor, ":")
	if !found || strings.TrimSpace(id) == "" {
		return kind, nil
	}
	id = strings.TrimSpace(id)
	return kind, &id
}
