package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/pricing"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	voucherdomain "github.com/smallbiznis/eventreg/internal/voucher/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	return s.processEvent(ctx, event, settlementdomain.SourceWebhook)
}

func (s *Service) ProcessPolledEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	if event != nil && strings.TrimSpace(event.ProviderEventID) == "" {
		event.ProviderEventID = fmt.Sprintf("poll:%s:%s", event.ProviderReference, event.Outcome)
	}
	return s.processEvent(ctx, event, settlementdomain.SourcePoll)
}

// processEvent records the delivery once, resolves the order it refers to and
// applies the outcome. A delivery is marked processed only after its effect
// is committed, so a failed attempt is retried by the provider.
func (s *Service) processEvent(ctx context.Context, event *paymentdomain.PaymentEvent, source settlementdomain.Source) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.Provider == "" || event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if strings.TrimSpace(event.OrderNumber) == "" && strings.TrimSpace(event.ProviderReference) == "" {
		return paymentdomain.ErrInvalidEvent
	}

	record, duplicate, err := s.recordEvent(ctx, event)
	if err != nil {
		return err
	}
	if duplicate {
		s.ops.IncDuplicateCallback(event.Provider)
		s.log.Info("duplicate payment event",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return nil
	}

	err = s.applyEvent(ctx, event, source)
	if err != nil && !errors.Is(err, settlementdomain.ErrReconciliationMismatch) {
		return err
	}

	if markErr := s.payments.MarkProcessed(ctx, s.db, record.ID, s.clock.Now().UTC()); markErr != nil {
		return fmt.Errorf("mark payment event processed: %w", markErr)
	}
	s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, string(event.Outcome))
	return err
}

func (s *Service) recordEvent(ctx context.Context, event *paymentdomain.PaymentEvent) (*paymentdomain.EventRecord, bool, error) {
	payload := datatypes.JSON(event.RawPayload)
	if len(payload) == 0 || !json.Valid(payload) {
		payload = datatypes.JSON(`{}`)
	}
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		Outcome:         event.Outcome,
		Payload:         payload,
		ReceivedAt:      s.clock.Now().UTC(),
	}
	if number := strings.TrimSpace(event.OrderNumber); number != "" {
		record.OrderNumber = &number
	}

	inserted, err := s.payments.InsertEvent(ctx, s.db, record)
	if err != nil {
		return nil, false, fmt.Errorf("record payment event: %w", err)
	}
	if inserted {
		return record, false, nil
	}

	existing, err := s.payments.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, paymentdomain.ErrInvalidEvent
	}
	return existing, existing.ProcessedAt != nil, nil
}

func (s *Service) applyEvent(ctx context.Context, event *paymentdomain.PaymentEvent, source settlementdomain.Source) error {
	order, err := s.findEventOrder(ctx, event)
	if err != nil {
		return err
	}
	req := settlementdomain.TransitionRequest{
		Source:          source,
		Actor:           string(auditdomain.ActorTypeProvider) + ":" + event.Provider,
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
	}

	if order == nil {
		return s.insertReview(ctx, s.db, nil, req, settlementdomain.ReviewReasonUnknownOrder, eventDetail(event))
	}
	if event.OrganizerID != uuid.Nil && event.OrganizerID != order.OrganizerID {
		detail := eventDetail(event)
		detail["organizer_id"] = event.OrganizerID.String()
		detail["expected_organizer_id"] = order.OrganizerID.String()
		if err := s.insertReview(ctx, s.db, order, req, settlementdomain.ReviewReasonMismatch, detail); err != nil {
			return err
		}
		return settlementdomain.ErrReconciliationMismatch
	}

	switch event.Outcome {
	case paymentdomain.OutcomeSucceeded:
		req.Target = orderdomain.OrderStatusPaid
		amount := event.Amount
		req.Amount = &amount
		if currency := strings.TrimSpace(event.Currency); currency != "" {
			req.Currency = &currency
		}
	case paymentdomain.OutcomeFailed:
		req.Target = orderdomain.OrderStatusCancelled
	case paymentdomain.OutcomeExpired:
		req.Target = orderdomain.OrderStatusExpired
	case paymentdomain.OutcomeRefunded:
		// Refunds move money outside the order flow; an operator confirms them.
		return s.insertReview(ctx, s.db, order, req, settlementdomain.ReviewReasonProviderRefund, eventDetail(event))
	default:
		return paymentdomain.ErrInvalidEvent
	}
	req.OrderID = &order.ID

	result, err := s.Transition(ctx, req)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, settlementdomain.ErrAlreadyTerminal):
		return s.handleTerminal(ctx, event, req, result)
	case errors.Is(err, pricing.ErrCapacityExceeded), errors.Is(err, voucherdomain.ErrVoucherExhausted):
		// The order was cancelled and queued for refund in the same commit.
		return nil
	default:
		return err
	}
}

// handleTerminal classifies a callback for an order that already settled.
func (s *Service) handleTerminal(ctx context.Context, event *paymentdomain.PaymentEvent, req settlementdomain.TransitionRequest, result *settlementdomain.TransitionResult) error {
	if result == nil || req.Target != orderdomain.OrderStatusPaid {
		s.log.Info("payment event ignored for settled order",
			zap.String("provider", event.Provider),
			zap.String("outcome", string(event.Outcome)),
		)
		return nil
	}

	order := result.Order
	switch {
	case order.PaymentStatus == orderdomain.PaymentStatusPaid || order.PaymentStatus == orderdomain.PaymentStatusRefunded:
		if secondCapture(event, &order) {
			detail := eventDetail(event)
			detail["order_status"] = string(order.Status)
			detail["settled_provider"] = order.Provider
			if order.ProviderReference != nil {
				detail["settled_reference"] = *order.ProviderReference
			}
			s.log.Warn("second capture for settled order",
				zap.String("order_number", order.OrderNumber),
				zap.String("provider", event.Provider),
				zap.String("provider_reference", event.ProviderReference),
			)
			return s.insertReview(ctx, s.db, &order, req, settlementdomain.ReviewReasonDoublePayment, detail)
		}
		s.ops.IncDuplicateCallback(event.Provider)
		return s.auditDuplicate(ctx, event, &order)
	case order.Status == orderdomain.OrderStatusExpired || order.Status == orderdomain.OrderStatusCancelled:
		s.log.Warn("late payment for settled order",
			zap.String("order_number", order.OrderNumber),
			zap.String("order_status", string(order.Status)),
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		detail := eventDetail(event)
		detail["order_status"] = string(order.Status)
		return s.insertReview(ctx, s.db, &order, req, settlementdomain.ReviewReasonLatePayment, detail)
	default:
		return nil
	}
}

// secondCapture reports whether a success callback names a payment other than
// the one the order settled with.
func secondCapture(event *paymentdomain.PaymentEvent, order *orderdomain.Order) bool {
	ref := strings.TrimSpace(event.ProviderReference)
	if ref == "" {
		return false
	}
	if event.Provider != "" && !strings.EqualFold(event.Provider, order.Provider) {
		return true
	}
	return order.ProviderReference == nil || strings.TrimSpace(*order.ProviderReference) != ref
}

func (s *Service) auditDuplicate(ctx context.Context, event *paymentdomain.PaymentEvent, order *orderdomain.Order) error {
	if s.auditSvc == nil {
		return nil
	}
	provider := event.Provider
	orderID := order.ID.String()
	return s.auditSvc.AuditLog(ctx, &order.OrganizerID, string(auditdomain.ActorTypeProvider), &provider,
		"payment.duplicate", "order", &orderID,
		map[string]any{
			"order_number":      order.OrderNumber,
			"provider_event_id": event.ProviderEventID,
		},
	)
}

func (s *Service) findEventOrder(ctx context.Context, event *paymentdomain.PaymentEvent) (*orderdomain.Order, error) {
	if number := strings.TrimSpace(event.OrderNumber); number != "" {
		order, err := s.orders.FindByNumber(ctx, s.db, number)
		if err != nil || order != nil {
			return order, err
		}
	}
	if ref := strings.TrimSpace(event.ProviderReference); ref != "" {
		return s.orders.FindByProviderReference(ctx, s.db, event.Provider, ref)
	}
	return nil, nil
}

func eventDetail(event *paymentdomain.PaymentEvent) map[string]any {
	detail := map[string]any{
		"outcome":  string(event.Outcome),
		"amount":   event.Amount,
		"currency": event.Currency,
	}
	if event.OrderNumber != "" {
		detail["order_number"] = event.OrderNumber
	}
	if event.ProviderReference != "" {
		detail["provider_reference"] = event.ProviderReference
	}
	return detail
}
