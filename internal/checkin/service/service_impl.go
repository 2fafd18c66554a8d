package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"github.com/smallbiznis/eventreg/internal/checkin/domain"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/config"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const qrSize = 256

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Cfg        config.Config
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	signer     *domain.TicketSigner
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	log := p.Log.Named("checkin.service")
	signer := domain.NewTicketSigner(p.Cfg.TicketSigningSecret)
	if signer == nil {
		log.Warn("ticket signing secret not configured, QR tickets disabled")
	}
	return &Service{
		db:         p.DB,
		log:        log,
		genID:      p.GenID,
		repo:       p.Repo,
		signer:     signer,
		clock:      c,
		obsMetrics: p.ObsMetrics,
	}
}

// CheckIn admits an active, paid registration exactly once. Every attempt,
// rejected or not, is recorded as a check-in event.
func (s *Service) CheckIn(ctx context.Context, req domain.CheckInRequest) (*domain.CheckInResult, error) {
	method := req.Method
	if method == "" {
		method = domain.MethodManual
		if strings.TrimSpace(req.TicketCode) != "" {
			method = domain.MethodQR
		}
	}
	if !method.Valid() {
		return nil, domain.ErrInvalidMethod
	}

	registrationID, err := s.resolveRegistration(req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTicketCode) {
			s.recordAttempt(ctx, nil, method, req.ScannerID, domain.OutcomeInvalidCode)
		}
		return nil, err
	}

	now := s.clock.Now().UTC()
	var result *domain.CheckInResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.MarkCheckedIn(ctx, tx, registrationID, now)
		if err != nil {
			return err
		}
		reg, err := s.repo.FindRegistration(ctx, tx, registrationID)
		if err != nil {
			return err
		}
		if !ok {
			return rejection(reg)
		}
		if err := s.repo.InsertEvent(ctx, tx, s.newEvent(&registrationID, method, req.ScannerID, domain.OutcomeCheckedIn, now)); err != nil {
			return fmt.Errorf("record check-in: %w", err)
		}
		result = &domain.CheckInResult{Registration: *reg, CheckedInAt: now}
		return nil
	})
	if err != nil {
		if outcome, rejected := outcomeFor(err); rejected {
			s.recordAttempt(ctx, &registrationID, method, req.ScannerID, outcome)
		}
		return nil, err
	}

	s.obsMetrics.RecordCheckIn(ctx, string(method), string(domain.OutcomeCheckedIn))
	s.log.Info("registration checked in",
		zap.String("registration_number", result.Registration.RegistrationNumber),
		zap.String("method", string(method)),
	)
	return result, nil
}

func (s *Service) resolveRegistration(req domain.CheckInRequest) (uuid.UUID, error) {
	if code := strings.TrimSpace(req.TicketCode); code != "" {
		return s.signer.Verify(code)
	}
	if req.RegistrationID == nil || *req.RegistrationID == uuid.Nil {
		return uuid.Nil, domain.ErrNotFound
	}
	return *req.RegistrationID, nil
}

func rejection(reg *orderdomain.Registration) error {
	switch {
	case reg == nil:
		return domain.ErrNotFound
	case reg.CheckInStatus == orderdomain.CheckInStatusCheckedIn:
		return domain.ErrAlreadyCheckedIn
	default:
		return domain.ErrNotPaid
	}
}

func outcomeFor(err error) (domain.Outcome, bool) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.OutcomeNotFound, true
	case errors.Is(err, domain.ErrAlreadyCheckedIn):
		return domain.OutcomeAlreadyCheckedIn, true
	case errors.Is(err, domain.ErrNotPaid):
		return domain.OutcomeNotPaid, true
	}
	return "", false
}

func (s *Service) recordAttempt(ctx context.Context, registrationID *uuid.UUID, method domain.Method, scannerID string, outcome domain.Outcome) {
	s.obsMetrics.RecordCheckIn(ctx, string(method), string(outcome))
	evt := s.newEvent(registrationID, method, scannerID, outcome, s.clock.Now().UTC())
	if err := s.repo.InsertEvent(ctx, s.db, evt); err != nil {
		s.log.Warn("failed to record check-in attempt", zap.String("outcome", string(outcome)), zap.Error(err))
	}
}

func (s *Service) newEvent(registrationID *uuid.UUID, method domain.Method, scannerID string, outcome domain.Outcome, at time.Time) *domain.Event {
	evt := &domain.Event{
		ID:             s.genID.Generate(),
		RegistrationID: registrationID,
		Method:         method,
		Outcome:        outcome,
		CreatedAt:      at,
	}
	if scannerID = strings.TrimSpace(scannerID); scannerID != "" {
		evt.ScannerID = &scannerID
	}
	return evt
}

func (s *Service) IssueTicket(ctx context.Context, registrationID uuid.UUID) (*domain.Ticket, []byte, error) {
	reg, err := s.repo.FindRegistration(ctx, s.db, registrationID)
	if err != nil {
		return nil, nil, err
	}
	if reg == nil {
		return nil, nil, domain.ErrNotFound
	}
	if reg.PaymentStatus != orderdomain.PaymentStatusPaid || reg.Status != orderdomain.RegistrationStatusActive {
		return nil, nil, domain.ErrNotPaid
	}

	ticket, err := s.ticket(*reg)
	if err != nil {
		return nil, nil, err
	}
	png, err := qrcode.Encode(ticket.Code, qrcode.Medium, qrSize)
	if err != nil {
		return nil, nil, fmt.Errorf("render ticket qr: %w", err)
	}
	return ticket, png, nil
}

func (s *Service) OrderTickets(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, error) {
	regs, err := s.repo.ListRegistrations(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, domain.ErrNotFound
	}

	tickets := make([]domain.Ticket, 0, len(regs))
	for _, reg := range regs {
		if reg.PaymentStatus != orderdomain.PaymentStatusPaid || reg.Status != orderdomain.RegistrationStatusActive {
			continue
		}
		ticket, err := s.ticket(reg)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	if len(tickets) == 0 {
		return nil, domain.ErrNotPaid
	}
	return tickets, nil
}

func (s *Service) ticket(reg orderdomain.Registration) (*domain.Ticket, error) {
	code, err := s.signer.Sign(reg.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Ticket{
		RegistrationID:     reg.ID,
		RegistrationNumber: reg.RegistrationNumber,
		ParticipantName:    reg.ParticipantName,
		TicketTypeID:       reg.TicketTypeID,
		Code:               code,
		CheckInStatus:      string(reg.CheckInStatus),
	}, nil
}
