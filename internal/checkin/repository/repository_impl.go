package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/checkin/domain"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindRegistration(ctx context.Context, db *gorm.DB, id uuid.UUID) (*orderdomain.Registration, error) {
	var reg orderdomain.Registration
	err := db.WithContext(ctx).Where("id = ?", id).Take(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *repo) ListRegistrations(ctx context.Context, db *gorm.DB, orderID uuid.UUID) ([]orderdomain.Registration, error) {
	var regs []orderdomain.Registration
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("registration_number ASC").
		Find(&regs).Error
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (r *repo) MarkCheckedIn(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE registrations
		 SET check_in_status = ?, check_in_time = ?, updated_at = ?
		 WHERE id = ?
		   AND check_in_status = ?
		   AND status = ?
		   AND payment_status = ?`,
		orderdomain.CheckInStatusCheckedIn,
		at,
		at,
		id,
		orderdomain.CheckInStatusNotCheckedIn,
		orderdomain.RegistrationStatusActive,
		orderdomain.PaymentStatusPaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, evt *domain.Event) error {
	return db.WithContext(ctx).Create(evt).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, registrationID uuid.UUID) ([]domain.Event, error) {
	var items []domain.Event
	err := db.WithContext(ctx).
		Where("registration_id = ?", registrationID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
