package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/order/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) InsertRegistrations(ctx context.Context, db *gorm.DB, regs []domain.Registration) error {
	if len(regs) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&regs).Error
}

func (r *repo) OrderNumberExists(ctx context.Context, db *gorm.DB, orderNumber string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("order_number = ?", orderNumber).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, orderNumber string) (*domain.Order, error) {
	return r.findOne(ctx, db, "order_number = ?", orderNumber)
}

func (r *repo) FindByProviderReference(ctx context.Context, db *gorm.DB, provider string, reference string) (*domain.Order, error) {
	return r.findOne(ctx, db, "provider = ? AND provider_reference = ?", provider, reference)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Where(query, args...).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) ListRegistrations(ctx context.Context, db *gorm.DB, orderID uuid.UUID) ([]domain.Registration, error) {
	var regs []domain.Registration
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("registration_number ASC").
		Find(&regs).Error
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (r *repo) FindRegistration(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Registration, error) {
	var reg domain.Registration
	err := db.WithContext(ctx).Where("id = ?", id).Take(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *repo) SetPaymentReference(ctx context.Context, db *gorm.DB, id uuid.UUID, reference string, payload datatypes.JSONMap, expiresAt time.Time, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET provider_reference = ?, payment_payload = ?, expires_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND payment_status = ? AND provider_reference IS NULL`,
		reference,
		payload,
		expiresAt,
		updatedAt,
		id,
		domain.OrderStatusPending,
		domain.PaymentStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
