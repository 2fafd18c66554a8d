package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/event/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Event, error) {
	var event domain.Event
	err := db.WithContext(ctx).Where("id = ?", id).Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repo) FindTicketTypes(ctx context.Context, db *gorm.DB, eventID uuid.UUID, ids []uuid.UUID) ([]domain.TicketType, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.TicketType
	err := db.WithContext(ctx).
		Where("event_id = ? AND id IN ?", eventID, ids).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountReserved(ctx context.Context, db *gorm.DB, ticketTypeIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	return countRegistrations(ctx, db, ticketTypeIDs, []string{"pending", "active"})
}

func (r *repo) CountSold(ctx context.Context, db *gorm.DB, ticketTypeIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	return countRegistrations(ctx, db, ticketTypeIDs, []string{"active"})
}

func countRegistrations(ctx context.Context, db *gorm.DB, ticketTypeIDs []uuid.UUID, statuses []string) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(ticketTypeIDs))
	if len(ticketTypeIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		TicketTypeID uuid.UUID
		Total        int
	}
	err := db.WithContext(ctx).Raw(
		`SELECT ticket_type_id, COUNT(*) AS total
		 FROM registrations
		 WHERE ticket_type_id IN ? AND status IN ?
		 GROUP BY ticket_type_id`,
		ticketTypeIDs,
		statuses,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.TicketTypeID] = row.Total
	}
	return counts, nil
}
