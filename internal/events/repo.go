package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
)

// Repository persists events and answers the aggregate queries the dashboards use.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	UpdateCapacity(ctx context.Context, id uuid.UUID, capacity *int) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EventStatus) error
	CountByStatus(ctx context.Context, eventID uuid.UUID) (map[enums.RSVPStatus]int64, error)
	CountCheckedIn(ctx context.Context, eventID uuid.UUID) (int64, error)
	ListResponders(ctx context.Context, eventID uuid.UUID) ([]models.RSVP, error)
	MarkRefunded(ctx context.Context, rsvpID uuid.UUID) error
	AcceptedUserIDs(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error)
	ListDueForCompletion(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an events repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).Take(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) UpdateCapacity(ctx context.Context, id uuid.UUID, capacity *int) error {
	return r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ?", id).
		Update("capacity", capacity).Error
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EventStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *repository) CountByStatus(ctx context.Context, eventID uuid.UUID) (map[enums.RSVPStatus]int64, error) {
	var rows []struct {
		Status enums.RSVPStatus
		Total  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.RSVP{}).
		Select("status, COUNT(*) AS total").
		Where("event_id = ?", eventID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[enums.RSVPStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *repository) CountCheckedIn(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.RSVP{}).
		Where("event_id = ? AND checked_in = ?", eventID, true).
		Count(&total).Error
	return total, err
}

// ListResponders returns every row that still expects to attend or hear back.
func (r *repository) ListResponders(ctx context.Context, eventID uuid.UUID) ([]models.RSVP, error) {
	var rows []models.RSVP
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND status IN ?", eventID, []enums.RSVPStatus{
			enums.RSVPStatusAccepted,
			enums.RSVPStatusMaybe,
			enums.RSVPStatusWaitlisted,
		}).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkRefunded(ctx context.Context, rsvpID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.RSVP{}).
		Where("id = ?", rsvpID).
		Update("payment_status", enums.PaymentStatusRefunded).Error
}

func (r *repository) AcceptedUserIDs(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.RSVP{}).
		Where("event_id = ? AND status = ?", eventID, enums.RSVPStatusAccepted).
		Pluck("user_id", &ids).Error
	return ids, err
}

// ListDueForCompletion finds active events whose end (or start, when no end is
// set) is before cutoff.
func (r *repository) ListDueForCompletion(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("status = ? AND COALESCE(end_at, start_at) < ?", enums.EventStatusActive, cutoff).
		Order("start_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
