package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/pagination"
)

const insertBatchSize = 100

// Repository persists in-app notifications.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	List(ctx context.Context, q listQuery) ([]models.Notification, *pagination.Cursor, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID, at time.Time) (markOutcome, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type listQuery struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type markOutcome int

const (
	markMissing markOutcome = iota
	markAlreadyRead
	markApplied
)

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) owned(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
}

func (r *gormRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *gormRepository) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(notifications, insertBatchSize).Error
}

func (r *gormRepository) List(ctx context.Context, q listQuery) ([]models.Notification, *pagination.Cursor, error) {
	query := r.owned(ctx, q.UserID)
	if q.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var rows []models.Notification
	if err := pagination.Apply(query, q.Cursor, q.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, q.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

func (r *gormRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.owned(ctx, userID).Where("read_at IS NULL").Count(&count).Error
	return count, err
}

// MarkRead stamps read_at once. A second call reports markAlreadyRead and
// keeps the original timestamp.
func (r *gormRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, at time.Time) (markOutcome, error) {
	res := r.owned(ctx, userID).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", at)
	if res.Error != nil {
		return markMissing, res.Error
	}
	if res.RowsAffected > 0 {
		return markApplied, nil
	}

	var count int64
	if err := r.owned(ctx, userID).Where("id = ?", notificationID).Count(&count).Error; err != nil {
		return markMissing, err
	}
	if count == 0 {
		return markMissing, nil
	}
	return markAlreadyRead, nil
}

func (r *gormRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res := r.owned(ctx, userID).Where("read_at IS NULL").UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

// DeleteReadBefore removes up to limit notifications read before cutoff.
func (r *gormRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	expired := r.db.Model(&models.Notification{}).
		Select("id").
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Order("read_at ASC").
		Limit(limit)
	res := r.db.WithContext(ctx).Where("id IN (?)", expired).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
