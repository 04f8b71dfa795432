package checkin

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
)

// Repository resolves admission tokens and flips the checked-in flag.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByToken(ctx context.Context, token string) (*models.RSVP, error)
	FindEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error)
	MarkCheckedIn(ctx context.Context, token string, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByToken(ctx context.Context, token string) (*models.RSVP, error) {
	var row models.RSVP
	if err := r.db.WithContext(ctx).Take(&row, "admission_token = ?", token).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).Take(&event, "id = ?", eventID).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkCheckedIn is a compare-and-set on checked_in; only one concurrent scan of
// the same token can observe true.
func (r *repository) MarkCheckedIn(ctx context.Context, token string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RSVP{}).
		Where("admission_token = ? AND status = ? AND checked_in = ?", token, enums.RSVPStatusAccepted, false).
		Updates(map[string]any{
			"checked_in":    true,
			"checked_in_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
