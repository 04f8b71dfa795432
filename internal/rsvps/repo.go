package rsvps

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	"github.com/angelmondragon/eventrsvp-backend/pkg/pagination"
)

// Repository persists RSVP rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error)
	FindByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.RSVP, error)
	Create(ctx context.Context, rsvp *models.RSVP) error
	Update(ctx context.Context, rsvp *models.RSVP) error
	ListByEvent(ctx context.Context, params listParams) ([]models.RSVP, *pagination.Cursor, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.RSVP, error)
}

type listParams struct {
	EventID uuid.UUID
	Status  *enums.RSVPStatus
	Limit   int
	Cursor  *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an RSVP repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).Take(&event, "id = ?", eventID).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) FindByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.RSVP, error) {
	var rsvp models.RSVP
	if err := r.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Take(&rsvp).Error; err != nil {
		return nil, err
	}
	return &rsvp, nil
}

func (r *repository) Create(ctx context.Context, rsvp *models.RSVP) error {
	return r.db.WithContext(ctx).Create(rsvp).Error
}

// Update writes every mutable admission column, including the NULLs that Save
// would skip on zero-valued pointers.
func (r *repository) Update(ctx context.Context, rsvp *models.RSVP) error {
	return r.db.WithContext(ctx).
		Model(&models.RSVP{}).
		Where("id = ?", rsvp.ID).
		Updates(map[string]any{
			"status":               rsvp.Status,
			"guest_count":          rsvp.GuestCount,
			"admission_token":      rsvp.AdmissionToken,
			"payment_status":       rsvp.PaymentStatus,
			"payment_amount_cents": rsvp.PaymentAmountCents,
			"payment_method":       rsvp.PaymentMethod,
			"waitlisted_at":        rsvp.WaitlistedAt,
			"promotion_failure":    rsvp.PromotionFailure,
			"promotion_failed_at":  rsvp.PromotionFailedAt,
		}).Error
}

func (r *repository) ListByEvent(ctx context.Context, params listParams) ([]models.RSVP, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.RSVP{}).Where("event_id = ?", params.EventID)
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var rows []models.RSVP
	if err := pagination.Apply(query, params.Cursor, params.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, func(row models.RSVP) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.RSVP, error) {
	var rows []models.RSVP
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
