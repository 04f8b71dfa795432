package waitlist

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
)

// CandidateQuery narrows one page of the waitlist queue.
type CandidateQuery struct {
	EventID uuid.UUID
	// MaxPartySize drops parties larger than the free seats. Nil means unlimited.
	MaxPartySize *int
	// Exclude holds rows already tried during this pass.
	Exclude []uuid.UUID
	Limit   int
}

// Repository reads waitlist candidates and writes promotions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Candidates(ctx context.Context, query CandidateQuery) ([]models.RSVP, error)
	MarkAdmitted(ctx context.Context, rsvp *models.RSVP) error
	RecordFailure(ctx context.Context, rsvpID uuid.UUID, reason string, at time.Time) error
	EventsWithWaitlist(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
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

// Candidates returns waitlisted rows that fit, oldest first. waitlisted_at is
// the queue position; created_at and id break ties deterministically.
func (r *repository) Candidates(ctx context.Context, query CandidateQuery) ([]models.RSVP, error) {
	q := r.db.WithContext(ctx).
		Where("event_id = ? AND status = ?", query.EventID, enums.RSVPStatusWaitlisted)
	if query.MaxPartySize != nil {
		q = q.Where("1 + guest_count <= ?", *query.MaxPartySize)
	}
	if len(query.Exclude) > 0 {
		q = q.Where("id NOT IN ?", query.Exclude)
	}
	var rows []models.RSVP
	err := q.Order("COALESCE(waitlisted_at, created_at) ASC").
		Order("created_at ASC").
		Order("id ASC").
		Limit(query.Limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkAdmitted(ctx context.Context, rsvp *models.RSVP) error {
	return r.db.WithContext(ctx).
		Model(&models.RSVP{}).
		Where("id = ? AND status = ?", rsvp.ID, enums.RSVPStatusWaitlisted).
		Updates(map[string]any{
			"status":               enums.RSVPStatusAccepted,
			"waitlisted_at":        nil,
			"payment_status":       rsvp.PaymentStatus,
			"payment_amount_cents": rsvp.PaymentAmountCents,
			"payment_method":       rsvp.PaymentMethod,
			"promotion_failure":    nil,
			"promotion_failed_at":  nil,
		}).Error
}

// RecordFailure remembers why the last promotion attempt for a row failed.
func (r *repository) RecordFailure(ctx context.Context, rsvpID uuid.UUID, reason string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.RSVP{}).
		Where("id = ? AND status = ?", rsvpID, enums.RSVPStatusWaitlisted).
		Updates(map[string]any{
			"promotion_failure":   reason,
			"promotion_failed_at": at,
		}).Error
}

// EventsWithWaitlist pages, by event id, through active events that have someone
// waiting and seats actually free. Free seats are computed from accepted rows so
// an event with a drifted counter is still found.
func (r *repository) EventsWithWaitlist(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	q := r.db.WithContext(ctx).
		Model(&models.RSVP{}).
		Joins("JOIN events ON events.id = rsvps.event_id").
		Where("rsvps.status = ? AND events.status = ?", enums.RSVPStatusWaitlisted, enums.EventStatusActive).
		Where(`(events.capacity IS NULL OR (
			SELECT COALESCE(SUM(1 + a.guest_count), 0) FROM rsvps a
			WHERE a.event_id = events.id AND a.status = ?
		) < events.capacity)`, enums.RSVPStatusAccepted)
	if after != uuid.Nil {
		q = q.Where("rsvps.event_id > ?", after)
	}
	var ids []uuid.UUID
	err := q.Group("rsvps.event_id").
		Order("rsvps.event_id ASC").
		Limit(limit).
		Pluck("rsvps.event_id", &ids).Error
	return ids, err
}
