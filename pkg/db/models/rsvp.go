package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
)

// RSVP is the single response row for an (event, user) pair.
type RSVP struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	EventID            uuid.UUID            `gorm:"column:event_id;type:uuid;not null;uniqueIndex:idx_rsvps_event_user;index:idx_rsvps_event_status,priority:1"`
	UserID             uuid.UUID            `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_rsvps_event_user"`
	Status             enums.RSVPStatus     `gorm:"column:status;type:text;not null;index:idx_rsvps_event_status,priority:2"`
	GuestCount         int                  `gorm:"column:guest_count;not null;default:0"`
	AdmissionToken     *string              `gorm:"column:admission_token;type:text;uniqueIndex:idx_rsvps_admission_token"`
	PaymentStatus      enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null;default:pending"`
	PaymentAmountCents int64                `gorm:"column:payment_amount_cents;not null;default:0"`
	PaymentMethod      *enums.PaymentMethod `gorm:"column:payment_method;type:text"`
	CheckedIn          bool                 `gorm:"column:checked_in;not null;default:false"`
	CheckedInAt        *time.Time           `gorm:"column:checked_in_at"`
	WaitlistedAt       *time.Time           `gorm:"column:waitlisted_at"`
	PromotionFailure   *string              `gorm:"column:promotion_failure;type:text"`
	PromotionFailedAt  *time.Time           `gorm:"column:promotion_failed_at"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (RSVP) TableName() string { return "rsvps" }

// PartySize is the attendee plus their guests.
func (r RSVP) PartySize() int {
	return 1 + r.GuestCount
}

// Headcount is what this row currently contributes to the event's admitted headcount.
func (r RSVP) Headcount() int {
	if !r.Status.HoldsSeat() {
		return 0
	}
	return r.PartySize()
}

// PaidWithCredit reports whether a settled credit payment is attached to the row.
func (r RSVP) PaidWithCredit() bool {
	return r.PaymentStatus == enums.PaymentStatusPaid &&
		r.PaymentMethod != nil && *r.PaymentMethod == enums.PaymentMethodCredit &&
		r.PaymentAmountCents > 0
}
