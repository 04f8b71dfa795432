package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
)

// Event is an organizer-published gathering with an optional capacity ceiling.
// AdmittedHeadcount materializes the sum of 1+guest_count over accepted RSVPs and
// is only moved by the capacity guard.
type Event struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrganizerID       uuid.UUID         `gorm:"column:organizer_id;type:uuid;not null;index"`
	Title             string            `gorm:"column:title;type:text;not null"`
	Description       string            `gorm:"column:description;type:text;not null;default:''"`
	Location          string            `gorm:"column:location;type:text;not null;default:''"`
	StartAt           time.Time         `gorm:"column:start_at;not null"`
	EndAt             *time.Time        `gorm:"column:end_at"`
	Capacity          *int              `gorm:"column:capacity"`
	PriceCents        int64             `gorm:"column:price_cents;not null;default:0"`
	WaitlistEnabled   bool              `gorm:"column:waitlist_enabled;not null;default:false"`
	AllowPlusOnes     bool              `gorm:"column:allow_plus_ones;not null;default:false"`
	MaxGuestsPerRSVP  *int              `gorm:"column:max_guests_per_rsvp"`
	RSVPDeadline      *time.Time        `gorm:"column:rsvp_deadline"`
	Status            enums.EventStatus `gorm:"column:status;type:text;not null;default:active;index"`
	AdmittedHeadcount int               `gorm:"column:admitted_headcount;not null;default:0"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// IsFree reports whether admission requires no payment.
func (e Event) IsFree() bool {
	return e.PriceCents <= 0
}

// AvailableSpots returns the remaining capacity, or nil when the event is unlimited.
func (e Event) AvailableSpots() *int {
	if e.Capacity == nil {
		return nil
	}
	remaining := *e.Capacity - e.AdmittedHeadcount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// Fits reports whether a party of the given size can be seated right now.
func (e Event) Fits(partySize int) bool {
	if e.Capacity == nil {
		return true
	}
	return e.AdmittedHeadcount+partySize <= *e.Capacity
}

// ManagedBy reports whether the user may administer the event's attendees.
func (e Event) ManagedBy(userID uuid.UUID, role enums.UserRole) bool {
	return role == enums.UserRoleAdmin || (userID != uuid.Nil && e.OrganizerID == userID)
}
