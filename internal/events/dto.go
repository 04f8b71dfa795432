package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	"github.com/angelmondragon/eventrsvp-backend/pkg/money"
)

// CreateEventInput is an organizer publishing a new event.
type CreateEventInput struct {
	OrganizerID      uuid.UUID
	OrganizerRole    enums.UserRole
	Title            string
	Description      string
	Location         string
	StartAt          time.Time
	EndAt            *time.Time
	Capacity         *int
	PriceCents       int64
	WaitlistEnabled  bool
	AllowPlusOnes    bool
	MaxGuestsPerRSVP *int
	RSVPDeadline     *time.Time
}

type UpdateCapacityInput struct {
	EventID   uuid.UUID
	ActorID   uuid.UUID
	ActorRole enums.UserRole
	Capacity  *int
}

type CancelEventInput struct {
	EventID   uuid.UUID
	ActorID   uuid.UUID
	ActorRole enums.UserRole
	Reason    string
}

type EventView struct {
	ID                uuid.UUID         `json:"id"`
	OrganizerID       uuid.UUID         `json:"organizer_id"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Location          string            `json:"location"`
	StartAt           time.Time         `json:"start_at"`
	EndAt             *time.Time        `json:"end_at,omitempty"`
	Capacity          *int              `json:"capacity"`
	AvailableSpots    *int              `json:"available_spots"`
	AdmittedHeadcount int               `json:"admitted_headcount"`
	PriceCents        int64             `json:"price_cents"`
	Price             string            `json:"price"`
	WaitlistEnabled   bool              `json:"waitlist_enabled"`
	AllowPlusOnes     bool              `json:"allow_plus_ones"`
	MaxGuestsPerRSVP  *int              `json:"max_guests_per_rsvp,omitempty"`
	RSVPDeadline      *time.Time        `json:"rsvp_deadline,omitempty"`
	Status            enums.EventStatus `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
}

// ManagedBy mirrors models.Event.ManagedBy for callers holding only the view.
func (v EventView) ManagedBy(userID uuid.UUID, role enums.UserRole) bool {
	return role == enums.UserRoleAdmin || (userID != uuid.Nil && v.OrganizerID == userID)
}

// Stats is the per-event dashboard aggregate. AvailableSpots is nil for
// unlimited events.
type Stats struct {
	EventID        uuid.UUID `json:"event_id"`
	Accepted       int64     `json:"accepted"`
	Maybe          int64     `json:"maybe"`
	Declined       int64     `json:"declined"`
	Waitlisted     int64     `json:"waitlisted"`
	Headcount      int       `json:"headcount"`
	Capacity       *int      `json:"capacity"`
	AvailableSpots *int      `json:"available_spots"`
	CheckedIn      int64     `json:"checked_in"`
}

type CapacityResult struct {
	Event    EventView   `json:"event"`
	Promoted []uuid.UUID `json:"promoted"`
}

type CancelEventResult struct {
	Event         EventView `json:"event"`
	Affected      int       `json:"affected"`
	Refunded      int       `json:"refunded"`
	RefundedCents int64     `json:"refunded_cents"`
}

func NewEventView(event models.Event) EventView {
	return EventView{
		ID:                event.ID,
		OrganizerID:       event.OrganizerID,
		Title:             event.Title,
		Description:       event.Description,
		Location:          event.Location,
		StartAt:           event.StartAt,
		EndAt:             event.EndAt,
		Capacity:          event.Capacity,
		AvailableSpots:    event.AvailableSpots(),
		AdmittedHeadcount: event.AdmittedHeadcount,
		PriceCents:        event.PriceCents,
		Price:             money.FormatCents(event.PriceCents),
		WaitlistEnabled:   event.WaitlistEnabled,
		AllowPlusOnes:     event.AllowPlusOnes,
		MaxGuestsPerRSVP:  event.MaxGuestsPerRSVP,
		RSVPDeadline:      event.RSVPDeadline,
		Status:            event.Status,
		CreatedAt:         event.CreatedAt,
	}
}
