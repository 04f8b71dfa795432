package rsvps

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	"github.com/angelmondragon/eventrsvp-backend/pkg/money"
)

// Outcome describes what a respond call ended up doing.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeWaitlisted Outcome = "waitlisted"
	OutcomeUpdated    Outcome = "updated"
)

// RespondInput is one attendee's RSVP submission.
type RespondInput struct {
	EventID       uuid.UUID
	UserID        uuid.UUID
	Status        enums.RSVPStatus
	GuestCount    int
	PaymentMethod enums.PaymentMethod
}

// CancelInput is an organizer cancelling one attendee's RSVP.
type CancelInput struct {
	EventID   uuid.UUID
	UserID    uuid.UUID
	ActorID   uuid.UUID
	ActorRole enums.UserRole
}

type ListForEventInput struct {
	EventID   uuid.UUID
	ActorID   uuid.UUID
	ActorRole enums.UserRole
	Status    *enums.RSVPStatus
	Limit     int
	Cursor    string
}

// RSVPView is the transport shape of an RSVP. AdmissionToken is only populated
// for the attendee who owns the row.
type RSVPView struct {
	ID                 uuid.UUID            `json:"id"`
	EventID            uuid.UUID            `json:"event_id"`
	UserID             uuid.UUID            `json:"user_id"`
	Status             enums.RSVPStatus     `json:"status"`
	GuestCount         int                  `json:"guest_count"`
	PartySize          int                  `json:"party_size"`
	AdmissionToken     *string              `json:"admission_token,omitempty"`
	PaymentStatus      enums.PaymentStatus  `json:"payment_status"`
	PaymentAmountCents int64                `json:"payment_amount_cents"`
	PaymentAmount      string               `json:"payment_amount"`
	PaymentMethod      *enums.PaymentMethod `json:"payment_method,omitempty"`
	CheckedIn          bool                 `json:"checked_in"`
	CheckedInAt        *time.Time           `json:"checked_in_at,omitempty"`
	WaitlistedAt       *time.Time           `json:"waitlisted_at,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// RSVPResult is returned by Respond and Cancel.
type RSVPResult struct {
	RSVP          RSVPView    `json:"rsvp"`
	Outcome       Outcome     `json:"outcome"`
	ChargedCents  int64       `json:"charged_cents"`
	RefundedCents int64       `json:"refunded_cents"`
	BalanceCents  *int64      `json:"balance_cents,omitempty"`
	Promoted      []uuid.UUID `json:"promoted,omitempty"`
}

type ListResult struct {
	Items  []RSVPView `json:"items"`
	Cursor string     `json:"cursor"`
}

func NewRSVPView(row models.RSVP, includeToken bool) RSVPView {
	view := RSVPView{
		ID:                 row.ID,
		EventID:            row.EventID,
		UserID:             row.UserID,
		Status:             row.Status,
		GuestCount:         row.GuestCount,
		PartySize:          row.PartySize(),
		PaymentStatus:      row.PaymentStatus,
		PaymentAmountCents: row.PaymentAmountCents,
		PaymentAmount:      money.FormatCents(row.PaymentAmountCents),
		PaymentMethod:      row.PaymentMethod,
		CheckedIn:          row.CheckedIn,
		CheckedInAt:        row.CheckedInAt,
		WaitlistedAt:       row.WaitlistedAt,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	if includeToken {
		view.AdmissionToken = row.AdmissionToken
	}
	return view
}
