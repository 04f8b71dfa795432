package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
)

// RSVPEvent describes a committed RSVP transition (confirmed, waitlisted, promoted,
// promotion failed, cancelled).
type RSVPEvent struct {
	RSVPID             uuid.UUID        `json:"rsvp_id"`
	EventID            uuid.UUID        `json:"event_id"`
	UserID             uuid.UUID        `json:"user_id"`
	EventTitle         string           `json:"event_title"`
	Status             enums.RSVPStatus `json:"status"`
	PreviousStatus     enums.RSVPStatus `json:"previous_status,omitempty"`
	GuestCount         int              `json:"guest_count"`
	PaymentAmountCents int64            `json:"payment_amount_cents"`
	AdmissionToken     string           `json:"admission_token,omitempty"`
	Reason             string           `json:"reason,omitempty"`
}

// RSVPCheckedInEvent is emitted once per admission at the door.
type RSVPCheckedInEvent struct {
	RSVPID      uuid.UUID `json:"rsvp_id"`
	EventID     uuid.UUID `json:"event_id"`
	UserID      uuid.UUID `json:"user_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
	OperatorID  uuid.UUID `json:"operator_id"`
}

// EventCancelledEvent fans out to every attendee that held a response.
type EventCancelledEvent struct {
	EventID         uuid.UUID   `json:"event_id"`
	Title           string      `json:"title"`
	AffectedUserIDs []uuid.UUID `json:"affected_user_ids"`
	RefundedCents   int64       `json:"refunded_cents"`
	CancelledAt     time.Time   `json:"cancelled_at"`
}

// EventCapacityChangedEvent reports an organizer capacity edit and its promotions.
type EventCapacityChangedEvent struct {
	EventID          uuid.UUID   `json:"event_id"`
	Title            string      `json:"title"`
	PreviousCapacity *int        `json:"previous_capacity"`
	Capacity         *int        `json:"capacity"`
	PromotedRSVPIDs  []uuid.UUID `json:"promoted_rsvp_ids"`
	AttendeeUserIDs  []uuid.UUID `json:"attendee_user_ids"`
}

// EventCompletedEvent marks an event closed by the completion job.
type EventCompletedEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	Title       string    `json:"title"`
	CheckedIn   int64     `json:"checked_in"`
	CompletedAt time.Time `json:"completed_at"`
}

// CreditEvent mirrors a credit ledger mutation (grant or refund).
type CreditEvent struct {
	TransactionID     uuid.UUID                   `json:"transaction_id"`
	UserID            uuid.UUID                   `json:"user_id"`
	Type              enums.CreditTransactionType `json:"type"`
	AmountCents       int64                       `json:"amount_cents"`
	BalanceAfterCents int64                       `json:"balance_after_cents"`
	RSVPID            *uuid.UUID                  `json:"rsvp_id,omitempty"`
	EventID           *uuid.UUID                  `json:"event_id,omitempty"`
	Note              string                      `json:"note,omitempty"`
}
