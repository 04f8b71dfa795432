package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateRSVP   OutboxAggregateType = "rsvp"
	AggregateEvent  OutboxAggregateType = "event"
	AggregateCredit OutboxAggregateType = "credit"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRSVP,
	AggregateEvent,
	AggregateCredit,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool { return slices.Contains(validAggregateTypes, a) }

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(validAggregateTypes, "aggregate type", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventRSVPConfirmed        OutboxEventType = "rsvp_confirmed"
	EventRSVPWaitlisted       OutboxEventType = "rsvp_waitlisted"
	EventRSVPPromoted         OutboxEventType = "rsvp_promoted"
	EventRSVPPromotionFailed  OutboxEventType = "rsvp_promotion_failed"
	EventRSVPCancelled        OutboxEventType = "rsvp_cancelled"
	EventRSVPCheckedIn        OutboxEventType = "rsvp_checked_in"
	EventEventCancelled       OutboxEventType = "event_cancelled"
	EventEventCapacityChanged OutboxEventType = "event_capacity_changed"
	EventEventCompleted       OutboxEventType = "event_completed"
	EventCreditRefunded       OutboxEventType = "credit_refunded"
	EventCreditGranted        OutboxEventType = "credit_granted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventRSVPConfirmed,
	EventRSVPWaitlisted,
	EventRSVPPromoted,
	EventRSVPPromotionFailed,
	EventRSVPCancelled,
	EventRSVPCheckedIn,
	EventEventCancelled,
	EventEventCapacityChanged,
	EventEventCompleted,
	EventCreditRefunded,
	EventCreditGranted,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool { return slices.Contains(validOutboxEventTypes, e) }

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(validOutboxEventTypes, "event type", value)
}
