package enums

import "slices"

// EventStatus maps to the event_status enum in Postgres.
type EventStatus string

const (
	EventStatusActive    EventStatus = "active"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusCompleted EventStatus = "completed"
)

var validEventStatuses = []EventStatus{
	EventStatusActive,
	EventStatusCancelled,
	EventStatusCompleted,
}

// String implements fmt.Stringer.
func (s EventStatus) String() string { return string(s) }

// IsValid reports whether the value is a known EventStatus.
func (s EventStatus) IsValid() bool { return slices.Contains(validEventStatuses, s) }

// ParseEventStatus converts raw input into an EventStatus.
func ParseEventStatus(value string) (EventStatus, error) {
	return parse(validEventStatuses, "event status", value)
}
