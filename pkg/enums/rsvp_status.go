package enums

import "slices"

// RSVPStatus is the closed set of responses an attendee can hold for an event.
// The absence of a row is the implicit "no response" state.
type RSVPStatus string

const (
	RSVPStatusAccepted   RSVPStatus = "accepted"
	RSVPStatusMaybe      RSVPStatus = "maybe"
	RSVPStatusDeclined   RSVPStatus = "declined"
	RSVPStatusWaitlisted RSVPStatus = "waitlisted"
)

var validRSVPStatuses = []RSVPStatus{
	RSVPStatusAccepted,
	RSVPStatusMaybe,
	RSVPStatusDeclined,
	RSVPStatusWaitlisted,
}

// String implements fmt.Stringer.
func (s RSVPStatus) String() string { return string(s) }

// IsValid reports whether the value is a known RSVPStatus.
func (s RSVPStatus) IsValid() bool { return slices.Contains(validRSVPStatuses, s) }

// HoldsSeat reports whether the status counts against event capacity.
func (s RSVPStatus) HoldsSeat() bool {
	return s == RSVPStatusAccepted
}

// ParseRSVPStatus converts raw input into an RSVPStatus. Matching is case-insensitive
// so "Accepted" from older clients still resolves.
func ParseRSVPStatus(value string) (RSVPStatus, error) {
	return parse(validRSVPStatuses, "rsvp status", value)
}
