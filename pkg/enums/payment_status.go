package enums

import "slices"

// PaymentStatus tracks whether an RSVP's admission fee has been settled.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusRefunded,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string { return string(p) }

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool { return slices.Contains(validPaymentStatuses, p) }

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse(validPaymentStatuses, "payment status", value)
}
