package enums

import (
	"slices"
	"strings"
)

// PaymentMethod describes how an attendee settles an admission fee.
// Card processing is handled outside this service, so only internal methods exist.
type PaymentMethod string

const (
	PaymentMethodCredit PaymentMethod = "credit"
	PaymentMethodFree   PaymentMethod = "free"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCredit,
	PaymentMethodFree,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string { return string(p) }

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool { return slices.Contains(validPaymentMethods, p) }

// ParsePaymentMethod converts raw input into a PaymentMethod. Empty input yields "".
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	return parse(validPaymentMethods, "payment method", value)
}
