package enums

import "slices"

// CreditTransactionType maps to the credit_transaction_type enum in Postgres.
type CreditTransactionType string

const (
	CreditTransactionGrant  CreditTransactionType = "grant"
	CreditTransactionDebit  CreditTransactionType = "debit"
	CreditTransactionRefund CreditTransactionType = "refund"
)

var validCreditTransactionTypes = []CreditTransactionType{
	CreditTransactionGrant,
	CreditTransactionDebit,
	CreditTransactionRefund,
}

// IsValid reports whether the value matches the canonical credit transaction enum.
func (t CreditTransactionType) IsValid() bool { return slices.Contains(validCreditTransactionTypes, t) }

// Increases reports whether the transaction adds to the balance.
func (t CreditTransactionType) Increases() bool {
	return t == CreditTransactionGrant || t == CreditTransactionRefund
}

// ParseCreditTransactionType converts raw input into CreditTransactionType.
func ParseCreditTransactionType(value string) (CreditTransactionType, error) {
	return parse(validCreditTransactionTypes, "credit transaction type", value)
}
