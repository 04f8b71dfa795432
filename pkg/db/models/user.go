package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
)

// User represents the canonical identity entity and owns the credit balance.
// CreditBalanceCents is mutated only through the credits ledger.
type User struct {
	ID                 uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email              string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	Name               string         `gorm:"column:name;type:text;not null"`
	Role               enums.UserRole `gorm:"column:role;type:text;not null;default:attendee"`
	CreditBalanceCents int64          `gorm:"column:credit_balance_cents;not null;default:0;check:chk_users_credit_balance_non_negative,credit_balance_cents >= 0"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
