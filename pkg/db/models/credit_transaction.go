package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
)

// CreditTransaction records an immutable mutation of a user's credit balance.
type CreditTransaction struct {
	ID                uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index"`
	RSVPID            *uuid.UUID                  `gorm:"column:rsvp_id;type:uuid;index"`
	ActorUserID       *uuid.UUID                  `gorm:"column:actor_user_id;type:uuid"`
	Type              enums.CreditTransactionType `gorm:"column:type;type:text;not null"`
	AmountCents       int64                       `gorm:"column:amount_cents;not null"`
	BalanceAfterCents int64                       `gorm:"column:balance_after_cents;not null"`
	Note              string                      `gorm:"column:note;type:text;not null;default:''"`
	CreatedAt         time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
