package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	"github.com/angelmondragon/eventrsvp-backend/pkg/money"
)

// UserDTO is the transport shape of a user.
type UserDTO struct {
	ID                 uuid.UUID      `json:"id"`
	Email              string         `json:"email"`
	Name               string         `json:"name"`
	Role               enums.UserRole `json:"role"`
	CreditBalanceCents int64          `json:"credit_balance_cents"`
	CreditBalance      string         `json:"credit_balance"`
	CreatedAt          time.Time      `json:"created_at"`
}

// Identity is what a verified access token says about its subject.
type Identity struct {
	ID    uuid.UUID
	Email string
	Name  string
	Role  enums.UserRole
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		Role:               u.Role,
		CreditBalanceCents: u.CreditBalanceCents,
		CreditBalance:      money.FormatCents(u.CreditBalanceCents),
		CreatedAt:          u.CreatedAt,
	}
}

// ToModel builds a new row. A missing email falls back to a placeholder derived
// from the id so the unique index still holds.
func (i Identity) ToModel() *models.User {
	email := strings.ToLower(strings.TrimSpace(i.Email))
	if email == "" {
		email = i.ID.String() + "@users.invalid"
	}
	name := strings.TrimSpace(i.Name)
	if name == "" {
		name = email
	}
	role := i.Role
	if !role.IsValid() {
		role = enums.UserRoleAttendee
	}
	return &models.User{
		ID:    i.ID,
		Email: email,
		Name:  name,
		Role:  role,
	}
}
