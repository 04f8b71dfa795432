package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db/dbtest"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
)

func TestEnsureProvisionsOnce(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	id := uuid.New()

	first, err := repo.Ensure(ctx, Identity{ID: id, Email: " Ada@Example.com ", Name: "Ada", Role: enums.UserRoleAttendee})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", first.Email)
	assert.Equal(t, int64(0), first.CreditBalanceCents)

	second, err := repo.Ensure(ctx, Identity{ID: id, Email: "ada@example.com", Name: "Ada", Role: enums.UserRoleAttendee})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	byEmail, err := repo.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, byEmail.ID)
}

func TestEnsureRefreshesRole(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	id := uuid.New()

	_, err := repo.Ensure(ctx, Identity{ID: id, Email: "org@example.com", Role: enums.UserRoleAttendee})
	require.NoError(t, err)

	promoted, err := repo.Ensure(ctx, Identity{ID: id, Email: "org@example.com", Role: enums.UserRoleOrganizer})
	require.NoError(t, err)
	assert.Equal(t, enums.UserRoleOrganizer, promoted.Role)
}

func TestIdentityDefaults(t *testing.T) {
	id := uuid.New()
	user := Identity{ID: id, Role: "superuser"}.ToModel()
	assert.Equal(t, id.String()+"@users.invalid", user.Email)
	assert.Equal(t, user.Email, user.Name)
	assert.Equal(t, enums.UserRoleAttendee, user.Role)

	dto := FromModel(user)
	assert.Equal(t, "0.00", dto.CreditBalance)
	assert.Nil(t, FromModel(nil))
}
