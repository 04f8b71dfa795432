package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
)

// SeedUser inserts an attendee holding balanceCents of credit.
func SeedUser(t testing.TB, db *gorm.DB, balanceCents int64) models.User {
	t.Helper()
	id := uuid.New()
	user := models.User{
		ID:                 id,
		Email:              id.String() + "@example.com",
		Name:               "Attendee " + id.String()[:8],
		Role:               enums.UserRoleAttendee,
		CreditBalanceCents: balanceCents,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedEvent inserts an active event starting tomorrow. mutate may adjust the
// defaults before the insert.
func SeedEvent(t testing.TB, db *gorm.DB, mutate func(*models.Event)) models.Event {
	t.Helper()
	event := models.Event{
		OrganizerID: uuid.New(),
		Title:       "Launch party",
		StartAt:     time.Now().UTC().Add(24 * time.Hour),
		Status:      enums.EventStatusActive,
	}
	if mutate != nil {
		mutate(&event)
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return event
}

// Capacity returns a pointer for Event.Capacity literals.
func Capacity(n int) *int {
	return &n
}

// Reload refetches an event by id.
func Reload(t testing.TB, db *gorm.DB, id uuid.UUID) models.Event {
	t.Helper()
	var event models.Event
	if err := db.First(&event, "id = ?", id).Error; err != nil {
		t.Fatalf("reload event: %v", err)
	}
	return event
}

// Balance returns a user's current credit balance.
func Balance(t testing.TB, db *gorm.DB, userID uuid.UUID) int64 {
	t.Helper()
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	return user.CreditBalanceCents
}
