package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Ensure returns the user row for a verified identity, inserting it on first
// sight and refreshing name and role when the token carries newer values.
func (r *Repository) Ensure(ctx context.Context, identity Identity) (*models.User, error) {
	if identity.ID == uuid.Nil {
		return nil, errors.New("identity id required")
	}
	existing, err := r.FindByID(ctx, identity.ID)
	switch {
	case err == nil:
		if existing.Role == identity.Role && (identity.Name == "" || existing.Name == identity.Name) {
			return existing, nil
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	user := identity.ToModel()
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"role":       user.Role,
				"name":       user.Name,
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(user).Error; err != nil {
		return nil, err
	}
	return r.FindByID(ctx, identity.ID)
}

// FindByEmail retrieves the user matching the provided email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
