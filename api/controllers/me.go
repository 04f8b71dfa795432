package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/api/responses"
	"github.com/angelmondragon/eventrsvp-backend/internal/users"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
)

type userReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Me returns the caller's profile and credit balance.
func Me(repo userReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		user, err := repo.FindByID(r.Context(), caller.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "user not found"))
			return
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user"))
			return
		}
		responses.WriteSuccess(w, users.FromModel(user))
	}
}
