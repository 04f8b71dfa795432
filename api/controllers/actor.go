package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/api/middleware"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
)

type actor struct {
	ID   uuid.UUID
	Role enums.UserRole
}

func actorFromRequest(r *http.Request) (actor, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid role")
	}
	return actor{ID: id, Role: role}, nil
}

func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}
