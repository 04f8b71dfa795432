package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/eventrsvp-backend/api/responses"
	"github.com/angelmondragon/eventrsvp-backend/internal/users"
	pkgAuth "github.com/angelmondragon/eventrsvp-backend/pkg/auth"
	"github.com/angelmondragon/eventrsvp-backend/pkg/config"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
)

// UserProvisioner makes sure the token subject has a local user row.
type UserProvisioner interface {
	Ensure(ctx context.Context, identity users.Identity) (*models.User, error)
}

// Auth validates a bearer token and seeds the request context with the claims.
// Users are created on first sight when a provisioner is supplied.
func Auth(cfg config.JWTConfig, provisioner UserProvisioner, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if provisioner != nil {
				if _, err := provisioner.Ensure(r.Context(), users.Identity{
					ID:    claims.UserID,
					Email: claims.Email,
					Name:  claims.Name,
					Role:  claims.Role,
				}); err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "provision user"))
					return
				}
			}

			ctx := WithUserID(r.Context(), claims.UserID.String())
			ctx = WithRole(ctx, string(claims.Role))

			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, string(claims.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
