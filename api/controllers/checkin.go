package controllers

import (
	"net/http"

	"github.com/angelmondragon/eventrsvp-backend/api/responses"
	"github.com/angelmondragon/eventrsvp-backend/api/validators"
	"github.com/angelmondragon/eventrsvp-backend/internal/checkin"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
)

type checkInRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

// CheckIn admits the holder of a scanned admission token. A repeat scan is a
// 200 with result already_checked_in, not an error.
func CheckIn(svc checkin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body checkInRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckIn(r.Context(), checkin.Input{
			Token:        validators.SanitizeString(body.Token, 128),
			OperatorID:   caller.ID,
			OperatorRole: caller.Role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
