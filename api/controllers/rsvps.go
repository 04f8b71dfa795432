package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/eventrsvp-backend/api/responses"
	"github.com/angelmondragon/eventrsvp-backend/api/validators"
	"github.com/angelmondragon/eventrsvp-backend/internal/rsvps"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/pagination"
)

type respondRequest struct {
	Status        string `json:"status" validate:"required"`
	GuestCount    int    `json:"guest_count" validate:"gte=0"`
	PaymentMethod string `json:"payment_method"`
}

func (b respondRequest) toInput(a actor) (rsvps.RespondInput, error) {
	status, err := enums.ParseRSVPStatus(b.Status)
	if err != nil {
		return rsvps.RespondInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
			WithDetails(map[string]string{"status": "must be one of: accepted maybe declined waitlisted"})
	}
	input := rsvps.RespondInput{UserID: a.ID, Status: status, GuestCount: b.GuestCount}
	if raw := strings.TrimSpace(b.PaymentMethod); raw != "" {
		method, err := enums.ParsePaymentMethod(raw)
		if err != nil {
			return rsvps.RespondInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method").
				WithDetails(map[string]string{"payment_method": "is invalid"})
		}
		input.PaymentMethod = method
	}
	return input, nil
}

// RespondToEvent creates or changes the caller's RSVP.
func RespondToEvent(svc rsvps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body respondRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput(caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.EventID = eventID

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithEventID(ctx, eventID.String())
		}
		result, err := svc.Respond(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetMyRSVP returns the caller's RSVP for an event, admission token included.
func GetMyRSVP(svc rsvps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Get(r.Context(), eventID, caller.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func ListMyRSVPs(svc rsvps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views, err := svc.ListForUser(r.Context(), caller.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": views})
	}
}

// ListEventRSVPs pages through an event's attendees for its organizer.
func ListEventRSVPs(svc rsvps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := rsvps.ListForEventInput{
			EventID:   eventID,
			ActorID:   caller.ID,
			ActorRole: caller.Role,
			Limit:     limit,
			Cursor:    strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseRSVPStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
					WithDetails(map[string]any{"field": "status"}))
				return
			}
			input.Status = &status
		}

		result, err := svc.ListForEvent(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CancelAttendeeRSVP lets the organizer remove an attendee, refunding any credit payment.
func CancelAttendeeRSVP(svc rsvps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Cancel(r.Context(), rsvps.CancelInput{
			EventID:   eventID,
			UserID:    userID,
			ActorID:   caller.ID,
			ActorRole: caller.Role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
