package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/eventrsvp-backend/api/responses"
	"github.com/angelmondragon/eventrsvp-backend/api/validators"
	"github.com/angelmondragon/eventrsvp-backend/internal/events"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
)

type createEventRequest struct {
	Title            string     `json:"title" validate:"required,max=200"`
	Description      string     `json:"description" validate:"max=5000"`
	Location         string     `json:"location" validate:"max=500"`
	StartAt          time.Time  `json:"start_at" validate:"required"`
	EndAt            *time.Time `json:"end_at"`
	Capacity         *int       `json:"capacity" validate:"omitempty,min=1"`
	PriceCents       int64      `json:"price_cents" validate:"gte=0"`
	WaitlistEnabled  bool       `json:"waitlist_enabled"`
	AllowPlusOnes    bool       `json:"allow_plus_ones"`
	MaxGuestsPerRSVP *int       `json:"max_guests_per_rsvp" validate:"omitempty,gte=0"`
	RSVPDeadline     *time.Time `json:"rsvp_deadline"`
}

// capacity null means unlimited.
type updateCapacityRequest struct {
	Capacity *int `json:"capacity" validate:"omitempty,min=1"`
}

type cancelEventRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CreateEvent publishes a new event owned by the caller.
func CreateEvent(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createEventRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Create(r.Context(), events.CreateEventInput{
			OrganizerID:      caller.ID,
			OrganizerRole:    caller.Role,
			Title:            validators.SanitizeString(body.Title, 200),
			Description:      validators.SanitizeString(body.Description, 5000),
			Location:         validators.SanitizeString(body.Location, 500),
			StartAt:          body.StartAt,
			EndAt:            body.EndAt,
			Capacity:         body.Capacity,
			PriceCents:       body.PriceCents,
			WaitlistEnabled:  body.WaitlistEnabled,
			AllowPlusOnes:    body.AllowPlusOnes,
			MaxGuestsPerRSVP: body.MaxGuestsPerRSVP,
			RSVPDeadline:     body.RSVPDeadline,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func GetEvent(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// UpdateEventCapacity changes the seat limit; freed seats are offered to the waitlist.
func UpdateEventCapacity(svc events.Service, logg *logger.Logger) http.HandlerFunc {
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

		var body updateCapacityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.UpdateCapacity(r.Context(), events.UpdateCapacityInput{
			EventID:   eventID,
			ActorID:   caller.ID,
			ActorRole: caller.Role,
			Capacity:  body.Capacity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CancelEvent cancels the whole event and refunds credit payments.
func CancelEvent(svc events.Service, logg *logger.Logger) http.HandlerFunc {
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

		var body cancelEventRequest
		if hasBody(r) {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Cancel(r.Context(), events.CancelEventInput{
			EventID:   eventID,
			ActorID:   caller.ID,
			ActorRole: caller.Role,
			Reason:    validators.SanitizeString(body.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// EventStats returns live response counts. Only the organizer and admins may read them.
func EventStats(svc events.Service, logg *logger.Logger) http.HandlerFunc {
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

		event, err := svc.Get(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !event.ManagedBy(caller.ID, caller.Role) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "only the organizer can view event stats"))
			return
		}

		stats, err := svc.Stats(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
