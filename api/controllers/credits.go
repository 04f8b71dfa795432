package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/api/responses"
	"github.com/angelmondragon/eventrsvp-backend/api/validators"
	"github.com/angelmondragon/eventrsvp-backend/internal/credits"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/pagination"
)

type creditReader interface {
	Balance(ctx context.Context, userID uuid.UUID) (*credits.BalanceView, error)
	History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*credits.HistoryResult, error)
}

type creditAdmin interface {
	Grant(ctx context.Context, input credits.GrantInput) (*credits.BalanceView, error)
	SetBalance(ctx context.Context, input credits.SetBalanceInput) (*credits.BalanceView, error)
}

type grantCreditsRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Note        string `json:"note" validate:"max=500"`
}

// balance_cents below zero is clamped by the ledger.
type setBalanceRequest struct {
	BalanceCents *int64 `json:"balance_cents" validate:"required"`
	Note         string `json:"note" validate:"max=500"`
}

func MyCredits(svc creditReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Balance(r.Context(), caller.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// MyCreditTransactions pages through the caller's ledger, newest first.
func MyCreditTransactions(svc creditReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.History(r.Context(), caller.ID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GrantCredits adds credits to a user's balance.
func GrantCredits(svc creditAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body grantCreditsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Grant(r.Context(), credits.GrantInput{
			ActorID:     caller.ID,
			ActorRole:   caller.Role,
			UserID:      userID,
			AmountCents: body.AmountCents,
			Note:        validators.SanitizeString(body.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// SetCredits overwrites a user's balance.
func SetCredits(svc creditAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body setBalanceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.BalanceCents == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "balance_cents required"))
			return
		}

		view, err := svc.SetBalance(r.Context(), credits.SetBalanceInput{
			ActorID:      caller.ID,
			ActorRole:    caller.Role,
			UserID:       userID,
			BalanceCents: *body.BalanceCents,
			Note:         validators.SanitizeString(body.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
