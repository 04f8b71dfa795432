package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/internal/checkin"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
)

type stubCheckInService struct {
	fn func(context.Context, checkin.Input) (*checkin.CheckInResult, error)
}

func (s stubCheckInService) CheckIn(ctx context.Context, input checkin.Input) (*checkin.CheckInResult, error) {
	return s.fn(ctx, input)
}

func TestCheckInReturnsResult(t *testing.T) {
	operator := uuid.New()
	at := time.Date(2026, 11, 1, 18, 5, 0, 0, time.UTC)
	svc := stubCheckInService{fn: func(_ context.Context, input checkin.Input) (*checkin.CheckInResult, error) {
		if input.Token != "tok-123" || input.OperatorID != operator || input.OperatorRole != enums.UserRoleOrganizer {
			t.Fatalf("unexpected input %+v", input)
		}
		return &checkin.CheckInResult{
			Result: checkin.ResultAlreadyCheckedIn,
			RSVP:   checkin.Summary{RSVPID: uuid.New(), PartySize: 2, CheckedInAt: &at},
		}, nil
	}}

	req := newRequest(http.MethodPost, "/api/v1/checkin", `{"token":" tok-123 "}`, operator, enums.UserRoleOrganizer, nil)
	resp := httptest.NewRecorder()
	CheckIn(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	got := decodeData[checkin.CheckInResult](t, resp)
	if got.Result != checkin.ResultAlreadyCheckedIn || got.RSVP.CheckedInAt == nil || !got.RSVP.CheckedInAt.Equal(at) {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestCheckInUnknownToken(t *testing.T) {
	svc := stubCheckInService{fn: func(context.Context, checkin.Input) (*checkin.CheckInResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeTokenNotFound, "admission token not found")
	}}
	req := newRequest(http.MethodPost, "/api/v1/checkin", `{"token":"missing"}`, uuid.New(), enums.UserRoleOrganizer, nil)
	resp := httptest.NewRecorder()
	CheckIn(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if code := decodeError(t, resp).Error.Code; code != string(pkgerrors.CodeTokenNotFound) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestCheckInRequiresToken(t *testing.T) {
	svc := stubCheckInService{fn: func(context.Context, checkin.Input) (*checkin.CheckInResult, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	req := newRequest(http.MethodPost, "/api/v1/checkin", `{}`, uuid.New(), enums.UserRoleOrganizer, nil)
	resp := httptest.NewRecorder()
	CheckIn(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
