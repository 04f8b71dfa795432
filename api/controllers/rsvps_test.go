package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/internal/rsvps"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
)

type stubRSVPService struct {
	respondFn func(context.Context, rsvps.RespondInput) (*rsvps.RSVPResult, error)
	cancelFn  func(context.Context, rsvps.CancelInput) (*rsvps.RSVPResult, error)
	listFn    func(context.Context, rsvps.ListForEventInput) (*rsvps.ListResult, error)
}

func (s *stubRSVPService) Respond(ctx context.Context, input rsvps.RespondInput) (*rsvps.RSVPResult, error) {
	return s.respondFn(ctx, input)
}

func (s *stubRSVPService) Cancel(ctx context.Context, input rsvps.CancelInput) (*rsvps.RSVPResult, error) {
	return s.cancelFn(ctx, input)
}

func (s *stubRSVPService) Get(_ context.Context, eventID, userID uuid.UUID) (*rsvps.RSVPView, error) {
	return &rsvps.RSVPView{EventID: eventID, UserID: userID, Status: enums.RSVPStatusMaybe}, nil
}

func (s *stubRSVPService) ListForEvent(ctx context.Context, input rsvps.ListForEventInput) (*rsvps.ListResult, error) {
	return s.listFn(ctx, input)
}

func (s *stubRSVPService) ListForUser(context.Context, uuid.UUID) ([]rsvps.RSVPView, error) {
	return []rsvps.RSVPView{}, nil
}

func TestRespondToEventParsesBody(t *testing.T) {
	userID, eventID := uuid.New(), uuid.New()
	var captured rsvps.RespondInput
	svc := &stubRSVPService{
		respondFn: func(_ context.Context, input rsvps.RespondInput) (*rsvps.RSVPResult, error) {
			captured = input
			return &rsvps.RSVPResult{Outcome: rsvps.OutcomeAccepted, ChargedCents: 4000}, nil
		},
	}

	req := newRequest(http.MethodPut, "/", `{"status":"Accepted","guest_count":1,"payment_method":"credit"}`, userID, enums.UserRoleAttendee,
		map[string]string{"eventId": eventID.String()})
	resp := httptest.NewRecorder()
	RespondToEvent(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	want := rsvps.RespondInput{
		EventID:       eventID,
		UserID:        userID,
		Status:        enums.RSVPStatusAccepted,
		GuestCount:    1,
		PaymentMethod: enums.PaymentMethodCredit,
	}
	if captured != want {
		t.Fatalf("unexpected input %+v", captured)
	}
	if got := decodeData[rsvps.RSVPResult](t, resp); got.Outcome != rsvps.OutcomeAccepted || got.ChargedCents != 4000 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestRespondToEventRejectsUnknownStatus(t *testing.T) {
	svc := &stubRSVPService{
		respondFn: func(context.Context, rsvps.RespondInput) (*rsvps.RSVPResult, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	req := newRequest(http.MethodPut, "/", `{"status":"going"}`, uuid.New(), enums.UserRoleAttendee, map[string]string{"eventId": uuid.NewString()})
	resp := httptest.NewRecorder()
	RespondToEvent(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRespondToEventMapsDomainErrors(t *testing.T) {
	cases := []struct {
		code pkgerrors.Code
		want int
	}{
		{pkgerrors.CodeCapacityExceeded, http.StatusConflict},
		{pkgerrors.CodeInsufficientFunds, http.StatusPaymentRequired},
		{pkgerrors.CodeInvalidGuestCount, http.StatusUnprocessableEntity},
		{pkgerrors.CodeEventUnavailable, http.StatusConflict},
	}
	for _, tc := range cases {
		svc := &stubRSVPService{
			respondFn: func(context.Context, rsvps.RespondInput) (*rsvps.RSVPResult, error) {
				return nil, pkgerrors.New(tc.code, "nope")
			},
		}
		req := newRequest(http.MethodPut, "/", `{"status":"accepted"}`, uuid.New(), enums.UserRoleAttendee, map[string]string{"eventId": uuid.NewString()})
		resp := httptest.NewRecorder()
		RespondToEvent(svc, testLogger())(resp, req)

		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.code, tc.want, resp.Code)
		}
		if got := decodeError(t, resp).Error.Code; got != string(tc.code) {
			t.Fatalf("expected code %s got %s", tc.code, got)
		}
	}
}

func TestListEventRSVPsStatusFilter(t *testing.T) {
	organizer, eventID := uuid.New(), uuid.New()
	var captured rsvps.ListForEventInput
	svc := &stubRSVPService{
		listFn: func(_ context.Context, input rsvps.ListForEventInput) (*rsvps.ListResult, error) {
			captured = input
			return &rsvps.ListResult{Items: []rsvps.RSVPView{}}, nil
		},
	}

	req := newRequest(http.MethodGet, "/?status=waitlisted&limit=10", "", organizer, enums.UserRoleOrganizer, map[string]string{"eventId": eventID.String()})
	resp := httptest.NewRecorder()
	ListEventRSVPs(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.Status == nil || *captured.Status != enums.RSVPStatusWaitlisted || captured.Limit != 10 || captured.ActorID != organizer {
		t.Fatalf("unexpected input %+v", captured)
	}

	bad := newRequest(http.MethodGet, "/?status=nope", "", organizer, enums.UserRoleOrganizer, map[string]string{"eventId": eventID.String()})
	resp = httptest.NewRecorder()
	ListEventRSVPs(svc, testLogger())(resp, bad)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCancelAttendeeRSVPPassesActor(t *testing.T) {
	organizer, attendee, eventID := uuid.New(), uuid.New(), uuid.New()
	svc := &stubRSVPService{
		cancelFn: func(_ context.Context, input rsvps.CancelInput) (*rsvps.RSVPResult, error) {
			if input.ActorID != organizer || input.UserID != attendee || input.EventID != eventID {
				t.Fatalf("unexpected input %+v", input)
			}
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the organizer can cancel attendees")
		},
	}
	req := newRequest(http.MethodDelete, "/", "", organizer, enums.UserRoleOrganizer,
		map[string]string{"eventId": eventID.String(), "userId": attendee.String()})
	resp := httptest.NewRecorder()
	CancelAttendeeRSVP(svc, testLogger())(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}
