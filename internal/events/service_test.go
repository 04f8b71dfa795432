package events

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/internal/capacity"
	"github.com/angelmondragon/eventrsvp-backend/internal/credits"
	"github.com/angelmondragon/eventrsvp-backend/internal/rsvps"
	"github.com/angelmondragon/eventrsvp-backend/internal/tokens"
	"github.com/angelmondragon/eventrsvp-backend/internal/waitlist"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/dbtest"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox"
)

type fixture struct {
	conn  *gorm.DB
	svc   Service
	rsvps rsvps.Service
	now   time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	runner := db.NewFromGorm(conn)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	guard := capacity.NewGuard()

	ledger, err := credits.NewService(runner, credits.NewRepository(conn), emitter, nil)
	require.NoError(t, err)
	issuer, err := tokens.NewIssuer(tokens.IssuerParams{Logger: logg})
	require.NoError(t, err)
	promoter, err := waitlist.NewPromoter(waitlist.PromoterParams{
		Repo:   waitlist.NewRepository(conn),
		Guard:  guard,
		Ledger: ledger,
		Tokens: issuer,
		Outbox: emitter,
		Logger: logg,
	})
	require.NoError(t, err)

	rsvpSvc, err := rsvps.NewService(rsvps.ServiceParams{
		Tx:       runner,
		Repo:     rsvps.NewRepository(conn),
		Guard:    guard,
		Ledger:   ledger,
		Tokens:   issuer,
		Waitlist: promoter,
		Outbox:   emitter,
		Logger:   logg,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	svc, err := NewService(ServiceParams{
		Tx:       runner,
		Repo:     NewRepository(conn),
		Guard:    guard,
		Ledger:   ledger,
		Waitlist: promoter,
		Outbox:   emitter,
		Logger:   logg,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc, rsvps: rsvpSvc, now: now}
}

func (f fixture) respond(t *testing.T, userID, eventID uuid.UUID, status enums.RSVPStatus, guests int, method enums.PaymentMethod) *rsvps.RSVPResult {
	t.Helper()
	result, err := f.rsvps.Respond(context.Background(), rsvps.RespondInput{
		EventID:       eventID,
		UserID:        userID,
		Status:        status,
		GuestCount:    guests,
		PaymentMethod: method,
	})
	require.NoError(t, err)
	return result
}

func (f fixture) outboxCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	organizer := uuid.New()
	start := f.now.Add(48 * time.Hour)
	before := start.Add(-time.Hour)
	after := start.Add(time.Hour)

	cases := []struct {
		name   string
		mutate func(*CreateEventInput)
		code   pkgerrors.Code
	}{
		{"attendee role", func(in *CreateEventInput) { in.OrganizerRole = enums.UserRoleAttendee }, pkgerrors.CodeForbidden},
		{"blank title", func(in *CreateEventInput) { in.Title = "  " }, pkgerrors.CodeValidation},
		{"past start", func(in *CreateEventInput) { in.StartAt = f.now.Add(-time.Minute) }, pkgerrors.CodeValidation},
		{"end before start", func(in *CreateEventInput) { in.EndAt = &before }, pkgerrors.CodeValidation},
		{"zero capacity", func(in *CreateEventInput) { in.Capacity = dbtest.Capacity(0) }, pkgerrors.CodeValidation},
		{"negative price", func(in *CreateEventInput) { in.PriceCents = -1 }, pkgerrors.CodeValidation},
		{"negative guests", func(in *CreateEventInput) { in.MaxGuestsPerRSVP = dbtest.Capacity(-1) }, pkgerrors.CodeValidation},
		{"deadline after start", func(in *CreateEventInput) { in.RSVPDeadline = &after }, pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := CreateEventInput{
				OrganizerID:   organizer,
				OrganizerRole: enums.UserRoleOrganizer,
				Title:         "Rooftop mixer",
				StartAt:       start,
			}
			tc.mutate(&input)
			_, err := f.svc.Create(context.Background(), input)
			require.Error(t, err)
			assert.Equal(t, tc.code, pkgerrors.CodeOf(err))
		})
	}
}

func TestCreateAndGet(t *testing.T) {
	f := newFixture(t)
	organizer := uuid.New()

	created, err := f.svc.Create(context.Background(), CreateEventInput{
		OrganizerID:     organizer,
		OrganizerRole:   enums.UserRoleOrganizer,
		Title:           " Rooftop mixer ",
		StartAt:         f.now.Add(48 * time.Hour),
		Capacity:        dbtest.Capacity(40),
		PriceCents:      1250,
		WaitlistEnabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Rooftop mixer", created.Title)
	assert.Equal(t, enums.EventStatusActive, created.Status)
	assert.Equal(t, "12.50", created.Price)
	require.NotNil(t, created.AvailableSpots)
	assert.Equal(t, 40, *created.AvailableSpots)

	got, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, organizer, got.OrganizerID)

	_, err = f.svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestStatsCountsStatusesAndHeadcount(t *testing.T) {
	f := newFixture(t)
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(4)
		e.WaitlistEnabled = true
		e.AllowPlusOnes = true
	})

	a := dbtest.SeedUser(t, f.conn, 0)
	b := dbtest.SeedUser(t, f.conn, 0)
	c := dbtest.SeedUser(t, f.conn, 0)
	d := dbtest.SeedUser(t, f.conn, 0)
	e := dbtest.SeedUser(t, f.conn, 0)

	f.respond(t, a.ID, event.ID, enums.RSVPStatusAccepted, 2, "")
	f.respond(t, b.ID, event.ID, enums.RSVPStatusMaybe, 0, "")
	f.respond(t, c.ID, event.ID, enums.RSVPStatusDeclined, 0, "")
	// d's party of two does not fit the last seat, so d lands on the waitlist.
	f.respond(t, d.ID, event.ID, enums.RSVPStatusAccepted, 1, "")
	f.respond(t, e.ID, event.ID, enums.RSVPStatusAccepted, 0, "")

	require.NoError(t, f.conn.Model(&models.RSVP{}).
		Where("event_id = ? AND user_id = ?", event.ID, a.ID).
		Update("checked_in", true).Error)

	stats, err := f.svc.Stats(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Accepted)
	assert.Equal(t, int64(1), stats.Maybe)
	assert.Equal(t, int64(1), stats.Declined)
	assert.Equal(t, int64(1), stats.Waitlisted)
	assert.Equal(t, 4, stats.Headcount)
	require.NotNil(t, stats.AvailableSpots)
	assert.Equal(t, 0, *stats.AvailableSpots)
	assert.Equal(t, int64(1), stats.CheckedIn)
}

func TestStatsUnlimitedEvent(t *testing.T) {
	f := newFixture(t)
	event := dbtest.SeedEvent(t, f.conn, nil)
	f.respond(t, dbtest.SeedUser(t, f.conn, 0).ID, event.ID, enums.RSVPStatusAccepted, 0, "")

	stats, err := f.svc.Stats(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Nil(t, stats.Capacity)
	assert.Nil(t, stats.AvailableSpots)
	assert.Equal(t, 1, stats.Headcount)
}

func TestUpdateCapacityRejectsShrinkBelowHeadcount(t *testing.T) {
	f := newFixture(t)
	organizer := uuid.New()
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.OrganizerID = organizer
		e.Capacity = dbtest.Capacity(5)
	})
	f.respond(t, dbtest.SeedUser(t, f.conn, 0).ID, event.ID, enums.RSVPStatusAccepted, 0, "")
	f.respond(t, dbtest.SeedUser(t, f.conn, 0).ID, event.ID, enums.RSVPStatusAccepted, 0, "")

	_, err := f.svc.UpdateCapacity(context.Background(), UpdateCapacityInput{
		EventID:   event.ID,
		ActorID:   organizer,
		ActorRole: enums.UserRoleOrganizer,
		Capacity:  dbtest.Capacity(1),
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	assert.Equal(t, 5, *dbtest.Reload(t, f.conn, event.ID).Capacity)

	result, err := f.svc.UpdateCapacity(context.Background(), UpdateCapacityInput{
		EventID:   event.ID,
		ActorID:   organizer,
		ActorRole: enums.UserRoleOrganizer,
		Capacity:  dbtest.Capacity(2),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Promoted)
	require.NotNil(t, result.Event.AvailableSpots)
	assert.Equal(t, 0, *result.Event.AvailableSpots)
}

func TestUpdateCapacityIncreasePromotesWaitlist(t *testing.T) {
	f := newFixture(t)
	organizer := uuid.New()
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.OrganizerID = organizer
		e.Capacity = dbtest.Capacity(1)
		e.WaitlistEnabled = true
	})
	first := dbtest.SeedUser(t, f.conn, 0)
	second := dbtest.SeedUser(t, f.conn, 0)
	third := dbtest.SeedUser(t, f.conn, 0)
	f.respond(t, first.ID, event.ID, enums.RSVPStatusAccepted, 0, "")
	waiting := f.respond(t, second.ID, event.ID, enums.RSVPStatusAccepted, 0, "")
	require.Equal(t, rsvps.OutcomeWaitlisted, waiting.Outcome)
	f.respond(t, third.ID, event.ID, enums.RSVPStatusAccepted, 0, "")

	result, err := f.svc.UpdateCapacity(context.Background(), UpdateCapacityInput{
		EventID:   event.ID,
		ActorID:   organizer,
		ActorRole: enums.UserRoleOrganizer,
		Capacity:  dbtest.Capacity(2),
	})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{waiting.RSVP.ID}, result.Promoted)
	assert.Equal(t, 2, result.Event.AdmittedHeadcount)

	var promoted models.RSVP
	require.NoError(t, f.conn.First(&promoted, "id = ?", waiting.RSVP.ID).Error)
	assert.Equal(t, enums.RSVPStatusAccepted, promoted.Status)
	assert.NotNil(t, promoted.AdmissionToken)
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventEventCapacityChanged))
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventRSVPPromoted))
}

func TestUpdateCapacityToUnlimitedPromotesEveryone(t *testing.T) {
	f := newFixture(t)
	organizer := uuid.New()
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.OrganizerID = organizer
		e.Capacity = dbtest.Capacity(1)
		e.WaitlistEnabled = true
	})
	for i := 0; i < 3; i++ {
		f.respond(t, dbtest.SeedUser(t, f.conn, 0).ID, event.ID, enums.RSVPStatusAccepted, 0, "")
	}

	result, err := f.svc.UpdateCapacity(context.Background(), UpdateCapacityInput{
		EventID:   event.ID,
		ActorID:   organizer,
		ActorRole: enums.UserRoleOrganizer,
	})
	require.NoError(t, err)
	assert.Len(t, result.Promoted, 2)
	assert.Nil(t, result.Event.Capacity)
	assert.Equal(t, 3, dbtest.Reload(t, f.conn, event.ID).AdmittedHeadcount)
}

func TestUpdateCapacityAuthorization(t *testing.T) {
	f := newFixture(t)
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) { e.Capacity = dbtest.Capacity(3) })

	_, err := f.svc.UpdateCapacity(context.Background(), UpdateCapacityInput{
		EventID:   event.ID,
		ActorID:   uuid.New(),
		ActorRole: enums.UserRoleOrganizer,
		Capacity:  dbtest.Capacity(10),
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = f.svc.UpdateCapacity(context.Background(), UpdateCapacityInput{
		EventID:   event.ID,
		ActorID:   uuid.New(),
		ActorRole: enums.UserRoleAdmin,
		Capacity:  dbtest.Capacity(10),
	})
	require.NoError(t, err)
	assert.Equal(t, 10, *dbtest.Reload(t, f.conn, event.ID).Capacity)

	_, err = f.svc.UpdateCapacity(context.Background(), UpdateCapacityInput{
		EventID:   event.ID,
		ActorID:   uuid.New(),
		ActorRole: enums.UserRoleAdmin,
		Capacity:  dbtest.Capacity(0),
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestCancelRefundsCreditPayments(t *testing.T) {
	f := newFixture(t)
	organizer := uuid.New()
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.OrganizerID = organizer
		e.Capacity = dbtest.Capacity(1)
		e.PriceCents = 1500
		e.WaitlistEnabled = true
	})
	payer := dbtest.SeedUser(t, f.conn, 2000)
	cash := dbtest.SeedUser(t, f.conn, 0)
	waiting := dbtest.SeedUser(t, f.conn, 2000)

	f.respond(t, payer.ID, event.ID, enums.RSVPStatusAccepted, 0, enums.PaymentMethodCredit)
	f.respond(t, waiting.ID, event.ID, enums.RSVPStatusAccepted, 0, enums.PaymentMethodCredit)
	f.respond(t, cash.ID, event.ID, enums.RSVPStatusMaybe, 0, "")
	require.Equal(t, int64(500), dbtest.Balance(t, f.conn, payer.ID))

	result, err := f.svc.Cancel(context.Background(), CancelEventInput{
		EventID:   event.ID,
		ActorID:   organizer,
		ActorRole: enums.UserRoleOrganizer,
		Reason:    "venue flooded",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.EventStatusCancelled, result.Event.Status)
	assert.Equal(t, 3, result.Affected)
	assert.Equal(t, 1, result.Refunded)
	assert.Equal(t, int64(1500), result.RefundedCents)

	assert.Equal(t, int64(2000), dbtest.Balance(t, f.conn, payer.ID))
	assert.Equal(t, int64(2000), dbtest.Balance(t, f.conn, waiting.ID))

	var row models.RSVP
	require.NoError(t, f.conn.First(&row, "event_id = ? AND user_id = ?", event.ID, payer.ID).Error)
	assert.Equal(t, enums.RSVPStatusAccepted, row.Status)
	assert.Equal(t, enums.PaymentStatusRefunded, row.PaymentStatus)
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventEventCancelled))

	again, err := f.svc.Cancel(context.Background(), CancelEventInput{
		EventID:   event.ID,
		ActorID:   organizer,
		ActorRole: enums.UserRoleOrganizer,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Refunded)
	assert.Equal(t, int64(2000), dbtest.Balance(t, f.conn, payer.ID))
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventEventCancelled))

	_, err = f.rsvps.Respond(context.Background(), rsvps.RespondInput{
		EventID: event.ID,
		UserID:  cash.ID,
		Status:  enums.RSVPStatusAccepted,
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeEventUnavailable))
}

func TestCancelForbiddenAndCompleted(t *testing.T) {
	f := newFixture(t)
	event := dbtest.SeedEvent(t, f.conn, nil)

	_, err := f.svc.Cancel(context.Background(), CancelEventInput{
		EventID:   event.ID,
		ActorID:   uuid.New(),
		ActorRole: enums.UserRoleAttendee,
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	require.NoError(t, f.conn.Model(&models.Event{}).Where("id = ?", event.ID).
		Update("status", enums.EventStatusCompleted).Error)
	_, err = f.svc.Cancel(context.Background(), CancelEventInput{
		EventID:   event.ID,
		ActorID:   event.OrganizerID,
		ActorRole: enums.UserRoleOrganizer,
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
}

func TestCompleteDueMarksPastEvents(t *testing.T) {
	f := newFixture(t)
	past := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.StartAt = f.now.Add(-4 * time.Hour)
	})
	ended := f.now.Add(-time.Hour)
	pastWithEnd := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.StartAt = f.now.Add(-3 * time.Hour)
		e.EndAt = &ended
	})
	running := f.now.Add(2 * time.Hour)
	ongoing := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.StartAt = f.now.Add(-time.Hour)
		e.EndAt = &running
	})
	cancelled := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.StartAt = f.now.Add(-5 * time.Hour)
		e.Status = enums.EventStatusCancelled
	})

	completed, err := f.svc.CompleteDue(context.Background(), f.now, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, completed)

	assert.Equal(t, enums.EventStatusCompleted, dbtest.Reload(t, f.conn, past.ID).Status)
	assert.Equal(t, enums.EventStatusCompleted, dbtest.Reload(t, f.conn, pastWithEnd.ID).Status)
	assert.Equal(t, enums.EventStatusActive, dbtest.Reload(t, f.conn, ongoing.ID).Status)
	assert.Equal(t, enums.EventStatusCancelled, dbtest.Reload(t, f.conn, cancelled.ID).Status)
	assert.Equal(t, int64(2), f.outboxCount(t, enums.EventEventCompleted))

	again, err := f.svc.CompleteDue(context.Background(), f.now, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}

func TestGrew(t *testing.T) {
	assert.True(t, grew(dbtest.Capacity(1), dbtest.Capacity(2)))
	assert.True(t, grew(dbtest.Capacity(1), nil))
	assert.False(t, grew(nil, dbtest.Capacity(5)))
	assert.False(t, grew(nil, nil))
	assert.False(t, grew(dbtest.Capacity(3), dbtest.Capacity(3)))
}
