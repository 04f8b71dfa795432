package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/internal/capacity"
	"github.com/angelmondragon/eventrsvp-backend/internal/credits"
	"github.com/angelmondragon/eventrsvp-backend/internal/tokens"
	"github.com/angelmondragon/eventrsvp-backend/internal/waitlist"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/dbtest"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox"
)

func newSweepJob(t *testing.T, conn *gorm.DB, batch int) Job {
	t.Helper()
	runner := db.NewFromGorm(conn)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	guard := capacity.NewGuard()
	ledger, err := credits.NewService(runner, credits.NewRepository(conn), emitter, nil)
	require.NoError(t, err)
	issuer, err := tokens.NewIssuer(tokens.IssuerParams{Logger: logg})
	require.NoError(t, err)
	repo := waitlist.NewRepository(conn)
	promoter, err := waitlist.NewPromoter(waitlist.PromoterParams{
		Repo:   repo,
		Guard:  guard,
		Ledger: ledger,
		Tokens: issuer,
		Outbox: emitter,
		Logger: logg,
	})
	require.NoError(t, err)

	job, err := NewWaitlistSweepJob(WaitlistSweepJobParams{
		Logger:   logg,
		DB:       runner,
		Events:   repo,
		Guard:    guard,
		Promoter: promoter,
		Batch:    batch,
	})
	require.NoError(t, err)
	return job
}

func seedRSVP(t *testing.T, conn *gorm.DB, eventID uuid.UUID, status enums.RSVPStatus, queuedAt time.Time) models.RSVP {
	t.Helper()
	user := dbtest.SeedUser(t, conn, 0)
	row := models.RSVP{
		EventID:       eventID,
		UserID:        user.ID,
		Status:        status,
		PaymentStatus: enums.PaymentStatusPending,
	}
	if status == enums.RSVPStatusWaitlisted {
		row.WaitlistedAt = &queuedAt
	}
	if status == enums.RSVPStatusAccepted {
		token := uuid.NewString()
		row.AdmissionToken = &token
		row.PaymentStatus = enums.PaymentStatusPaid
	}
	require.NoError(t, conn.Create(&row).Error)
	return row
}

func TestWaitlistSweepRepairsDriftAndPromotes(t *testing.T) {
	conn := dbtest.Open(t)
	job := newSweepJob(t, conn, 0)
	base := time.Now().UTC().Add(-time.Hour)

	// The counter claims the event is full, but only one seat is really taken.
	event := dbtest.SeedEvent(t, conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(2)
		e.WaitlistEnabled = true
		e.AdmittedHeadcount = 2
	})
	seedRSVP(t, conn, event.ID, enums.RSVPStatusAccepted, base)
	oldest := seedRSVP(t, conn, event.ID, enums.RSVPStatusWaitlisted, base)
	younger := seedRSVP(t, conn, event.ID, enums.RSVPStatusWaitlisted, base.Add(time.Minute))

	require.NoError(t, job.Run(context.Background()))

	reloaded := dbtest.Reload(t, conn, event.ID)
	assert.Equal(t, 2, reloaded.AdmittedHeadcount)

	var rows []models.RSVP
	require.NoError(t, conn.Where("id IN ?", []uuid.UUID{oldest.ID, younger.ID}).Find(&rows).Error)
	statuses := map[uuid.UUID]enums.RSVPStatus{}
	for _, row := range rows {
		statuses[row.ID] = row.Status
	}
	assert.Equal(t, enums.RSVPStatusAccepted, statuses[oldest.ID])
	assert.Equal(t, enums.RSVPStatusWaitlisted, statuses[younger.ID])
}

func TestWaitlistSweepIgnoresInactiveEvents(t *testing.T) {
	conn := dbtest.Open(t)
	job := newSweepJob(t, conn, 0)

	event := dbtest.SeedEvent(t, conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(5)
		e.WaitlistEnabled = true
		e.Status = enums.EventStatusCancelled
	})
	queued := seedRSVP(t, conn, event.ID, enums.RSVPStatusWaitlisted, time.Now().UTC())

	require.NoError(t, job.Run(context.Background()))

	var row models.RSVP
	require.NoError(t, conn.First(&row, "id = ?", queued.ID).Error)
	assert.Equal(t, enums.RSVPStatusWaitlisted, row.Status)
}

type failingWaitlistEvents struct{}

func (failingWaitlistEvents) EventsWithWaitlist(context.Context, uuid.UUID, int) ([]uuid.UUID, error) {
	return nil, errors.New("db down")
}

func TestWaitlistSweepPropagatesListError(t *testing.T) {
	job, err := NewWaitlistSweepJob(WaitlistSweepJobParams{
		Logger:   testLogger(),
		DB:       passthroughTx{},
		Events:   failingWaitlistEvents{},
		Guard:    capacity.NewGuard(),
		Promoter: &waitlist.Promoter{},
	})
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
}

func TestWaitlistSweepVisitsEveryPage(t *testing.T) {
	conn := dbtest.Open(t)
	job := newSweepJob(t, conn, 2)
	base := time.Now().UTC().Add(-time.Hour)

	var queued []uuid.UUID
	for i := 0; i < 5; i++ {
		event := dbtest.SeedEvent(t, conn, func(e *models.Event) {
			e.Capacity = dbtest.Capacity(1)
			e.WaitlistEnabled = true
		})
		queued = append(queued, seedRSVP(t, conn, event.ID, enums.RSVPStatusWaitlisted, base).ID)
	}

	require.NoError(t, job.Run(context.Background()))

	var accepted int64
	require.NoError(t, conn.Model(&models.RSVP{}).
		Where("id IN ? AND status = ?", queued, enums.RSVPStatusAccepted).
		Count(&accepted).Error)
	assert.Equal(t, int64(len(queued)), accepted)
}
