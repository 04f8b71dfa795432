package waitlist

import (
	"context"
	"encoding/json"
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
	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/dbtest"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox/payloads"
)

type fixture struct {
	conn     *gorm.DB
	runner   *db.Client
	promoter *Promoter
}

func newFixture(t *testing.T, opts ...func(*PromoterParams)) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	runner := db.NewFromGorm(conn)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	ledger, err := credits.NewService(runner, credits.NewRepository(conn), emitter, nil)
	require.NoError(t, err)
	issuer, err := tokens.NewIssuer(tokens.IssuerParams{Logger: logg})
	require.NoError(t, err)
	params := PromoterParams{
		Repo:   NewRepository(conn),
		Guard:  capacity.NewGuard(),
		Ledger: ledger,
		Tokens: issuer,
		Outbox: emitter,
		Logger: logg,
	}
	for _, opt := range opts {
		opt(&params)
	}
	promoter, err := NewPromoter(params)
	require.NoError(t, err)
	return fixture{conn: conn, runner: runner, promoter: promoter}
}

func (f fixture) waitlist(t *testing.T, eventID uuid.UUID, guests int, balance int64, queuedAt time.Time) models.RSVP {
	t.Helper()
	user := dbtest.SeedUser(t, f.conn, balance)
	method := enums.PaymentMethodCredit
	row := models.RSVP{
		EventID:       eventID,
		UserID:        user.ID,
		Status:        enums.RSVPStatusWaitlisted,
		GuestCount:    guests,
		PaymentMethod: &method,
		WaitlistedAt:  &queuedAt,
	}
	require.NoError(t, f.conn.Create(&row).Error)
	return row
}

func (f fixture) promote(t *testing.T, eventID uuid.UUID) *Result {
	t.Helper()
	var result *Result
	err := f.runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		event, err := capacity.NewGuard().LockEvent(context.Background(), tx, eventID)
		if err != nil {
			return err
		}
		result, err = f.promoter.PromoteNext(context.Background(), tx, event)
		return err
	})
	require.NoError(t, err)
	return result
}

func (f fixture) load(t *testing.T, id uuid.UUID) models.RSVP {
	t.Helper()
	var row models.RSVP
	require.NoError(t, f.conn.First(&row, "id = ?", id).Error)
	return row
}

func TestPromoteNextFIFO(t *testing.T) {
	f := newFixture(t)
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(1)
		e.WaitlistEnabled = true
	})
	base := time.Now().UTC().Add(-time.Hour)
	second := f.waitlist(t, event.ID, 0, 0, base.Add(time.Minute))
	first := f.waitlist(t, event.ID, 0, 0, base)

	result := f.promote(t, event.ID)
	require.Len(t, result.Promoted, 1)
	assert.Equal(t, first.ID, result.Promoted[0].ID)

	promoted := f.load(t, first.ID)
	assert.Equal(t, enums.RSVPStatusAccepted, promoted.Status)
	require.NotNil(t, promoted.AdmissionToken)
	assert.Nil(t, promoted.WaitlistedAt)
	assert.Equal(t, enums.PaymentStatusPaid, promoted.PaymentStatus)

	assert.Equal(t, enums.RSVPStatusWaitlisted, f.load(t, second.ID).Status)
	assert.Equal(t, 1, dbtest.Reload(t, f.conn, event.ID).AdmittedHeadcount)
}

func TestPromoteNextSkipsPartiesThatDoNotFit(t *testing.T) {
	f := newFixture(t)
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(3)
		e.AdmittedHeadcount = 1
		e.WaitlistEnabled = true
	})
	base := time.Now().UTC().Add(-time.Hour)
	large := f.waitlist(t, event.ID, 3, 0, base)
	small := f.waitlist(t, event.ID, 1, 0, base.Add(time.Minute))

	result := f.promote(t, event.ID)
	require.Len(t, result.Promoted, 1)
	assert.Equal(t, small.ID, result.Promoted[0].ID)
	assert.Equal(t, enums.RSVPStatusWaitlisted, f.load(t, large.ID).Status)
	assert.Equal(t, 3, dbtest.Reload(t, f.conn, event.ID).AdmittedHeadcount)
}

func TestPromoteNextSkipsCandidatesWhoCannotPay(t *testing.T) {
	f := newFixture(t)
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(1)
		e.PriceCents = 2000
		e.WaitlistEnabled = true
	})
	base := time.Now().UTC().Add(-time.Hour)
	broke := f.waitlist(t, event.ID, 0, 1500, base)
	funded := f.waitlist(t, event.ID, 0, 2500, base.Add(time.Minute))

	result := f.promote(t, event.ID)
	require.Len(t, result.Promoted, 1)
	assert.Equal(t, funded.ID, result.Promoted[0].ID)
	assert.Equal(t, []uuid.UUID{broke.ID}, result.Failed)

	assert.Equal(t, enums.RSVPStatusWaitlisted, f.load(t, broke.ID).Status)
	assert.Equal(t, int64(1500), dbtest.Balance(t, f.conn, broke.UserID))
	assert.Equal(t, int64(500), dbtest.Balance(t, f.conn, funded.UserID))

	promoted := f.load(t, funded.ID)
	assert.Equal(t, int64(2000), promoted.PaymentAmountCents)
	assert.Equal(t, 1, dbtest.Reload(t, f.conn, event.ID).AdmittedHeadcount)

	var failures int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventRSVPPromotionFailed).Count(&failures).Error)
	assert.Equal(t, int64(1), failures)
}

func TestPromoteNextNoRoom(t *testing.T) {
	f := newFixture(t)
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(2)
		e.AdmittedHeadcount = 2
		e.WaitlistEnabled = true
	})
	queued := f.waitlist(t, event.ID, 0, 0, time.Now().UTC())

	result := f.promote(t, event.ID)
	assert.Empty(t, result.Promoted)
	assert.Equal(t, enums.RSVPStatusWaitlisted, f.load(t, queued.ID).Status)
}

func TestPromoteNextIgnoresInactiveEvents(t *testing.T) {
	f := newFixture(t)
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(5)
		e.Status = enums.EventStatusCancelled
	})
	queued := f.waitlist(t, event.ID, 0, 0, time.Now().UTC())

	result := f.promote(t, event.ID)
	assert.Empty(t, result.Promoted)
	assert.Equal(t, enums.RSVPStatusWaitlisted, f.load(t, queued.ID).Status)
}

func TestEventsWithWaitlist(t *testing.T) {
	f := newFixture(t)
	active := dbtest.SeedEvent(t, f.conn, func(e *models.Event) { e.WaitlistEnabled = true })
	cancelled := dbtest.SeedEvent(t, f.conn, func(e *models.Event) { e.Status = enums.EventStatusCancelled })
	f.waitlist(t, active.ID, 0, 0, time.Now().UTC())
	f.waitlist(t, active.ID, 0, 0, time.Now().UTC())
	f.waitlist(t, cancelled.ID, 0, 0, time.Now().UTC())

	ids, err := NewRepository(f.conn).EventsWithWaitlist(context.Background(), uuid.Nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{active.ID}, ids)
}

func (f fixture) failures(t *testing.T) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", enums.EventRSVPPromotionFailed).Find(&rows).Error)
	return rows
}

func TestPromoteNextReachesSmallPartyBehindLargeOnes(t *testing.T) {
	f := newFixture(t)
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(3)
		e.AdmittedHeadcount = 2
		e.WaitlistEnabled = true
		e.AllowPlusOnes = true
	})
	base := time.Now().UTC().Add(-2 * time.Hour)
	for i := 0; i < DefaultBatch+5; i++ {
		f.waitlist(t, event.ID, 3, 0, base.Add(time.Duration(i)*time.Second))
	}
	solo := f.waitlist(t, event.ID, 0, 0, base.Add(time.Hour))

	result := f.promote(t, event.ID)
	require.Len(t, result.Promoted, 1)
	assert.Equal(t, solo.ID, result.Promoted[0].ID)
	assert.Equal(t, enums.RSVPStatusAccepted, f.load(t, solo.ID).Status)
	assert.Equal(t, 3, dbtest.Reload(t, f.conn, event.ID).AdmittedHeadcount)
}

func TestPromoteNextPagesPastCandidatesWhoCannotPay(t *testing.T) {
	f := newFixture(t, func(p *PromoterParams) { p.Batch = 2 })
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(1)
		e.PriceCents = 2000
		e.WaitlistEnabled = true
	})
	base := time.Now().UTC().Add(-time.Hour)
	var broke []uuid.UUID
	for i := 0; i < 5; i++ {
		broke = append(broke, f.waitlist(t, event.ID, 0, 100, base.Add(time.Duration(i)*time.Minute)).ID)
	}
	funded := f.waitlist(t, event.ID, 0, 2000, base.Add(time.Hour))

	result := f.promote(t, event.ID)
	require.Len(t, result.Promoted, 1)
	assert.Equal(t, funded.ID, result.Promoted[0].ID)
	assert.ElementsMatch(t, broke, result.Failed)
	assert.Equal(t, int64(0), dbtest.Balance(t, f.conn, funded.UserID))
}

func TestPromoteNextSkipsPartyThatStopsFittingMidPass(t *testing.T) {
	f := newFixture(t)
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(3)
		e.WaitlistEnabled = true
		e.AllowPlusOnes = true
	})
	base := time.Now().UTC().Add(-time.Hour)
	first := f.waitlist(t, event.ID, 1, 0, base)
	pair := f.waitlist(t, event.ID, 1, 0, base.Add(time.Minute))
	solo := f.waitlist(t, event.ID, 0, 0, base.Add(2*time.Minute))

	result := f.promote(t, event.ID)
	assert.Equal(t, []uuid.UUID{first.ID, solo.ID}, result.PromotedIDs())
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, enums.RSVPStatusWaitlisted, f.load(t, pair.ID).Status)
	assert.Equal(t, 3, dbtest.Reload(t, f.conn, event.ID).AdmittedHeadcount)
}

func TestPromoteNextReportsPaymentFailureOnce(t *testing.T) {
	f := newFixture(t)
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(5)
		e.PriceCents = 2000
		e.WaitlistEnabled = true
	})
	broke := f.waitlist(t, event.ID, 0, 100, time.Now().UTC().Add(-time.Hour))

	for i := 0; i < 3; i++ {
		result := f.promote(t, event.ID)
		assert.Empty(t, result.Promoted)
		assert.Equal(t, []uuid.UUID{broke.ID}, result.Failed)
	}

	assert.Len(t, f.failures(t), 1)
	row := f.load(t, broke.ID)
	assert.Equal(t, enums.RSVPStatusWaitlisted, row.Status)
	require.NotNil(t, row.PromotionFailure)
	assert.Equal(t, string(pkgerrors.CodeInsufficientFunds), *row.PromotionFailure)
	assert.NotNil(t, row.PromotionFailedAt)
}

func TestPromoteNextClearsFailureOnAdmission(t *testing.T) {
	f := newFixture(t)
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(5)
		e.PriceCents = 2000
		e.WaitlistEnabled = true
	})
	queued := f.waitlist(t, event.ID, 0, 100, time.Now().UTC().Add(-time.Hour))
	f.promote(t, event.ID)

	require.NoError(t, f.conn.Model(&models.User{}).Where("id = ?", queued.UserID).
		Update("credit_balance_cents", 5000).Error)
	result := f.promote(t, event.ID)
	require.Len(t, result.Promoted, 1)

	row := f.load(t, queued.ID)
	assert.Equal(t, enums.RSVPStatusAccepted, row.Status)
	assert.Nil(t, row.PromotionFailure)
	assert.Nil(t, row.PromotionFailedAt)
}

type missingRowTokens struct{}

func (missingRowTokens) Assign(context.Context, *gorm.DB, uuid.UUID) (string, error) {
	return "", pkgerrors.New(pkgerrors.CodeNotFound, "rsvp not found")
}

func TestPromotionFailureCarriesRowAsQueued(t *testing.T) {
	f := newFixture(t, func(p *PromoterParams) { p.Tokens = missingRowTokens{} })
	event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(2)
		e.PriceCents = 2000
		e.WaitlistEnabled = true
	})
	queued := f.waitlist(t, event.ID, 0, 2500, time.Now().UTC().Add(-time.Hour))

	result := f.promote(t, event.ID)
	assert.Empty(t, result.Promoted)
	assert.Equal(t, []uuid.UUID{queued.ID}, result.Failed)
	assert.Equal(t, int64(2500), dbtest.Balance(t, f.conn, queued.UserID))
	assert.Equal(t, 0, dbtest.Reload(t, f.conn, event.ID).AdmittedHeadcount)

	rows := f.failures(t)
	require.Len(t, rows, 1)
	var env outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	var data payloads.RSVPEvent
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, enums.RSVPStatusWaitlisted, data.Status)
	assert.Equal(t, int64(0), data.PaymentAmountCents)
	assert.Empty(t, data.AdmissionToken)
	assert.Equal(t, string(pkgerrors.CodeNotFound), data.Reason)
}

func TestEventsWithWaitlistPagesEventsWithFreeSeats(t *testing.T) {
	f := newFixture(t)
	repo := NewRepository(f.conn)
	now := time.Now().UTC()

	var open []uuid.UUID
	for i := 0; i < 3; i++ {
		event := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
			e.Capacity = dbtest.Capacity(2)
			e.WaitlistEnabled = true
		})
		f.waitlist(t, event.ID, 0, 0, now)
		open = append(open, event.ID)
	}

	full := dbtest.SeedEvent(t, f.conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(1)
		e.AdmittedHeadcount = 1
		e.WaitlistEnabled = true
	})
	holder := dbtest.SeedUser(t, f.conn, 0)
	token := uuid.NewString()
	require.NoError(t, f.conn.Create(&models.RSVP{
		EventID:        full.ID,
		UserID:         holder.ID,
		Status:         enums.RSVPStatusAccepted,
		AdmissionToken: &token,
		PaymentStatus:  enums.PaymentStatusPaid,
	}).Error)
	f.waitlist(t, full.ID, 0, 0, now)

	var seen []uuid.UUID
	after := uuid.Nil
	for {
		ids, err := repo.EventsWithWaitlist(context.Background(), after, 2)
		require.NoError(t, err)
		seen = append(seen, ids...)
		if len(ids) < 2 {
			break
		}
		after = ids[len(ids)-1]
	}
	assert.ElementsMatch(t, open, seen)
	assert.NotContains(t, seen, full.ID)
}
