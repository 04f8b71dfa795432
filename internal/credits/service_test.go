package credits

import (
	"context"
	"io"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/dbtest"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox"
	"github.com/angelmondragon/eventrsvp-backend/pkg/pagination"
)

func newLedger(t *testing.T) (Ledger, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(db.NewFromGorm(conn), NewRepository(conn), outbox.NewService(outbox.NewRepository(conn), logg), nil)
	require.NoError(t, err)
	return svc, conn
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewService(nil, NewRepository(conn), nil, nil)
	assert.Error(t, err)
	_, err = NewService(db.NewFromGorm(conn), nil, nil, nil)
	assert.Error(t, err)
	_, err = NewService(db.NewFromGorm(conn), NewRepository(conn), nil, nil)
	assert.Error(t, err)
}

func TestDebitWithinBalance(t *testing.T) {
	svc, conn := newLedger(t)
	user := dbtest.SeedUser(t, conn, 2500)
	rsvpID := uuid.New()

	var balance int64
	err := db.NewFromGorm(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		balance, err = svc.Debit(context.Background(), tx, user.ID, 2000, Reference{RSVPID: &rsvpID, Note: "admission"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)
	assert.Equal(t, int64(500), dbtest.Balance(t, conn, user.ID))

	var entries []models.CreditTransaction
	require.NoError(t, conn.Find(&entries, "user_id = ?", user.ID).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, enums.CreditTransactionDebit, entries[0].Type)
	assert.Equal(t, int64(2000), entries[0].AmountCents)
	assert.Equal(t, int64(500), entries[0].BalanceAfterCents)
	require.NotNil(t, entries[0].RSVPID)
	assert.Equal(t, rsvpID, *entries[0].RSVPID)
}

func TestDebitInsufficientFundsLeavesBalance(t *testing.T) {
	svc, conn := newLedger(t)
	user := dbtest.SeedUser(t, conn, 1500)

	err := db.NewFromGorm(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := svc.Debit(context.Background(), tx, user.ID, 2000, Reference{})
		return err
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientFunds))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1500), details["balance_cents"])
	assert.Equal(t, int64(1500), dbtest.Balance(t, conn, user.ID))

	var count int64
	require.NoError(t, conn.Model(&models.CreditTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDebitUnknownUser(t *testing.T) {
	svc, conn := newLedger(t)
	err := db.NewFromGorm(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := svc.Debit(context.Background(), tx, uuid.New(), 100, Reference{})
		return err
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestCreditRefundQueuesEvent(t *testing.T) {
	svc, conn := newLedger(t)
	user := dbtest.SeedUser(t, conn, 0)

	err := db.NewFromGorm(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		balance, err := svc.Credit(context.Background(), tx, enums.CreditTransactionRefund, user.ID, 2000, Reference{Note: "rsvp declined"})
		assert.Equal(t, int64(2000), balance)
		return err
	})
	require.NoError(t, err)

	var events []models.OutboxEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventCreditRefunded, events[0].EventType)
}

func TestCreditRejectsDebitKind(t *testing.T) {
	svc, conn := newLedger(t)
	user := dbtest.SeedUser(t, conn, 0)
	_, err := svc.Credit(context.Background(), conn, enums.CreditTransactionDebit, user.ID, 100, Reference{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestGrantRequiresAdmin(t *testing.T) {
	svc, conn := newLedger(t)
	user := dbtest.SeedUser(t, conn, 0)

	_, err := svc.Grant(context.Background(), GrantInput{ActorRole: enums.UserRoleOrganizer, UserID: user.ID, AmountCents: 100})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	view, err := svc.Grant(context.Background(), GrantInput{ActorID: uuid.New(), ActorRole: enums.UserRoleAdmin, UserID: user.ID, AmountCents: 1250})
	require.NoError(t, err)
	assert.Equal(t, int64(1250), view.BalanceCents)
	assert.Equal(t, "12.50", view.Balance)
}

func TestSetBalanceClampsAndAudits(t *testing.T) {
	svc, conn := newLedger(t)
	user := dbtest.SeedUser(t, conn, 900)
	admin := uuid.New()

	view, err := svc.SetBalance(context.Background(), SetBalanceInput{ActorID: admin, ActorRole: enums.UserRoleAdmin, UserID: user.ID, BalanceCents: 3000})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), view.BalanceCents)

	view, err = svc.SetBalance(context.Background(), SetBalanceInput{ActorID: admin, ActorRole: enums.UserRoleAdmin, UserID: user.ID, BalanceCents: -50})
	require.NoError(t, err)
	assert.Equal(t, int64(0), view.BalanceCents)
	assert.Equal(t, int64(0), dbtest.Balance(t, conn, user.ID))

	history, err := svc.History(context.Background(), user.ID, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, history.Items, 2)
	types := []enums.CreditTransactionType{history.Items[0].Type, history.Items[1].Type}
	assert.ElementsMatch(t, []enums.CreditTransactionType{enums.CreditTransactionGrant, enums.CreditTransactionDebit}, types)
}

func TestHistoryPaginates(t *testing.T) {
	svc, conn := newLedger(t)
	user := dbtest.SeedUser(t, conn, 0)
	for i := 0; i < 3; i++ {
		_, err := svc.Grant(context.Background(), GrantInput{ActorRole: enums.UserRoleAdmin, UserID: user.ID, AmountCents: 100})
		require.NoError(t, err)
	}

	first, err := svc.History(context.Background(), user.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.Cursor)

	second, err := svc.History(context.Background(), user.ID, pagination.Params{Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.Cursor)

	seen := map[uuid.UUID]bool{}
	for _, item := range append(first.Items, second.Items...) {
		assert.False(t, seen[item.ID], "duplicate entry across pages")
		seen[item.ID] = true
	}
}

func TestBalanceNeverNegative(t *testing.T) {
	svc, conn := newLedger(t)
	user := dbtest.SeedUser(t, conn, 1000)
	runner := db.NewFromGorm(conn)
	rng := rand.New(rand.NewSource(42))

	expected := int64(1000)
	for i := 0; i < 200; i++ {
		amount := int64(rng.Intn(700) + 1)
		if rng.Intn(3) == 0 {
			err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
				_, err := svc.Credit(context.Background(), tx, enums.CreditTransactionRefund, user.ID, amount, Reference{})
				return err
			})
			require.NoError(t, err)
			expected += amount
			continue
		}
		err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
			_, err := svc.Debit(context.Background(), tx, user.ID, amount, Reference{})
			return err
		})
		if amount > expected {
			require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientFunds))
		} else {
			require.NoError(t, err)
			expected -= amount
		}
		balance := dbtest.Balance(t, conn, user.ID)
		require.GreaterOrEqual(t, balance, int64(0))
		require.Equal(t, expected, balance)
	}
}
