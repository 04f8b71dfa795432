package capacity

import (
	"context"
	"sync"
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
)

func TestReserveWithinCapacity(t *testing.T) {
	conn := dbtest.Open(t)
	event := dbtest.SeedEvent(t, conn, func(e *models.Event) { e.Capacity = dbtest.Capacity(3) })
	guard := NewGuard()
	ctx := context.Background()

	require.NoError(t, guard.Reserve(ctx, conn, &event, 2))
	assert.Equal(t, 2, event.AdmittedHeadcount)

	err := guard.Reserve(ctx, conn, &event, 2)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeCapacityExceeded))
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, 1, details["available_spots"])

	require.NoError(t, guard.Reserve(ctx, conn, &event, 1))
	assert.Equal(t, 3, dbtest.Reload(t, conn, event.ID).AdmittedHeadcount)
}

func TestReserveNegativeDeltaAlwaysSucceeds(t *testing.T) {
	conn := dbtest.Open(t)
	event := dbtest.SeedEvent(t, conn, func(e *models.Event) {
		e.Capacity = dbtest.Capacity(2)
		e.AdmittedHeadcount = 2
	})
	guard := NewGuard()

	require.NoError(t, guard.Reserve(context.Background(), conn, &event, -1))
	assert.Equal(t, 1, event.AdmittedHeadcount)
	assert.Equal(t, 1, dbtest.Reload(t, conn, event.ID).AdmittedHeadcount)
}

func TestReleaseFloorsAtZero(t *testing.T) {
	conn := dbtest.Open(t)
	event := dbtest.SeedEvent(t, conn, func(e *models.Event) { e.AdmittedHeadcount = 1 })
	guard := NewGuard()

	require.NoError(t, guard.Release(context.Background(), conn, &event, 4))
	assert.Equal(t, 0, event.AdmittedHeadcount)
	assert.Equal(t, 0, dbtest.Reload(t, conn, event.ID).AdmittedHeadcount)
}

func TestReserveUnlimited(t *testing.T) {
	conn := dbtest.Open(t)
	event := dbtest.SeedEvent(t, conn, nil)
	guard := NewGuard()

	require.NoError(t, guard.Reserve(context.Background(), conn, &event, 500))
	assert.Equal(t, 500, dbtest.Reload(t, conn, event.ID).AdmittedHeadcount)
}

func TestLockEventMissing(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewGuard().LockEvent(context.Background(), conn, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestConcurrentReservationsNeverOverbook(t *testing.T) {
	conn := dbtest.Open(t)
	event := dbtest.SeedEvent(t, conn, func(e *models.Event) { e.Capacity = dbtest.Capacity(3) })
	guard := NewGuard()
	runner := db.NewFromGorm(conn)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
				locked, err := guard.LockEvent(context.Background(), tx, event.ID)
				if err != nil {
					return err
				}
				return guard.Reserve(context.Background(), tx, locked, 1)
			})
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, admitted)
	assert.Equal(t, 3, dbtest.Reload(t, conn, event.ID).AdmittedHeadcount)
}

func TestHeadcountAndReconcile(t *testing.T) {
	conn := dbtest.Open(t)
	event := dbtest.SeedEvent(t, conn, func(e *models.Event) { e.AdmittedHeadcount = 9 })
	for _, row := range []models.RSVP{
		{EventID: event.ID, UserID: uuid.New(), Status: enums.RSVPStatusAccepted, GuestCount: 2},
		{EventID: event.ID, UserID: uuid.New(), Status: enums.RSVPStatusAccepted},
		{EventID: event.ID, UserID: uuid.New(), Status: enums.RSVPStatusMaybe, GuestCount: 4},
	} {
		require.NoError(t, conn.Create(&row).Error)
	}
	guard := NewGuard()

	total, err := guard.Headcount(context.Background(), conn, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	drifted, err := guard.Reconcile(context.Background(), conn, &event)
	require.NoError(t, err)
	assert.True(t, drifted)
	assert.Equal(t, 4, dbtest.Reload(t, conn, event.ID).AdmittedHeadcount)

	drifted, err = guard.Reconcile(context.Background(), conn, &event)
	require.NoError(t, err)
	assert.False(t, drifted)
}
