package tokens

import (
	"context"
	"io"
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
)

func sequence(values ...string) Generator {
	i := 0
	return func() string {
		v := values[i%len(values)]
		i++
		return v
	}
}

func seedRSVP(t *testing.T, conn *gorm.DB, eventID uuid.UUID) models.RSVP {
	t.Helper()
	user := dbtest.SeedUser(t, conn, 0)
	rsvp := models.RSVP{EventID: eventID, UserID: user.ID, Status: enums.RSVPStatusAccepted}
	require.NoError(t, conn.Create(&rsvp).Error)
	return rsvp
}

func newIssuer(t *testing.T, gen Generator) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(IssuerParams{
		Generate: gen,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return issuer
}

func TestIssueDefaultsToUUID(t *testing.T) {
	issuer := newIssuer(t, nil)
	a, b := issuer.Issue(), issuer.Issue()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestAssignRetriesOnCollision(t *testing.T) {
	conn := dbtest.Open(t)
	event := dbtest.SeedEvent(t, conn, nil)
	first := seedRSVP(t, conn, event.ID)
	second := seedRSVP(t, conn, event.ID)

	issuer := newIssuer(t, sequence("tok-a", "tok-a", "tok-b"))
	runner := db.NewFromGorm(conn)

	err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		token, err := issuer.Assign(context.Background(), tx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "tok-a", token)

		token, err = issuer.Assign(context.Background(), tx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, "tok-b", token)
		return nil
	})
	require.NoError(t, err)

	var rows []models.RSVP
	require.NoError(t, conn.Order("admission_token").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].AdmissionToken)
	require.NotNil(t, rows[1].AdmissionToken)
	assert.Equal(t, "tok-a", *rows[0].AdmissionToken)
	assert.Equal(t, "tok-b", *rows[1].AdmissionToken)
}

func TestAssignExhaustsAttempts(t *testing.T) {
	conn := dbtest.Open(t)
	event := dbtest.SeedEvent(t, conn, nil)
	first := seedRSVP(t, conn, event.ID)
	second := seedRSVP(t, conn, event.ID)

	issuer := newIssuer(t, sequence("same"))
	runner := db.NewFromGorm(conn)
	err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := issuer.Assign(context.Background(), tx, first.ID)
		return err
	})
	require.NoError(t, err)

	err = runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := issuer.Assign(context.Background(), tx, second.ID)
		return err
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnavailable))
}

func TestAssignUnknownRSVP(t *testing.T) {
	conn := dbtest.Open(t)
	issuer := newIssuer(t, nil)
	err := db.NewFromGorm(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := issuer.Assign(context.Background(), tx, uuid.New())
		return err
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestNewIssuerRequiresLogger(t *testing.T) {
	_, err := NewIssuer(IssuerParams{})
	assert.Error(t, err)
}
