// Package tokens mints the opaque admission tokens presented at the door.
package tokens

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
)

// DefaultAttempts bounds how many fresh tokens are tried before giving up.
const DefaultAttempts = 3

// Generator produces candidate token values.
type Generator func() string

// Issuer assigns unique admission tokens to RSVP rows.
type Issuer struct {
	generate Generator
	attempts int
	logg     *logger.Logger
}

// IssuerParams configures NewIssuer. Zero values fall back to uuid v4 tokens and
// DefaultAttempts.
type IssuerParams struct {
	Generate Generator
	Attempts int
	Logger   *logger.Logger
}

func NewIssuer(params IssuerParams) (*Issuer, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Generate == nil {
		params.Generate = uuid.NewString
	}
	if params.Attempts <= 0 {
		params.Attempts = DefaultAttempts
	}
	return &Issuer{generate: params.Generate, attempts: params.Attempts, logg: params.Logger}, nil
}

// Issue returns a fresh candidate token. Uniqueness is only guaranteed by Assign.
func (i *Issuer) Issue() string {
	return i.generate()
}

// Assign writes a new token onto the RSVP identified by rsvpID inside tx. Each
// attempt runs in its own savepoint so a unique violation on the token index
// does not poison the surrounding transaction.
func (i *Issuer) Assign(ctx context.Context, tx *gorm.DB, rsvpID uuid.UUID) (string, error) {
	if tx == nil {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	for attempt := 1; attempt <= i.attempts; attempt++ {
		token := i.Issue()
		var affected int64
		err := tx.Transaction(func(sp *gorm.DB) error {
			result := sp.WithContext(ctx).
				Model(&models.RSVP{}).
				Where("id = ?", rsvpID).
				Update("admission_token", token)
			affected = result.RowsAffected
			return result.Error
		})
		switch {
		case err == nil && affected == 0:
			return "", pkgerrors.New(pkgerrors.CodeNotFound, "rsvp not found")
		case err == nil:
			return token, nil
		case db.IsUniqueViolation(err, ""):
			ctx := i.logg.WithField(ctx, "attempt", attempt)
			i.logg.Warn(ctx, "admission token collision")
			continue
		default:
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign admission token")
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeUnavailable, "could not issue a unique admission token")
}
