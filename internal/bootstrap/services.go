package bootstrap

import (
	"github.com/angelmondragon/eventrsvp-backend/internal/capacity"
	"github.com/angelmondragon/eventrsvp-backend/internal/credits"
	"github.com/angelmondragon/eventrsvp-backend/internal/events"
	"github.com/angelmondragon/eventrsvp-backend/internal/tokens"
	"github.com/angelmondragon/eventrsvp-backend/internal/waitlist"
	"github.com/angelmondragon/eventrsvp-backend/pkg/config"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/metrics"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox"
)

// Admission is the admission core shared by the API and the cron worker.
// Every component shares one capacity guard so event rows are locked in a
// single, consistent order.
type Admission struct {
	OutboxRepo *outbox.Repository
	Outbox     *outbox.Service
	Guard      *capacity.Guard
	Ledger     credits.Ledger
	Tokens     *tokens.Issuer
	Waitlist   waitlist.Repository
	Promoter   *waitlist.Promoter
	Events     events.Service
}

func NewAdmission(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, recorder *metrics.AdmissionMetrics) (*Admission, error) {
	conn := dbClient.DB()
	a := &Admission{
		OutboxRepo: outbox.NewRepository(conn),
		Guard:      capacity.NewGuard(),
		Waitlist:   waitlist.NewRepository(conn),
	}
	a.Outbox = outbox.NewService(a.OutboxRepo, logg)

	var err error
	if a.Ledger, err = credits.NewService(dbClient, credits.NewRepository(conn), a.Outbox, recorder); err != nil {
		return nil, err
	}
	if a.Tokens, err = tokens.NewIssuer(tokens.IssuerParams{Attempts: cfg.RSVP.TokenAttempts, Logger: logg}); err != nil {
		return nil, err
	}
	a.Promoter, err = waitlist.NewPromoter(waitlist.PromoterParams{
		Repo:    a.Waitlist,
		Guard:   a.Guard,
		Ledger:  a.Ledger,
		Tokens:  a.Tokens,
		Outbox:  a.Outbox,
		Metrics: recorder,
		Logger:  logg,
		Batch:   cfg.RSVP.WaitlistSweepBatch,
	})
	if err != nil {
		return nil, err
	}
	a.Events, err = events.NewService(events.ServiceParams{
		Tx:       dbClient,
		Repo:     events.NewRepository(conn),
		Guard:    a.Guard,
		Ledger:   a.Ledger,
		Waitlist: a.Promoter,
		Outbox:   a.Outbox,
		Logger:   logg,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
