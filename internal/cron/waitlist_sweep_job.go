package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/internal/waitlist"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
)

const defaultSweepBatch = 50

type waitlistEvents interface {
	EventsWithWaitlist(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type sweepGuard interface {
	LockEvent(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*models.Event, error)
	Reconcile(ctx context.Context, tx *gorm.DB, event *models.Event) (bool, error)
}

type sweepPromoter interface {
	PromoteNext(ctx context.Context, tx *gorm.DB, event *models.Event) (*waitlist.Result, error)
}

type WaitlistSweepJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Events   waitlistEvents
	Guard    sweepGuard
	Promoter sweepPromoter
	Batch    int
}

// NewWaitlistSweepJob promotes waitlisted RSVPs on events that have room. It
// catches seats freed by paths that never triggered promotion, and repairs a
// drifted headcount counter before promoting.
func NewWaitlistSweepJob(params WaitlistSweepJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Events == nil:
		return nil, fmt.Errorf("waitlist repository required")
	case params.Guard == nil:
		return nil, fmt.Errorf("capacity guard required")
	case params.Promoter == nil:
		return nil, fmt.Errorf("waitlist promoter required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &waitlistSweepJob{
		logg:     params.Logger,
		db:       params.DB,
		events:   params.Events,
		guard:    params.Guard,
		promoter: params.Promoter,
		batch:    batch,
	}, nil
}

type waitlistSweepJob struct {
	logg     *logger.Logger
	db       txRunner
	events   waitlistEvents
	guard    sweepGuard
	promoter sweepPromoter
	batch    int
}

func (j *waitlistSweepJob) Name() string { return "waitlist-sweep" }

func (j *waitlistSweepJob) Run(ctx context.Context) error {
	var (
		errs     error
		promoted int
		swept    int
		after    uuid.UUID
	)
	for {
		ids, err := j.events.EventsWithWaitlist(ctx, after, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list waitlisted events: %w", err))
		}
		for _, id := range ids {
			n, err := j.sweep(ctx, id)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("event %s: %w", id, err))
			}
			promoted += n
		}
		swept += len(ids)
		if len(ids) < j.batch {
			break
		}
		after = ids[len(ids)-1]
	}

	j.logg.Fields(ctx, map[string]any{
		"events":   swept,
		"promoted": promoted,
		"failed":   len(multierr.Errors(errs)),
	}).Msg("waitlist sweep complete")
	return errs
}

func (j *waitlistSweepJob) sweep(ctx context.Context, id uuid.UUID) (int, error) {
	eventCtx := j.logg.WithEventID(ctx, id.String())
	promoted := 0
	err := j.db.WithTx(eventCtx, func(tx *gorm.DB) error {
		event, err := j.guard.LockEvent(eventCtx, tx, id)
		if err != nil {
			return err
		}
		drifted, err := j.guard.Reconcile(eventCtx, tx, event)
		if err != nil {
			return err
		}
		if drifted {
			j.logg.Warn(eventCtx, "admitted headcount drift repaired")
		}
		result, err := j.promoter.PromoteNext(eventCtx, tx, event)
		if err != nil {
			return err
		}
		promoted = len(result.Promoted)
		return nil
	})
	return promoted, err
}
