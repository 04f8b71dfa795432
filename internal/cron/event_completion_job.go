package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
)

const (
	defaultCompletionGrace = 6 * time.Hour
	completionBatch        = 100
)

type eventCompleter interface {
	CompleteDue(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type EventCompletionJobParams struct {
	Logger *logger.Logger
	Events eventCompleter
	Grace  time.Duration
}

// NewEventCompletionJob closes active events that ended more than Grace ago.
func NewEventCompletionJob(params EventCompletionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("events service required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultCompletionGrace
	}
	return &eventCompletionJob{
		logg:   params.Logger,
		events: params.Events,
		grace:  grace,
		now:    time.Now,
	}, nil
}

type eventCompletionJob struct {
	logg   *logger.Logger
	events eventCompleter
	grace  time.Duration
	now    func() time.Time
}

func (j *eventCompletionJob) Name() string { return "event-completion" }

func (j *eventCompletionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	completed, err := j.events.CompleteDue(ctx, cutoff, completionBatch)
	if err != nil {
		return fmt.Errorf("complete events: %w", err)
	}
	if completed > 0 {
		j.logg.Fields(ctx, map[string]any{
			"cutoff":    cutoff,
			"completed": completed,
		}).Msg("events completed")
	}
	return nil
}
