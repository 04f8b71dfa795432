package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
)

const (
	defaultNotificationRetention = 30 * 24 * time.Hour
	defaultCleanupBatch          = 500
)

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	Repository readNotificationPurger
	Retention  time.Duration
	BatchSize  int
}

type readNotificationPurger interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewNotificationCleanupJob purges notifications read longer than the
// retention window ago. Unread notifications are never purged.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("notifications repository required")
	}
	job := &notificationCleanupJob{
		logg:      params.Logger,
		purger:    params.Repository,
		retention: params.Retention,
		batch:     params.BatchSize,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultNotificationRetention
	}
	if job.batch <= 0 {
		job.batch = defaultCleanupBatch
	}
	return job, nil
}

type notificationCleanupJob struct {
	logg      *logger.Logger
	purger    readNotificationPurger
	retention time.Duration
	batch     int
	now       func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

// Run deletes in batches until a short batch shows the backlog is drained.
func (j *notificationCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		deleted, err := j.purger.DeleteReadBefore(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("purge read notifications: %w", err)
		}
		total += deleted
		if deleted < int64(j.batch) {
			break
		}
	}
	j.logg.Fields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
	}).Msg("notification cleanup complete")
	return nil
}
