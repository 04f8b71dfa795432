package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/eventrsvp-backend/internal/bootstrap"
	"github.com/angelmondragon/eventrsvp-backend/internal/cron"
	"github.com/angelmondragon/eventrsvp-backend/internal/notifications"
	"github.com/angelmondragon/eventrsvp-backend/pkg/config"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/metrics"
)

func main() {
	proc := bootstrap.Start("cron-worker")
	defer proc.Close()
	ctx := context.Background()
	cfg, logg := proc.Config, proc.Logger

	dbClient, err := proc.Database(ctx)
	proc.Must("database", err)
	redisClient, err := proc.Redis(ctx)
	proc.Must("redis", err)

	admission, err := bootstrap.NewAdmission(cfg, logg, dbClient, metrics.NewAdmissionMetrics(prometheus.DefaultRegisterer))
	proc.Must("admission services", err)
	jobs, err := buildJobs(cfg, logg, dbClient, admission)
	proc.Must("cron jobs", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cron.CycleLockName), cfg.Cron.LockTTL)
	proc.Must("cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(jobs...),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.LockTTL * 9 / 10,
	})
	proc.Must("cron service", err)

	runCtx, stop := proc.SignalContext(map[string]any{"jobs": len(jobs)})
	defer stop()
	proc.Run(runCtx, service.Run)
}

// buildJobs lists the periodic jobs in the order each cycle runs them.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, a *bootstrap.Admission) ([]cron.Job, error) {
	completion, err := cron.NewEventCompletionJob(cron.EventCompletionJobParams{
		Logger: logg,
		Events: a.Events,
		Grace:  cfg.Cron.EventCompletionGrace,
	})
	if err != nil {
		return nil, err
	}
	sweep, err := cron.NewWaitlistSweepJob(cron.WaitlistSweepJobParams{
		Logger:   logg,
		DB:       dbClient,
		Events:   a.Waitlist,
		Guard:    a.Guard,
		Promoter: a.Promoter,
		Batch:    cfg.RSVP.WaitlistSweepBatch,
	})
	if err != nil {
		return nil, err
	}
	cleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notifications.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.NotificationRetention,
		BatchSize:  cfg.Cron.CleanupBatch,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: a.OutboxRepo,
		Retention:  cfg.Cron.OutboxRetention,
		BatchSize:  cfg.Outbox.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	return []cron.Job{completion, sweep, cleanup, retention}, nil
}
