package main

import (
	"context"

	"github.com/angelmondragon/eventrsvp-backend/internal/bootstrap"
	"github.com/angelmondragon/eventrsvp-backend/internal/notifications"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/eventrsvp-backend/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("worker")
	defer proc.Close()
	ctx := context.Background()
	cfg, logg := proc.Config, proc.Logger

	dbClient, err := proc.Database(ctx)
	proc.Must("database", err)
	redisClient, err := proc.Redis(ctx)
	proc.Must("redis", err)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.Options{RequireSubscription: true}, logg)
	proc.Must("pubsub", err)
	proc.OnClose("pubsub client", pubsubClient.Close)

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	proc.Must("idempotency manager", err)

	consumer, err := notifications.NewConsumer(
		notifications.NewRepository(dbClient.DB()),
		pubsubClient.NotificationSubscription(),
		manager,
		logg,
	)
	proc.Must("notification consumer", err)

	service, err := NewService(ServiceParams{
		Logger:               logg,
		DB:                   dbClient,
		Redis:                redisClient,
		PubSub:               pubsubClient,
		NotificationConsumer: consumer,
	})
	proc.Must("worker service", err)

	runCtx, stop := proc.SignalContext(nil)
	defer stop()
	proc.Run(runCtx, service.Run)
}
