package main

import (
	"context"

	"github.com/angelmondragon/eventrsvp-backend/internal/bootstrap"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox/registry"
	"github.com/angelmondragon/eventrsvp-backend/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("outbox-publisher")
	defer proc.Close()
	ctx := context.Background()
	cfg, logg := proc.Config, proc.Logger

	dbClient, err := proc.Database(ctx)
	proc.Must("database", err)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.Options{}, logg)
	proc.Must("pubsub", err)
	proc.OnClose("pubsub client", pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	proc.Must("event registry", err)

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
	})
	proc.Must("outbox publisher", err)

	runCtx, stop := proc.SignalContext(map[string]any{"topic": cfg.PubSub.DomainTopic})
	defer stop()
	proc.Run(runCtx, service.Run)
}
