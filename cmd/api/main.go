package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/eventrsvp-backend/api/routes"
	"github.com/angelmondragon/eventrsvp-backend/internal/bootstrap"
	"github.com/angelmondragon/eventrsvp-backend/internal/checkin"
	"github.com/angelmondragon/eventrsvp-backend/internal/notifications"
	"github.com/angelmondragon/eventrsvp-backend/internal/rsvps"
	"github.com/angelmondragon/eventrsvp-backend/internal/users"
	"github.com/angelmondragon/eventrsvp-backend/pkg/config"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/env"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/metrics"
)

func main() {
	proc := bootstrap.Start("api")
	defer proc.Close()
	ctx := context.Background()
	cfg, logg := proc.Config, proc.Logger

	dbClient, err := proc.Database(ctx)
	proc.Must("database", err)
	redisClient, err := proc.Redis(ctx)
	proc.Must("redis", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := buildDependencies(cfg, logg, dbClient, metrics.NewAdmissionMetrics(registry))
	proc.Must("services", err)
	deps.Redis = redisClient
	deps.HTTPMetrics = metrics.NewHTTPMetrics(registry)
	deps.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})

	addr := ":" + env.Get(cfg.App.Port, "PORT")
	server := &http.Server{
		Addr:         addr,
		Handler:      routes.NewRouter(cfg, logg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	runCtx, stop := proc.SignalContext(map[string]any{"addr": addr})
	defer stop()
	proc.Run(runCtx, func(ctx context.Context) error { return serve(ctx, server, cfg.HTTP.ShutdownTimeout) })
}

// serve runs server until ctx ends, then drains in-flight requests for up to grace.
func serve(ctx context.Context, server *http.Server, grace time.Duration) error {
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, recorder *metrics.AdmissionMetrics) (routes.Dependencies, error) {
	a, err := bootstrap.NewAdmission(cfg, logg, dbClient, recorder)
	if err != nil {
		return routes.Dependencies{}, err
	}
	conn := dbClient.DB()

	rsvpService, err := rsvps.NewService(rsvps.ServiceParams{
		Tx:       dbClient,
		Repo:     rsvps.NewRepository(conn),
		Guard:    a.Guard,
		Ledger:   a.Ledger,
		Tokens:   a.Tokens,
		Waitlist: a.Promoter,
		Outbox:   a.Outbox,
		Metrics:  recorder,
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	checkInService, err := checkin.NewService(dbClient, checkin.NewRepository(conn), a.Outbox, recorder, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	notificationService, err := notifications.NewService(notifications.NewRepository(conn))
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		DB:            dbClient,
		Users:         users.NewRepository(conn),
		Events:        a.Events,
		RSVPs:         rsvpService,
		CheckIn:       checkInService,
		Credits:       a.Ledger,
		Notifications: notificationService,
	}, nil
}
