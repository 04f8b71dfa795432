// Package bootstrap holds the process setup shared by every binary: config,
// logger, the database and Redis connections, and signal handling.
package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/eventrsvp-backend/pkg/config"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/instance"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/migrate"
	"github.com/angelmondragon/eventrsvp-backend/pkg/redis"
)

type closer struct {
	name string
	fn   func() error
}

// Process is a started binary. Resources opened through it are closed in
// reverse order by Close.
type Process struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger

	closers []closer
}

// Start loads .env and config and builds the leveled logger for kind. A
// config error is fatal.
func Start(kind string) *Process {
	logg := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = kind

	return &Process{
		Kind:   kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}
}

// OnClose registers fn to run during Close.
func (p *Process) OnClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

// Close releases every registered resource, newest first.
func (p *Process) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.fn(); err != nil {
			p.Logger.Error(context.Background(), "error closing "+c.name, err)
		}
	}
	p.closers = nil
}

// Database connects and, in dev, applies migrations.
func (p *Process) Database(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, p.Config.DB, p.Logger)
	if err != nil {
		return nil, err
	}
	p.OnClose("database", client.Close)
	if err := migrate.MaybeRunDev(ctx, p.Config, p.Logger, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (p *Process) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	if err != nil {
		return nil, err
	}
	p.OnClose("redis", client.Close)
	return client, nil
}

// Must exits after logging when err is set. Registered resources are closed
// first because os.Exit skips deferred calls.
func (p *Process) Must(what string, err error) {
	if err == nil {
		return
	}
	p.Logger.Error(context.Background(), "failed to bootstrap "+what, err)
	p.Close()
	os.Exit(1)
}

// SignalContext is canceled on SIGINT or SIGTERM and carries the process log fields.
func (p *Process) SignalContext(fields map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	base := map[string]any{
		"env":         p.Config.App.Env,
		"serviceKind": p.Kind,
		"instance":    instance.GetID(),
	}
	for k, v := range fields {
		base[k] = v
	}
	return p.Logger.WithFields(ctx, base), stop
}

// Run blocks on run until the signal context ends, treating cancellation as a
// clean stop.
func (p *Process) Run(ctx context.Context, run func(context.Context) error) {
	p.Logger.Info(ctx, "starting "+p.Kind)
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.Logger.Error(ctx, p.Kind+" stopped unexpectedly", err)
		p.Close()
		os.Exit(1)
	}
	p.Logger.Info(ctx, p.Kind+" shutting down gracefully")
}
