package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/eventos/internal/config"
	"github.com/Togather-Foundation/eventos/internal/domain/events"
	"github.com/Togather-Foundation/eventos/internal/domain/media"
	"github.com/Togather-Foundation/eventos/internal/metrics"
	"github.com/Togather-Foundation/eventos/internal/notify"
	"github.com/Togather-Foundation/eventos/internal/storage/files"
	"github.com/Togather-Foundation/eventos/internal/storage/postgres"
	"github.com/Togather-Foundation/eventos/internal/storage/s3"
	"github.com/Togather-Foundation/eventos/internal/telemetry"
)

// app holds the process-wide collaborators of one command invocation.
type app struct {
	cfg       config.Config
	logger    zerolog.Logger
	pool      *pgxpool.Pool
	repo      *postgres.Repository
	events    *events.Service
	publisher notify.Publisher
	stopTrace func(context.Context) error
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if cfg.Database.MigrationsPath == "" {
		cfg.Database.MigrationsPath = postgres.DefaultMigrationsPath
	}
	return cfg, nil
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cfg.Logging)
	metrics.Init(Version, GitCommit, BuildDate)

	a := &app{cfg: cfg, logger: logger, publisher: notify.NoopPublisher{}}
	ok := false
	defer func() {
		if !ok {
			a.Close(ctx)
		}
	}()

	a.stopTrace, err = telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a.pool, err = postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	metrics.CollectPool(a.pool)
	a.repo, err = postgres.NewRepository(a.pool)
	if err != nil {
		return nil, err
	}

	artifacts, err := newArtifactStore(ctx, cfg.Media, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Notify.NATSURL != "" {
		pub, err := notify.NewNATSPublisher(cfg.Notify.NATSURL, cfg.Notify.ClientName)
		if err != nil {
			return nil, err
		}
		a.publisher = pub
	}

	rules, err := mediaRules(cfg.Media.Rules)
	if err != nil {
		return nil, err
	}

	a.events, err = events.NewService(events.Dependencies{
		Repository: a.repo.Events(),
		Accounts:   a.repo.Accounts(),
		Artifacts:  artifacts,
		Validator:  media.NewValidator(rules),
		Publisher:  a.publisher,
		Logger:     logger,
	}, events.ServiceConfig{
		DefaultStatus:    events.Status(cfg.Events.DefaultStatus),
		CancelledEnabled: cfg.Events.CancelledEnabled,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// Close releases everything openApp acquired and pushes the metrics registry when a
// Pushgateway is configured.
func (a *app) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := a.publisher.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close publisher")
	}
	if a.pool != nil {
		metrics.CollectPool(a.pool)
		a.pool.Close()
	}
	if a.cfg.Metrics.PushgatewayURL != "" {
		if err := metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job); err != nil {
			a.logger.Warn().Err(err).Msg("push metrics")
		}
	}
	if a.stopTrace != nil {
		if err := a.stopTrace(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("shutdown tracing")
		}
	}
}

// caller resolves --as against the account store, falling back to --as-name for the
// display name.
func (a *app) caller(ctx context.Context) (events.Caller, error) {
	if callerID == "" {
		return events.Caller{}, errors.New("--as is required for this command")
	}
	caller, err := a.repo.Accounts().Lookup(ctx, callerID)
	if errors.Is(err, events.ErrNotFound) {
		return events.Caller{ID: callerID, Name: callerName}, nil
	}
	if err != nil {
		return events.Caller{}, err
	}
	if caller.Name == "" {
		caller.Name = callerName
	}
	return caller, nil
}

func newArtifactStore(ctx context.Context, cfg config.MediaConfig, logger zerolog.Logger) (events.ArtifactStore, error) {
	dirs, err := mediaDirs(cfg.Dirs)
	if err != nil {
		return nil, err
	}
	layout, err := files.NewLayout(cfg.URLPrefix, dirs)
	if err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case config.MediaBackendS3:
		return s3.New(ctx, cfg.S3, layout, logger)
	default:
		return files.NewStore(cfg.Root, layout, logger)
	}
}
