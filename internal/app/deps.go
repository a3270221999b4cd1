package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vidfriends/genbridge/internal/auth"
	"github.com/vidfriends/genbridge/internal/config"
	"github.com/vidfriends/genbridge/internal/credentials"
	"github.com/vidfriends/genbridge/internal/db"
	"github.com/vidfriends/genbridge/internal/dispatch"
	"github.com/vidfriends/genbridge/internal/handlers"
	"github.com/vidfriends/genbridge/internal/middleware"
	"github.com/vidfriends/genbridge/internal/refresh"
	"github.com/vidfriends/genbridge/internal/repositories"
	"github.com/vidfriends/genbridge/internal/storage"
	"github.com/vidfriends/genbridge/internal/videos"
)

const rateLimitTTL = 10 * time.Minute

// openStore opens the configured credential store. The returned close
// function is always safe to call.
func openStore(ctx context.Context, cfg config.Config) (credentials.Store, func(), error) {
	noop := func() {}

	switch cfg.Store.Backend {
	case config.StoreMemory:
		return credentials.NewMemoryStore(), noop, nil
	case config.StoreFile:
		store, err := credentials.NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case config.StoreRedis:
		store, closeFn, err := credentials.OpenRedisStore(ctx, credentials.RedisOptions{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
			Key:      cfg.Store.RedisKey,
		})
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = closeFn() }, nil
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return repositories.NewPostgresCredentialStore(pool, ""), pool.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildDependencies wires together concrete implementations used by the
// daemon's HTTP handlers. The cleanup function drains the result archive.
func buildDependencies(ctx context.Context, cfg config.Config, store credentials.Store, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	cleanup := func(context.Context) error { return nil }

	channel := refresh.NewChannel(cfg.AgentURL, cfg.RefreshTimeout)
	manager := auth.NewManager(channel, store)

	generator := videos.NewGenerator(videos.GeneratorConfig{
		EndpointPattern: cfg.EndpointPattern,
		VideoHost:       cfg.VideoHost,
		VideoPathMarker: cfg.VideoPathMarker,
		Origin:          cfg.Origin,
		Timeout:         cfg.RequestTimeout,
		Headers:         cfg.Headers,
	})

	var archiver dispatch.Archiver
	if cfg.Archive.Enabled() {
		s3, err := storage.NewS3Storage(ctx, cfg.Archive)
		if err != nil {
			return handlers.Dependencies{}, cleanup, fmt.Errorf("configure result archive: %w", err)
		}
		archive := videos.NewResultArchive(s3, videos.ArchiveConfig{
			Workers:   cfg.Archive.Workers,
			QueueSize: cfg.Archive.QueueSize,
		}, logger)
		archiver = archive
		cleanup = archive.Shutdown
	}

	dispatcher := dispatch.New(dispatch.Config{
		APIEndpoint:     cfg.APIEndpoint,
		VideoHost:       cfg.VideoHost,
		VideoPathMarker: cfg.VideoPathMarker,
		Origin:          cfg.Origin,
		AgentURL:        cfg.AgentURL,
		StoreBackend:    cfg.Store.Backend,
	}, dispatch.Dependencies{
		Tokens:   manager,
		Executor: generator,
		Store:    store,
		Archive:  archiver,
	})

	limiter := middleware.NewClientRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst, rateLimitTTL)

	return handlers.Dependencies{
		Dispatcher: dispatcher,
		Limiter:    limiter,
		HealthCheck: func(ctx context.Context) error {
			_, err := store.Get(ctx)
			return err
		},
	}, cleanup, nil
}
