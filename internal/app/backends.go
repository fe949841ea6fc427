// Package app assembles the backends and services shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onoacademic/campusid/internal/domain"
	redisinfra "github.com/onoacademic/campusid/internal/infrastructure/redis"
	"github.com/onoacademic/campusid/internal/reliability/circuitbreaker"
	"github.com/onoacademic/campusid/internal/reliability/retry"
	"github.com/onoacademic/campusid/internal/repository"
	"github.com/onoacademic/campusid/pkg/config"
	"github.com/onoacademic/campusid/pkg/database"
)

// Pinger reports whether a backend is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backends is the store selected by configuration plus what it holds open
type Backends struct {
	Store   domain.Store
	Pingers map[string]Pinger
	// Fallback is set when a fallback backend is configured
	Fallback *repository.FallbackStore

	closers []func() error
}

// OpenBackends connects the configured primary backend and wraps it with the
// fallback backend. A primary that cannot be reached at startup is replaced
// by the fallback rather than failing the process.
func OpenBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backends{Pingers: map[string]Pinger{}}

	primary, err := b.open(ctx, cfg, cfg.Backend, logger)
	useFallback := cfg.FallbackBackend != config.BackendNone && cfg.FallbackBackend != cfg.Backend
	if err != nil {
		if !useFallback {
			b.Close()
			return nil, err
		}
		logger.Warn("primary backend unavailable at startup, serving from fallback",
			slog.String("backend", cfg.Backend),
			slog.String("fallback", cfg.FallbackBackend),
			slog.String("error", err.Error()),
		)
	}
	if !useFallback {
		b.Store = primary
		return b, nil
	}

	fallback, ferr := b.open(ctx, cfg, cfg.FallbackBackend, logger)
	if ferr != nil {
		b.Close()
		return nil, errors.Join(err, ferr)
	}
	if primary == nil {
		b.Store = fallback
		return b, nil
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: int32(cfg.BreakerThreshold),
		SuccessThreshold: 1,
		OpenTimeout:      cfg.BreakerOpenTimeout,
	})
	b.Fallback = repository.NewFallbackStore(primary, fallback, breaker, logger)
	b.Store = b.Fallback
	return b, nil
}

func (b *Backends) open(ctx context.Context, cfg *config.Config, name string, logger *slog.Logger) (domain.Store, error) {
	switch name {
	case config.BackendMemory:
		return repository.NewMemoryStore(), nil

	case config.BackendRedis:
		client, err := retry.Do(ctx, retry.DefaultConfig(), logger, "redis connect", func(ctx context.Context) (*redisinfra.Client, error) {
			return redisinfra.NewClient(ctx, cfg.RedisURL)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: redis: %w", domain.ErrBackendUnavailable, err)
		}
		b.closers = append(b.closers, client.Close)
		b.Pingers[config.BackendRedis] = client
		return repository.NewRedisStore(client, cfg.RedisKeyPrefix), nil

	case config.BackendPostgres:
		pool, err := database.NewConnectionPool(ctx, &database.Config{URL: cfg.DatabaseURL}, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: postgres: %w", domain.ErrBackendUnavailable, err)
		}
		b.closers = append(b.closers, pool.Close)
		if cfg.RunMigrations {
			if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			logger.Info("database migrations applied")
		}
		store := repository.NewDocumentStore(pool.GetDB())
		b.Pingers[config.BackendPostgres] = store
		return store, nil
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}

// Close releases every connection opened by OpenBackends
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
