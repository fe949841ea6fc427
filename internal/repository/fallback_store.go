package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/observability/metrics"
	"github.com/onoacademic/campusid/internal/reliability/circuitbreaker"
)

// FallbackStore routes every call to the primary backend and retries it on the
// fallback when the primary reports domain.ErrBackendUnavailable. While the
// breaker is open the primary is skipped entirely.
type FallbackStore struct {
	primary  domain.Store
	fallback domain.Store
	breaker  *circuitbreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewFallbackStore wires primary and fallback behind breaker
func NewFallbackStore(primary, fallback domain.Store, breaker *circuitbreaker.CircuitBreaker, logger *slog.Logger) *FallbackStore {
	if logger == nil {
		logger = slog.Default()
	}
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.DefaultConfig())
	}
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		metrics.SetBreakerState("primary", int(to))
		logger.Warn("primary backend breaker changed state",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return &FallbackStore{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

// BreakerState exposes the primary breaker state for health reporting
func (s *FallbackStore) BreakerState() circuitbreaker.State {
	return s.breaker.GetState()
}

func route[T any](ctx context.Context, s *FallbackStore, op string, fn func(domain.Store) (T, error)) (T, error) {
	var primaryErr error
	if s.breaker.AllowRequest() {
		v, err := fn(s.primary)
		if err == nil || !errors.Is(err, domain.ErrBackendUnavailable) {
			s.breaker.RecordSuccess()
			return v, err
		}
		s.breaker.RecordFailure()
		primaryErr = err
		s.logger.WarnContext(ctx, "primary backend unavailable, using fallback",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
	} else {
		primaryErr = domain.ErrBackendUnavailable
	}

	if s.fallback == nil {
		var zero T
		return zero, primaryErr
	}
	metrics.ObserveBackendFallback(op)
	return fn(s.fallback)
}

func (s *FallbackStore) List(ctx context.Context, collection string) ([]domain.Record, error) {
	return route(ctx, s, "list", func(st domain.Store) ([]domain.Record, error) {
		return st.List(ctx, collection)
	})
}

func (s *FallbackStore) Get(ctx context.Context, collection, id string) (domain.Record, error) {
	return route(ctx, s, "get", func(st domain.Store) (domain.Record, error) {
		return st.Get(ctx, collection, id)
	})
}

func (s *FallbackStore) Put(ctx context.Context, collection string, rec domain.Record) error {
	_, err := route(ctx, s, "put", func(st domain.Store) (struct{}, error) {
		return struct{}{}, st.Put(ctx, collection, rec)
	})
	return err
}

func (s *FallbackStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	return route(ctx, s, "delete", func(st domain.Store) (bool, error) {
		return st.Delete(ctx, collection, id)
	})
}

// Ping succeeds while either backend answers
func (s *FallbackStore) Ping(ctx context.Context) error {
	err := s.primary.Ping(ctx)
	if err == nil || s.fallback == nil {
		return err
	}
	return s.fallback.Ping(ctx)
}
