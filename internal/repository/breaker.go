package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/formpilot/fieldmap/internal/common"
	"github.com/formpilot/fieldmap/internal/entity"
)

// BreakerStore wraps a Store with a circuit breaker so a struggling backend
// surfaces quickly as ErrStoreUnavailable (a transient SystemError the queue
// retries with backoff) instead of piling up slow failures inside stages.
type BreakerStore struct {
	inner   Store
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerStore(inner Store, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "checkpoint-store",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 > counts.Requests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store.breaker.state", "from", from.String(), "to", to.String())
		},
	})
	return &BreakerStore{inner: inner, breaker: cb}
}

// do funnels every store call through the breaker. Not-found and lease
// contention are domain answers, not backend failures; they reach the caller
// unchanged without counting against the breaker.
func (s *BreakerStore) do(fn func() (any, error)) (any, error) {
	var domainErr error
	v, err := s.breaker.Execute(func() (any, error) {
		v, err := fn()
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrLeaseHeld) {
			domainErr = err
			return v, nil
		}
		return v, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return v, common.ErrStoreUnavailable
	}
	if err == nil {
		return v, domainErr
	}
	return v, err
}

func (s *BreakerStore) SaveCheckpoint(ctx context.Context, state *entity.ProcessingState) error {
	_, err := s.do(func() (any, error) {
		return nil, s.inner.SaveCheckpoint(ctx, state)
	})
	return err
}

func (s *BreakerStore) LoadCheckpoint(ctx context.Context, jobID uuid.UUID) (*entity.ProcessingState, error) {
	var state *entity.ProcessingState
	_, err := s.do(func() (any, error) {
		var inner error
		state, inner = s.inner.LoadCheckpoint(ctx, jobID)
		return nil, inner
	})
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, common.ErrNotFound
	}
	return state, nil
}

func (s *BreakerStore) AcquireLease(ctx context.Context, jobID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	var ok bool
	_, err := s.do(func() (any, error) {
		var inner error
		ok, inner = s.inner.AcquireLease(ctx, jobID, owner, ttl)
		return nil, inner
	})
	return ok, err
}

func (s *BreakerStore) ReleaseLease(ctx context.Context, jobID uuid.UUID, owner string) error {
	_, err := s.do(func() (any, error) {
		return nil, s.inner.ReleaseLease(ctx, jobID, owner)
	})
	return err
}

func (s *BreakerStore) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.do(func() (any, error) {
		return nil, s.inner.DeleteJob(ctx, jobID)
	})
	return err
}

func (s *BreakerStore) Close() error {
	return s.inner.Close()
}
