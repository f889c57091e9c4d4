package worker

import (
	"context"
	"errors"
	"time"

	"tillpoint/internal/repository"
	"tillpoint/internal/service"

	"github.com/bsm/redislock"
	"github.com/rs/zerolog/log"
)

const autoCloseLockKey = "tillpoint:autoclose:leader"

// AutoCloseScheduler sweeps registers whose session has been open longer than
// the staleness threshold and closes them at their expected cash. It runs once
// at startup and then on a fixed interval. With multiple replicas a Redis lock
// keeps the sweep single flight; a nil locker disables that (single instance,
// unit tests).
type AutoCloseScheduler struct {
	registers  service.RegisterService
	repo       repository.RegisterRepository
	locker     *redislock.Client
	interval   time.Duration
	staleAfter time.Duration
}

func NewAutoCloseScheduler(
	registers service.RegisterService,
	repo repository.RegisterRepository,
	locker *redislock.Client,
	interval, staleAfter time.Duration,
) *AutoCloseScheduler {
	return &AutoCloseScheduler{
		registers:  registers,
		repo:       repo,
		locker:     locker,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

// Start blocks until ctx is cancelled. Callers run it in its own goroutine.
func (s *AutoCloseScheduler) Start(ctx context.Context) {
	log.Info().
		Dur("interval", s.interval).
		Dur("stale_after", s.staleAfter).
		Msg("auto-close scheduler started")

	// Immediate run catches sessions that went stale while the server was down.
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("auto-close scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. Failures on one register never stop the
// sweep of the others.
func (s *AutoCloseScheduler) RunOnce(ctx context.Context) {
	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, autoCloseLockKey, s.interval/2, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				log.Debug().Msg("auto-close sweep skipped, another instance holds the lock")
				return
			}
			log.Error().Err(err).Msg("auto-close lock acquisition failed")
			return
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	cutoff := time.Now().Add(-s.staleAfter)
	stale, err := s.repo.ListStaleOpen(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("auto-close sweep failed to list stale registers")
		return
	}
	if len(stale) == 0 {
		return
	}

	closed := 0
	for i := range stale {
		reg := &stale[i]
		if _, err := s.registers.AutoClose(ctx, reg.ID); err != nil {
			// A register closed manually between listing and closing lands
			// here too; that is not a problem, the manual close won.
			log.Warn().Err(err).
				Str("register_id", reg.ID.String()).
				Int("register_number", reg.RegisterNumber).
				Msg("auto-close failed for register")
			continue
		}
		closed++
		log.Info().
			Str("register_id", reg.ID.String()).
			Int("register_number", reg.RegisterNumber).
			Time("opened_at", reg.OpenedAt).
			Msg("register auto-closed")
	}

	log.Info().
		Int("stale_count", len(stale)).
		Int("closed_count", closed).
		Msg("auto-close sweep finished")
}
