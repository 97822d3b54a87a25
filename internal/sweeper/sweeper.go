// Package sweeper runs the periodic expiry of stale pending bookings.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Expirer cancels pending bookings whose hold deadline has passed.
type Expirer interface {
	ExpirePending(ctx context.Context) (int64, error)
}

// Sweeper drives an Expirer on a fixed interval.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	logger   *zerolog.Logger
}

// New creates a sweeper. A non-positive interval defaults to one minute.
func New(expirer Expirer, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{expirer: expirer, interval: interval, logger: logger}
}

// Run sweeps immediately, then on every tick until the context is
// cancelled. Errors are logged and the loop keeps going.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("sweeper started")

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.expirer.ExpirePending(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error().Err(err).Msg("sweep failed")
	}
}
