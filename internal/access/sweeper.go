package access

import (
	"context"
	"time"

	"github.com/carlink/carlink-core/internal/infrastructure/logging"
)

// Sweeper periodically deletes lapsed permission records and their
// mirrored capabilities. The resolver already denies lapsed grants, so
// the sweep is cleanup, not enforcement; a missed cycle never grants
// access.
type Sweeper struct {
	store    *Store
	sink     EventSink
	interval time.Duration
	logger   *logging.Logger
}

// NewSweeper creates an expiry sweeper. An interval of zero disables it.
func NewSweeper(store *Store, sink EventSink, interval time.Duration, logger *logging.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		sink:     sink,
		interval: interval,
		logger:   logger.With("component", "sweeper"),
	}
}

// Run sweeps on the configured interval until the context is cancelled.
// Intended to run in its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("expiry sweep disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweep started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweep stopped")
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce removes all currently lapsed grants and publishes an
// expired event for each.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	expired, err := s.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	for _, g := range expired {
		s.sink.Publish(ctx, Event{
			Type:           EventExpired,
			VIN:            g.VIN,
			Username:       g.Username,
			ComponentType:  g.ComponentType,
			ComponentName:  g.ComponentName,
			PermissionType: g.PermissionType,
		})
	}
	s.logger.Info("expired permissions removed", "count", len(expired))
	return nil
}
