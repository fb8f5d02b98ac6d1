package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Wikid82/aegis/internal/actions"
	"github.com/Wikid82/aegis/internal/logger"
	"github.com/Wikid82/aegis/internal/metrics"
)

// ExpiryService expires suggestions nobody executed within the suggestion TTL.
type ExpiryService struct {
	store   *ActionStore
	actions *ActionService
	ttl     time.Duration
	now     func() time.Time
	cron    *cron.Cron
	running atomic.Bool
}

// NewExpiryService returns an ExpiryService. A ttl of zero disables expiry.
func NewExpiryService(store *ActionStore, svc *ActionService, ttl time.Duration) *ExpiryService {
	return &ExpiryService{store: store, actions: svc, ttl: ttl, now: time.Now}
}

// Sweep expires every pending action older than the TTL and returns how many
// it expired. Actions that left pending since the listing are skipped.
func (s *ExpiryService) Sweep(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	ids, err := s.store.ListPendingBefore(s.now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("list stale suggestions: %w", err)
	}

	detail := fmt.Sprintf("not executed within %s of suggestion", actions.HumanDuration(s.ttl))
	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if _, err := s.actions.Expire(ctx, id, detail); err != nil {
			if errors.Is(err, actions.ErrInvalidTransition) || errors.Is(err, actions.ErrActionNotFound) {
				continue
			}
			return expired, fmt.Errorf("expire %s: %w", id, err)
		}
		metrics.IncExpired()
		expired++
	}
	return expired, nil
}

// Start schedules Sweep with a cron spec such as "@every 1m".
func (s *ExpiryService) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		n, err := s.Sweep(context.Background())
		if err != nil {
			logger.Log().WithError(err).Error("Expiry sweep failed")
			return
		}
		if n > 0 {
			logger.Log().WithField("expired", n).Info("Expired stale action suggestions")
		}
	}); err != nil {
		return fmt.Errorf("schedule expiry sweep: %w", err)
	}
	s.cron = c
	c.Start()
	s.running.Store(true)
	return nil
}

// Running reports whether the sweep schedule is active.
func (s *ExpiryService) Running() bool {
	return s != nil && s.running.Load()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *ExpiryService) Stop() {
	if s == nil || s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.running.Store(false)
}
