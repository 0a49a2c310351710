package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	"github.com/AlibekovAA/dh-trust/backend/internal/observability/metrics"
)

type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

const retryDelay = 30 * time.Second

// Scheduler purges expired TTL entries (nonces, rate counters) on a cron schedule.
type Scheduler struct {
	store     ExpiredDeleter
	storeName string
	cronExpr  string
	clock     clock.Clock
	log       *logger.Logger
}

func NewScheduler(store ExpiredDeleter, storeName, cronExpr string, clk clock.Clock, log *logger.Logger) (*Scheduler, error) {
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid cleanup cron expression: %q", cronExpr)
	}
	return &Scheduler{
		store:     store,
		storeName: storeName,
		cronExpr:  cronExpr,
		clock:     clk,
		log:       log,
	}, nil
}

func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	deleted, err := s.store.DeleteExpired(ctx)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"store":  s.storeName,
			"action": "ttl_cleanup_failed",
		}).Errorf("%s cleanup failed: %v", s.storeName, err)
		return 0, err
	}
	if deleted > 0 {
		metrics.TTLStoreCleanupDeleted.WithLabelValues(s.storeName).Add(float64(deleted))
		s.log.WithFields(ctx, logger.Fields{
			"store":   s.storeName,
			"deleted": deleted,
			"action":  "ttl_cleanup",
		}).Infof("%s cleanup: deleted %d expired entries", s.storeName, deleted)
	}
	return deleted, nil
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Infof("%s cleanup scheduled cron=%q", s.storeName, s.cronExpr)
	for {
		next, err := gronx.NextTickAfter(s.cronExpr, s.clock.Now().UTC(), false)
		wait := retryDelay
		if err != nil {
			s.log.Errorf("%s cleanup next tick failed: %v", s.storeName, err)
		} else {
			wait = next.Sub(s.clock.Now().UTC())
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Infof("%s cleanup stopping", s.storeName)
			return
		case <-timer.C:
		}

		if err == nil {
			_, _ = s.RunOnce(ctx)
		}
	}
}
