// Package jobs holds background work that runs on a timer inside the server process.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/tutorly/service-learning/pkg/auth"
	"go.uber.org/zap"
)

// Expirer cancels stale pending bookings.
type Expirer interface {
	ExpirePending(ctx context.Context, actor auth.Actor, ttl time.Duration, batch int) (int, error)
}

// BookingExpirationJob cancels pending bookings that were never paid within ttl.
type BookingExpirationJob struct {
	expirer  Expirer
	interval time.Duration
	ttl      time.Duration
	batch    int
	logger   *zap.Logger

	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBookingExpirationJob creates a job that runs expirer every interval.
func NewBookingExpirationJob(expirer Expirer, interval, ttl time.Duration, batch int, logger *zap.Logger) *BookingExpirationJob {
	return &BookingExpirationJob{
		expirer:  expirer,
		interval: interval,
		ttl:      ttl,
		batch:    batch,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start runs one pass immediately and then one per interval until Stop or ctx ends.
// Passes never overlap.
func (j *BookingExpirationJob) Start(ctx context.Context) {
	j.logger.Info("starting booking expiration job",
		zap.Duration("interval", j.interval),
		zap.Duration("ttl", j.ttl),
	)
	j.ticker = time.NewTicker(j.interval)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.runOnce(ctx)
		for {
			select {
			case <-j.ticker.C:
				j.runOnce(ctx)
			case <-ctx.Done():
				return
			case <-j.done:
				j.logger.Info("booking expiration job stopped")
				return
			}
		}
	}()
}

// Stop halts the job and waits for a running pass to finish.
func (j *BookingExpirationJob) Stop() {
	j.stopOnce.Do(func() {
		if j.ticker != nil {
			j.ticker.Stop()
		}
		close(j.done)
	})
	j.wg.Wait()
}

func (j *BookingExpirationJob) runOnce(ctx context.Context) {
	n, err := j.expirer.ExpirePending(ctx, auth.SystemActor(), j.ttl, j.batch)
	if err != nil {
		j.logger.Error("failed to expire pending bookings", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("expired pending bookings", zap.Int("count", n))
	}
}
