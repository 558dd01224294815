package application

import (
	"context"
	"errors"
	"time"

	"github.com/tutorly/service-learning/pkg/domain"
	"github.com/tutorly/service-learning/pkg/lock"
)

// withLock runs fn while holding key. Waiting longer than wait is reported as a conflict.
func withLock(ctx context.Context, locker lock.Locker, key string, wait time.Duration, fn func() error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	release, err := locker.Acquire(acquireCtx, key)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return domain.NewConflictError("another request for the same resource is in progress, retry")
		}
		return err
	}
	defer release()
	return fn()
}
