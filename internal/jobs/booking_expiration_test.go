package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorly/service-learning/pkg/auth"
	"go.uber.org/zap"
)

type countingExpirer struct {
	mu     sync.Mutex
	calls  int
	actors []auth.Actor
	ttls   []time.Duration
	err    error
}

func (e *countingExpirer) ExpirePending(_ context.Context, actor auth.Actor, ttl time.Duration, _ int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.actors = append(e.actors, actor)
	e.ttls = append(e.ttls, ttl)
	return 1, e.err
}

func (e *countingExpirer) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func TestBookingExpirationJob_RunsImmediatelyAndOnTick(t *testing.T) {
	expirer := &countingExpirer{}
	job := NewBookingExpirationJob(expirer, 10*time.Millisecond, 30*time.Minute, 50, zap.NewNop())

	job.Start(context.Background())
	require.Eventually(t, func() bool { return expirer.Calls() >= 3 }, time.Second, 5*time.Millisecond)
	job.Stop()

	stopped := expirer.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, expirer.Calls(), "no passes after Stop")

	expirer.mu.Lock()
	defer expirer.mu.Unlock()
	assert.True(t, expirer.actors[0].IsSystem())
	assert.Equal(t, 30*time.Minute, expirer.ttls[0])
}

func TestBookingExpirationJob_KeepsRunningAfterErrors(t *testing.T) {
	expirer := &countingExpirer{err: errors.New("database unavailable")}
	job := NewBookingExpirationJob(expirer, 10*time.Millisecond, time.Minute, 10, zap.NewNop())

	job.Start(context.Background())
	require.Eventually(t, func() bool { return expirer.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	job.Stop()
	job.Stop()
}

func TestBookingExpirationJob_StopsWithContext(t *testing.T) {
	expirer := &countingExpirer{}
	job := NewBookingExpirationJob(expirer, time.Hour, time.Minute, 10, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	job.Start(ctx)
	require.Eventually(t, func() bool { return expirer.Calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	job.Stop()
	assert.Equal(t, 1, expirer.Calls())
}
