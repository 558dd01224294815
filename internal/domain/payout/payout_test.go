package payout

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorly/service-learning/pkg/domain"
)

var now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestMarkSent_Idempotent(t *testing.T) {
	p, err := NewPayout(uuid.New(), 100, "USD", now)
	require.NoError(t, err)

	changed, err := p.MarkSent("wire-1", now)
	require.NoError(t, err)
	assert.True(t, changed)
	sentAt := *p.SentAt()

	changed, err = p.MarkSent("wire-2", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, sentAt, *p.SentAt())
	assert.Equal(t, "wire-1", p.Reference())

	assert.ErrorIs(t, p.Cancel(now), domain.ErrInvalidTransition)
}

func TestCancel_PendingOnly(t *testing.T) {
	p, err := NewPayout(uuid.New(), 100, "USD", now)
	require.NoError(t, err)
	require.NoError(t, p.Cancel(now))

	_, err = p.MarkSent("x", now)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestNewPayout_RejectsNonPositive(t *testing.T) {
	_, err := NewPayout(uuid.New(), 0, "USD", now)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBalance(t *testing.T) {
	b := NewBalance(uuid.New(), 100, 40)
	assert.Equal(t, int64(60), b.AvailableCents)
	assert.NoError(t, b.Cover(60))
	assert.ErrorIs(t, b.Cover(61), domain.ErrInsufficientBalance)

	assert.Equal(t, int64(0), NewBalance(uuid.New(), 10, 50).AvailableCents)
}
