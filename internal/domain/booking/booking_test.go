package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorly/service-learning/internal/domain/timeslot"
	"github.com/tutorly/service-learning/pkg/domain"
)

var now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestBooking(t *testing.T) *Booking {
	t.Helper()
	start := now.Add(24 * time.Hour)
	b, err := NewBooking(uuid.New(), uuid.New(), nil,
		[]timeslot.Slot{timeslot.New(start, start.Add(time.Hour))}, 10000, "USD", 15, now)
	require.NoError(t, err)
	return b
}

func withStatus(b *Booking, s Status) *Booking {
	return Reconstitute(b.id, b.studentID, b.teacherID, b.courseID, s, b.totalCents, b.platformFeeCents,
		b.teacherEarningCents, b.currency, b.slots, nil, nil, nil, nil, b.version, b.createdAt, b.updatedAt)
}

func TestNewBooking_SplitsFee(t *testing.T) {
	b := newTestBooking(t)
	assert.Equal(t, StatusPending, b.Status())
	assert.Equal(t, int64(1500), b.PlatformFeeCents())
	assert.Equal(t, int64(8500), b.TeacherEarningCents())
	assert.Equal(t, int64(1), b.Version())
}

func TestNewBooking_Validation(t *testing.T) {
	start := now.Add(time.Hour)
	slots := []timeslot.Slot{timeslot.New(start, start.Add(time.Hour))}
	id := uuid.New()

	_, err := NewBooking(uuid.New(), uuid.New(), nil, slots, 0, "USD", 15, now)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewBooking(id, id, nil, slots, 100, "USD", 15, now)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewBooking(uuid.New(), uuid.New(), nil, nil, 100, "USD", 15, now)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTransitions_OnlyDefinedEdges(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusRefunded, StatusCompleted}
	apply := map[Status]func(*Booking) (Transition, error){
		StatusConfirmed: func(b *Booking) (Transition, error) { return b.Confirm(now) },
		StatusCancelled: func(b *Booking) (Transition, error) { return b.Cancel(now) },
		StatusRefunded:  func(b *Booking) (Transition, error) { return b.Refund(now) },
		StatusCompleted: func(b *Booking) (Transition, error) { return b.Complete(now) },
	}
	for _, from := range all {
		for to, fn := range apply {
			b := withStatus(newTestBooking(t), from)
			tr, err := fn(b)
			if CanTransition(from, to) {
				require.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, b.Status())
				assert.Equal(t, from, tr.From)
				assert.Equal(t, to, tr.To)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidTransition, "%s -> %s", from, to)
				assert.Equal(t, from, b.Status(), "state must be unchanged")
			}
		}
	}
}

func TestCancel_ConfirmedAfterStartRejected(t *testing.T) {
	b := withStatus(newTestBooking(t), StatusConfirmed)
	_, err := b.Cancel(b.FirstStart())
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, StatusConfirmed, b.Status())
}

func TestConfirm_SetsTimestamp(t *testing.T) {
	b := newTestBooking(t)
	_, err := b.Confirm(now)
	require.NoError(t, err)
	require.NotNil(t, b.ConfirmedAt())
	assert.Equal(t, now, *b.ConfirmedAt())
}

func TestTransition_By(t *testing.T) {
	actor := uuid.New()
	tr := Transition{From: StatusPending, To: StatusCancelled}.By(actor, "student", "changed plans")
	assert.NotEqual(t, uuid.Nil, tr.ID)
	assert.Equal(t, actor, tr.ActorID)
	assert.Equal(t, "changed plans", tr.Reason)
}
