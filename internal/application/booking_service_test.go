package application_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorly/service-learning/internal/application"
	"github.com/tutorly/service-learning/internal/repository"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/domain"
	"gorm.io/gorm"
)

func TestCreateBooking_PrivatePricedFromRate(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)

	b := h.bookPrivate(t, h.student, slotReq(26, 27), slotReq(24, 25))

	assert.Equal(t, "pending", b.Status)
	assert.Equal(t, int64(12000), b.TotalCents)
	assert.Equal(t, int64(1800), b.PlatformFeeCents)
	assert.Equal(t, int64(10200), b.TeacherEarningCents)
	assert.Equal(t, "USD", b.Currency)
	require.Len(t, b.Slots, 2)
	assert.True(t, b.Slots[0].Start.Before(b.Slots[1].Start), "slots come back ordered")

	trail, err := h.bookings.Transitions(context.Background(), h.student, b.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "", trail[0].From)
	assert.Equal(t, "pending", trail[0].To)
}

func TestCreateBooking_Rejections(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	ctx := context.Background()
	h.bookPrivate(t, h.student, slotReq(24, 25))
	other := auth.Actor{ID: uuid.New(), Role: auth.RoleStudent}
	stranger := uuid.New()

	tests := []struct {
		name  string
		actor auth.Actor
		req   application.CreateBookingRequest
		want  error
	}{
		{
			name:  "overlapping slot",
			actor: other,
			req: application.CreateBookingRequest{TeacherID: &h.teacher.ID, Slots: []application.SlotRequest{
				{Start: slotReq(24, 25).Start.Add(30 * time.Minute), End: slotReq(25, 26).End},
			}},
			want: domain.ErrSlotConflict,
		},
		{
			name:  "outside availability",
			actor: other,
			req:   application.CreateBookingRequest{TeacherID: &h.teacher.ID, Slots: []application.SlotRequest{slotReq(80, 81)}},
			want:  domain.ErrSlotConflict,
		},
		{
			name:  "teacher without a rate",
			actor: other,
			req:   application.CreateBookingRequest{TeacherID: &stranger, Slots: []application.SlotRequest{slotReq(30, 31)}},
			want:  domain.ErrValidation,
		},
		{
			name:  "slot in the past",
			actor: other,
			req:   application.CreateBookingRequest{TeacherID: &h.teacher.ID, Slots: []application.SlotRequest{slotReq(-2, -1)}},
			want:  domain.ErrValidation,
		},
		{
			name:  "teacher cannot book",
			actor: h.teacher,
			req:   application.CreateBookingRequest{TeacherID: &h.teacher.ID, Slots: []application.SlotRequest{slotReq(30, 31)}},
			want:  domain.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.bookings.CreateBooking(ctx, tt.actor, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, int64(1), h.count(t, "bookings"))
}

func TestCreateBooking_AdjacentSlotIsFree(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	h.bookPrivate(t, h.student, slotReq(24, 25))

	other := auth.Actor{ID: uuid.New(), Role: auth.RoleStudent}
	b := h.bookPrivate(t, other, slotReq(25, 26))
	assert.Equal(t, "pending", b.Status)
}

func TestCreateBooking_CourseSeats(t *testing.T) {
	h := newHarness(t)
	c := h.course(t, 20000, [2]int{30, 31}, [2]int{32, 33})
	ctx := context.Background()

	first, err := h.bookings.CreateBooking(ctx, h.student, application.CreateBookingRequest{CourseID: &c.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), first.TotalCents)
	assert.Equal(t, h.teacher.ID, first.TeacherID)

	// A second student shares the course schedule.
	other := auth.Actor{ID: uuid.New(), Role: auth.RoleStudent}
	_, err = h.bookings.CreateBooking(ctx, other, application.CreateBookingRequest{CourseID: &c.ID})
	require.NoError(t, err)

	// The same student cannot take two seats.
	_, err = h.bookings.CreateBooking(ctx, h.student, application.CreateBookingRequest{CourseID: &c.ID})
	assert.ErrorIs(t, err, domain.ErrSlotConflict)

	_, err = h.bookings.CreateBooking(ctx, h.student, application.CreateBookingRequest{CourseID: &c.ID, TeacherID: &h.teacher.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCancelBooking_Pending(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	ctx := context.Background()
	b := h.bookPrivate(t, h.student, slotReq(24, 25))

	stranger := auth.Actor{ID: uuid.New(), Role: auth.RoleStudent}
	_, err := h.bookings.CancelBooking(ctx, stranger, b.ID, application.CancelBookingRequest{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	cancelled, err := h.bookings.CancelBooking(ctx, h.student, b.ID, application.CancelBookingRequest{Reason: "changed my mind"})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = h.bookings.CancelBooking(ctx, h.student, b.ID, application.CancelBookingRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// The slot is free again.
	h.bookPrivate(t, stranger, slotReq(24, 25))
}

func TestCancelBooking_BlockedWhilePaymentPending(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	b := h.bookPrivate(t, h.student, slotReq(24, 25))
	h.attempt(t, b, "pm_card_visa")

	_, err := h.bookings.CancelBooking(context.Background(), h.student, b.ID, application.CancelBookingRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCancelBooking_ConfirmedCancelsSessions(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	ctx := context.Background()
	b := h.bookPrivate(t, h.student, slotReq(24, 25), slotReq(26, 27))
	h.pay(t, b)

	cancelled, err := h.bookings.CancelBooking(ctx, h.student, b.ID, application.CancelBookingRequest{Reason: "sick"})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Status)

	sessions, err := h.sessions.List(ctx, h.student, b.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.Equal(t, "cancelled", s.Status)
	}
}

func TestCancelBooking_RejectedOnceStarted(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	ctx := context.Background()
	b := h.bookPrivate(t, h.student, slotReq(24, 25), slotReq(26, 27))
	h.pay(t, b)

	sessions, err := h.sessions.List(ctx, h.teacher, b.ID)
	require.NoError(t, err)
	_, err = h.sessions.Start(ctx, h.teacher, sessions[0].ID)
	require.NoError(t, err)

	_, err = h.bookings.CancelBooking(ctx, h.student, b.ID, application.CancelBookingRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	got, err := h.bookings.GetBooking(ctx, h.student, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", got.Status)
}

func TestRefundBooking(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	ctx := context.Background()
	b := h.bookPrivate(t, h.student, slotReq(24, 25))
	p := h.pay(t, b)

	_, err := h.bookings.RefundBooking(ctx, h.student, b.ID, application.CancelBookingRequest{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	refunded, err := h.bookings.RefundBooking(ctx, h.admin, b.ID, application.CancelBookingRequest{Reason: "teacher no-show"})
	require.NoError(t, err)
	assert.Equal(t, "refunded", refunded.Status)
	assert.NotNil(t, refunded.RefundedAt)

	got, err := h.payments.GetPayment(ctx, h.admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status, "a booking refund leaves payment status alone")
	require.Len(t, got.Adjustments, 1)
	assert.Equal(t, "booking_refund", got.Adjustments[0].Kind)
	assert.Equal(t, b.TotalCents, got.Adjustments[0].AmountCents)
	assert.NotEmpty(t, got.Adjustments[0].GatewayRefundID)

	sessions, err := h.sessions.List(ctx, h.admin, b.ID)
	require.NoError(t, err)
	for _, s := range sessions {
		assert.Equal(t, "cancelled", s.Status)
	}

	_, err = h.bookings.RefundBooking(ctx, h.admin, b.ID, application.CancelBookingRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRefundBooking_RequiresCompletedPayment(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	ctx := context.Background()
	b := h.bookPrivate(t, h.student, slotReq(24, 25))
	_, err := h.bookings.CancelBooking(ctx, h.student, b.ID, application.CancelBookingRequest{})
	require.NoError(t, err)

	_, err = h.bookings.RefundBooking(ctx, h.admin, b.ID, application.CancelBookingRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	got, err := h.bookings.GetBooking(ctx, h.admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", got.Status)
}

func TestExpirePending(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	ctx := context.Background()
	stale := h.bookPrivate(t, h.student, slotReq(24, 25))
	paying := h.bookPrivate(t, auth.Actor{ID: uuid.New(), Role: auth.RoleStudent}, slotReq(26, 27))
	h.attempt(t, paying, "pm_card_visa")

	h.clock.Advance(2 * time.Hour)
	fresh := h.bookPrivate(t, auth.Actor{ID: uuid.New(), Role: auth.RoleStudent}, slotReq(28, 29))

	_, err := h.bookings.ExpirePending(ctx, h.admin, time.Hour, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	n, err := h.bookings.ExpirePending(ctx, h.system, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, want := range map[uuid.UUID]string{stale.ID: "cancelled", paying.ID: "pending", fresh.ID: "pending"} {
		got, err := h.bookings.GetBooking(ctx, h.admin, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}

	trail, err := h.bookings.Transitions(ctx, h.admin, stale.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "expired unpaid", trail[1].Reason)
	assert.Equal(t, auth.RoleSystem, trail[1].ActorRole)
}

func TestExpirePending_FailsAbandonedAttempt(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	ctx := context.Background()
	b := h.bookPrivate(t, h.student, slotReq(24, 25))
	p := h.attempt(t, b, "pm_card_visa")

	_, err := h.bookings.CancelBooking(ctx, h.student, b.ID, application.CancelBookingRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidState, "an attempt in flight holds the booking")

	h.clock.Advance(20 * time.Hour)
	n, err := h.bookings.ExpirePending(ctx, h.system, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.payments.GetPayment(ctx, h.admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, application.ReasonAttemptExpired, got.FailureReason)

	booked, err := h.bookings.GetBooking(ctx, h.admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", booked.Status)

	// The slot is free again.
	h.bookPrivate(t, auth.Actor{ID: uuid.New(), Role: auth.RoleStudent}, slotReq(24, 25))
}

func TestExpirePending_AttemptWithinTTLIsKept(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	ctx := context.Background()
	b := h.bookPrivate(t, h.student, slotReq(24, 25))
	p := h.attempt(t, b, "pm_card_visa")

	h.clock.Advance(paymentTTL - time.Minute)
	n, err := h.bookings.ExpirePending(ctx, h.system, time.Hour, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := h.payments.GetPayment(ctx, h.admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)
}

func TestRefundBooking_RetryAfterFailedTransitionRefundsOnce(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	ctx := context.Background()
	b := h.bookPrivate(t, h.student, slotReq(24, 25))
	p := h.pay(t, b)

	require.NoError(t, h.db.Migrator().DropTable(&repository.BookingTransitionModel{}))
	_, err := h.bookings.RefundBooking(ctx, h.admin, b.ID, application.CancelBookingRequest{Reason: "teacher no-show"})
	require.Error(t, err)
	assert.Equal(t, 1, h.gateway.Refunds())

	got, err := h.bookings.GetBooking(ctx, h.admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", got.Status)

	require.NoError(t, h.db.AutoMigrate(&repository.BookingTransitionModel{}))
	refunded, err := h.bookings.RefundBooking(ctx, h.admin, b.ID, application.CancelBookingRequest{Reason: "teacher no-show"})
	require.NoError(t, err)
	assert.Equal(t, "refunded", refunded.Status)
	assert.Equal(t, 1, h.gateway.Refunds(), "the retry reuses the issued refund")

	paid, err := h.payments.GetPayment(ctx, h.admin, p.ID)
	require.NoError(t, err)
	require.Len(t, paid.Adjustments, 1)
	assert.Equal(t, "issued", paid.Adjustments[0].Status)
	assert.Equal(t, b.TotalCents, paid.Adjustments[0].AmountCents)
}

func TestRefundBooking_LostRecordIsResentWithSameKey(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	ctx := context.Background()
	b := h.bookPrivate(t, h.student, slotReq(24, 25))
	p := h.pay(t, b)

	var failNext atomic.Bool
	failNext.Store(true)
	require.NoError(t, h.db.Callback().Update().Before("gorm:update").Register("test:fail_adjustment_update",
		func(db *gorm.DB) {
			if db.Statement.Table == "payment_adjustments" && failNext.CompareAndSwap(true, false) {
				_ = db.AddError(errors.New("db unavailable"))
			}
		}))

	_, err := h.bookings.RefundBooking(ctx, h.admin, b.ID, application.CancelBookingRequest{Reason: "teacher no-show"})
	require.Error(t, err)
	assert.Equal(t, 1, h.gateway.Refunds())

	_, err = h.bookings.RefundBooking(ctx, h.admin, b.ID, application.CancelBookingRequest{Reason: "teacher no-show"})
	assert.ErrorIs(t, err, domain.ErrConflict, "a fresh reservation is still in flight")

	h.clock.Advance(time.Minute)
	refunded, err := h.bookings.RefundBooking(ctx, h.admin, b.ID, application.CancelBookingRequest{Reason: "teacher no-show"})
	require.NoError(t, err)
	assert.Equal(t, "refunded", refunded.Status)
	assert.Equal(t, 2, h.gateway.RefundCalls())
	assert.Equal(t, 1, h.gateway.Refunds(), "the resend returns the original refund")

	paid, err := h.payments.GetPayment(ctx, h.admin, p.ID)
	require.NoError(t, err)
	require.Len(t, paid.Adjustments, 1)
	assert.Equal(t, "issued", paid.Adjustments[0].Status)
	assert.Equal(t, b.TotalCents, paid.Adjustments[0].AmountCents)
}

func TestListBookings(t *testing.T) {
	h := newHarness(t)
	h.privateTeacher(t, 6000)
	ctx := context.Background()
	h.bookPrivate(t, h.student, slotReq(24, 25))
	h.bookPrivate(t, auth.Actor{ID: uuid.New(), Role: auth.RoleStudent}, slotReq(26, 27))

	mine, total, err := h.bookings.ListBookings(ctx, h.student, uuid.Nil, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, mine, 1)

	taught, total, err := h.bookings.ListBookings(ctx, h.teacher, uuid.Nil, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, taught, 2)

	_, _, err = h.bookings.ListBookings(ctx, h.student, h.teacher.ID, 1, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, total, err = h.bookings.ListBookings(ctx, h.admin, h.teacher.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
