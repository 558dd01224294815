package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/adapter"
	"github.com/tutorly/service-learning/internal/domain/booking"
	"github.com/tutorly/service-learning/internal/domain/payment"
	"github.com/tutorly/service-learning/internal/domain/session"
	"github.com/tutorly/service-learning/internal/domain/store"
	"github.com/tutorly/service-learning/internal/domain/timeslot"
	"github.com/tutorly/service-learning/internal/metrics"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/authz"
	"github.com/tutorly/service-learning/pkg/clock"
	"github.com/tutorly/service-learning/pkg/domain"
	"github.com/tutorly/service-learning/pkg/events"
	"github.com/tutorly/service-learning/pkg/lock"
	"go.uber.org/zap"
)

// CreateBookingRequest books either a course seat (CourseID) or a private lesson (TeacherID and Slots).
type CreateBookingRequest struct {
	CourseID  *uuid.UUID    `json:"course_id"`
	TeacherID *uuid.UUID    `json:"teacher_id"`
	Slots     []SlotRequest `json:"slots" binding:"omitempty,dive"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// BookingPolicy holds the pricing, expiry and locking knobs of the booking lifecycle.
type BookingPolicy struct {
	PlatformFeePercent float64
	LockWait           time.Duration
	// PaymentTTL is how long an attempt may stay pending before expiry fails it.
	// Zero leaves pending attempts alone.
	PaymentTTL time.Duration
}

// BookingService is the booking lifecycle manager.
type BookingService struct {
	uow      store.UnitOfWork
	authz    *authz.Authorizer
	locker   lock.Locker
	payments *PaymentService
	notifier adapter.Notifier
	metrics  *metrics.Metrics
	clock    clock.Clock
	policy   BookingPolicy
	logger   *zap.Logger
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	uow store.UnitOfWork,
	az *authz.Authorizer,
	locker lock.Locker,
	payments *PaymentService,
	notifier adapter.Notifier,
	m *metrics.Metrics,
	clk clock.Clock,
	policy BookingPolicy,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		uow:      uow,
		authz:    az,
		locker:   locker,
		payments: payments,
		notifier: notifier,
		metrics:  m,
		clock:    clk,
		policy:   policy,
		logger:   logger,
	}
}

type bookingDraft struct {
	teacherID uuid.UUID
	courseID  *uuid.UUID
	slots     []timeslot.Slot
	total     int64
	currency  string
}

// CreateBooking prices the request from catalog data and reserves the slots as a pending booking.
// Slot checks and the insert run under a per-teacher lock so two students cannot take the same slot.
func (s *BookingService) CreateBooking(ctx context.Context, actor auth.Actor, req CreateBookingRequest) (*BookingDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectBooking, authz.ActionCreate); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	draft, err := s.draft(ctx, actor, req, now)
	if err != nil {
		return nil, err
	}

	var b *booking.Booking
	err = withLock(ctx, s.locker, "booking:teacher:"+draft.teacherID.String(), s.policy.LockWait, func() error {
		return s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
			if draft.courseID != nil {
				held, err := repos.Bookings.HasOpenCourseBooking(ctx, actor.ID, *draft.courseID)
				if err != nil {
					return err
				}
				if held {
					return domain.NewSlotConflictError("you already hold a seat in this course")
				}
			}
			conflict, err := repos.Bookings.HasConflict(ctx, draft.teacherID, draft.slots, draft.courseID)
			if err != nil {
				return err
			}
			if conflict {
				return domain.NewSlotConflictError("requested slots overlap an existing booking")
			}
			b, err = booking.NewBooking(actor.ID, draft.teacherID, draft.courseID, draft.slots,
				draft.total, draft.currency, s.policy.PlatformFeePercent, now)
			if err != nil {
				return err
			}
			if err := repos.Bookings.Save(ctx, b); err != nil {
				return err
			}
			created := booking.Transition{BookingID: b.ID(), To: booking.StatusPending, At: now}
			return repos.Bookings.SaveTransition(ctx, created.By(actor.ID, actor.Role, "created"))
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BookingTransition(string(booking.StatusPending))
	s.logger.Info("booking created",
		zap.String("booking_id", b.ID().String()),
		zap.String("student_id", actor.ID.String()),
		zap.String("teacher_id", b.TeacherID().String()),
		zap.Int64("total_cents", b.TotalCents()),
	)
	dto := toBookingDTO(b)
	return &dto, nil
}

// draft resolves price, teacher and slots. Nothing here is taken from the client but the choice.
func (s *BookingService) draft(ctx context.Context, actor auth.Actor, req CreateBookingRequest, now time.Time) (*bookingDraft, error) {
	repos := s.uow.Repositories()

	if req.CourseID != nil {
		if req.TeacherID != nil || len(req.Slots) > 0 {
			return nil, domain.NewValidationError("course_id", "a course booking takes no teacher_id or slots")
		}
		c, err := repos.Catalog.FindCourse(ctx, *req.CourseID)
		if err != nil {
			return nil, err
		}
		if !c.Slots[0].Start.After(now) {
			return nil, domain.NewInvalidStateError("started", "booked")
		}
		return &bookingDraft{
			teacherID: c.TeacherID,
			courseID:  &c.ID,
			slots:     c.Slots,
			total:     c.PriceCents,
			currency:  c.Currency,
		}, nil
	}

	if req.TeacherID == nil {
		return nil, domain.NewValidationError("teacher_id", "is required for a private lesson")
	}
	slots, err := timeslot.Normalize(toSlots(req.Slots))
	if err != nil {
		return nil, err
	}
	if !slots[0].Start.After(now) {
		return nil, domain.NewValidationError("slots", "must start in the future")
	}
	rate, err := repos.Catalog.FindRate(ctx, *req.TeacherID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewValidationError("teacher_id", "teacher has no published rate")
	}
	if err != nil {
		return nil, err
	}
	for _, slot := range slots {
		ok, err := repos.Catalog.Covers(ctx, *req.TeacherID, slot)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.NewSlotConflictError("slot " + slot.Start.Format(time.RFC3339) + " is outside the teacher's availability")
		}
	}
	return &bookingDraft{
		teacherID: *req.TeacherID,
		slots:     slots,
		total:     rate.PriceFor(slots),
		currency:  rate.Currency,
	}, nil
}

// CancelBooking cancels a pending booking, or a confirmed one before its first slot starts.
// Scheduled sessions are cancelled with it. Cancelling does not refund; see RefundBooking.
func (s *BookingService) CancelBooking(ctx context.Context, actor auth.Actor, bookingID uuid.UUID, req CancelBookingRequest) (*BookingDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectBooking, authz.ActionCancel); err != nil {
		return nil, err
	}
	b, err := s.cancel(ctx, actor, bookingID, req.Reason)
	if err != nil {
		return nil, err
	}
	dto := toBookingDTO(b)
	return &dto, nil
}

func (s *BookingService) cancel(ctx context.Context, actor auth.Actor, bookingID uuid.UUID, reason string) (*booking.Booking, error) {
	var (
		b         *booking.Booking
		cancelled int
	)
	err := s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		b, err = repos.Bookings.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if actor.Role == auth.RoleStudent && !actor.Is(b.StudentID()) {
			return domain.NewForbiddenError("only the booking's student may cancel it")
		}

		now := s.clock.Now()
		switch b.Status() {
		case booking.StatusPending:
			open, err := repos.Payments.FindOpenByBooking(ctx, b.ID())
			if err == nil && open.Status() == payment.StatusPending {
				return domain.NewInvalidStateError("payment_in_progress", string(booking.StatusCancelled))
			}
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		case booking.StatusConfirmed:
			sessions, err := repos.Sessions.ListByBooking(ctx, b.ID())
			if err != nil {
				return err
			}
			if session.AnyStarted(sessions) {
				return domain.NewInvalidStateError("in_progress", string(booking.StatusCancelled))
			}
		}

		tr, err := b.Cancel(now)
		if err != nil {
			return err
		}
		if cancelled, err = cancelScheduled(ctx, repos, b.ID(), now); err != nil {
			return err
		}
		b.IncrementVersion()
		if err := repos.Bookings.Update(ctx, b); err != nil {
			return err
		}
		return repos.Bookings.SaveTransition(ctx, tr.By(actor.ID, actor.Role, reason))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BookingTransition(string(booking.StatusCancelled))
	s.logger.Info("booking cancelled",
		zap.String("booking_id", bookingID.String()),
		zap.String("actor", actor.String()),
		zap.Int("sessions_cancelled", cancelled),
	)
	s.notifier.Notify(ctx, events.NotifyBookingCancelled, b.ID().String(), events.BookingCancelledEvent{
		BookingID:  b.ID(),
		StudentID:  b.StudentID(),
		TeacherID:  b.TeacherID(),
		Status:     string(b.Status()),
		Reason:     reason,
		OccurredAt: s.clock.Now(),
	})
	return b, nil
}

// RefundBooking returns what remains of the booking's completed payment through the gateway
// and moves the booking to refunded. The payment's own status is left as it is.
// The refund is reserved and committed before the gateway is called, and the booking moves
// in a later transaction, so a retry after a failed transition resumes the same refund.
func (s *BookingService) RefundBooking(ctx context.Context, actor auth.Actor, bookingID uuid.UUID, req CancelBookingRequest) (*BookingDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectBooking, authz.ActionRefund); err != nil {
		return nil, err
	}
	var (
		p   *payment.Payment
		adj *payment.Adjustment
	)
	err := s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		current, err := repos.Bookings.FindByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if !booking.CanTransition(current.Status(), booking.StatusRefunded) {
			return domain.NewInvalidTransitionError("booking", string(current.Status()), string(booking.StatusRefunded))
		}
		// Payment before booking, the same order MarkCompleted locks in.
		if p, err = s.payments.settledPayment(ctx, repos, bookingID); err != nil {
			return err
		}
		if _, err = repos.Bookings.FindByIDForUpdate(ctx, bookingID); err != nil {
			return err
		}
		if p.Status() != payment.StatusCompleted {
			return nil
		}
		adj, err = s.payments.reserveRefund(ctx, repos, p, payment.AdjustmentBookingRefund, bookingID, 0, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := s.payments.issueRefund(ctx, p.GatewayTransactionID(), adj); err != nil {
		return nil, err
	}

	var b *booking.Booking
	err = s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		if b, err = repos.Bookings.FindByIDForUpdate(ctx, bookingID); err != nil {
			return err
		}
		now := s.clock.Now()
		tr, err := b.Refund(now)
		if err != nil {
			return err
		}
		if _, err := cancelScheduled(ctx, repos, b.ID(), now); err != nil {
			return err
		}
		b.IncrementVersion()
		if err := repos.Bookings.Update(ctx, b); err != nil {
			return err
		}
		return repos.Bookings.SaveTransition(ctx, tr.By(actor.ID, actor.Role, req.Reason))
	})
	if err != nil {
		return nil, err
	}

	var refunded int64
	if adj != nil {
		refunded = adj.AmountCents
	}
	s.metrics.BookingTransition(string(booking.StatusRefunded))
	s.logger.Info("booking refunded",
		zap.String("booking_id", bookingID.String()),
		zap.String("admin_id", actor.ID.String()),
		zap.Int64("refunded_cents", refunded),
	)
	s.notifier.Notify(ctx, events.NotifyBookingCancelled, b.ID().String(), events.BookingCancelledEvent{
		BookingID:  b.ID(),
		StudentID:  b.StudentID(),
		TeacherID:  b.TeacherID(),
		Status:     string(b.Status()),
		Reason:     req.Reason,
		OccurredAt: s.clock.Now(),
	})
	dto := toBookingDTO(b)
	return &dto, nil
}

// ExpirePending cancels pending bookings older than ttl that hold no open payment. Attempts
// pending longer than the payment TTL are failed first, so an abandoned checkout does not hold
// its booking forever. It returns how many bookings were cancelled.
func (s *BookingService) ExpirePending(ctx context.Context, actor auth.Actor, ttl time.Duration, batch int) (int, error) {
	if err := s.authz.Authorize(actor, authz.ObjectBooking, authz.ActionExpire); err != nil {
		return 0, err
	}
	if s.policy.PaymentTTL > 0 {
		failed, err := s.payments.ExpireAttempts(ctx, actor, s.policy.PaymentTTL, batch)
		if err != nil {
			return 0, err
		}
		if failed > 0 {
			s.logger.Info("expired stale payment attempts", zap.Int("count", failed))
		}
	}
	cutoff := s.clock.Now().Add(-ttl)
	stale, err := s.uow.Repositories().Bookings.ListPendingCreatedBefore(ctx, cutoff, batch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, b := range stale {
		if _, err := s.cancel(ctx, actor, b.ID(), "expired unpaid"); err != nil {
			// A payment attempt or a cancel may have landed since the scan.
			s.logger.Warn("failed to expire booking",
				zap.String("booking_id", b.ID().String()),
				zap.Error(err),
			)
			continue
		}
		expired++
	}
	s.metrics.BookingsExpired(expired)
	return expired, nil
}

// GetBooking returns a booking to its student, its teacher or an admin.
func (s *BookingService) GetBooking(ctx context.Context, actor auth.Actor, bookingID uuid.UUID) (*BookingDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectBooking, authz.ActionView); err != nil {
		return nil, err
	}
	b, err := s.uow.Repositories().Bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !b.IsParty(actor.ID) {
		return nil, domain.NewForbiddenError("not a participant of this booking")
	}
	dto := toBookingDTO(b)
	return &dto, nil
}

// ListBookings returns the caller's bookings as student or teacher. Admins may pass another user.
func (s *BookingService) ListBookings(ctx context.Context, actor auth.Actor, userID uuid.UUID, page, limit int) ([]BookingDTO, int64, error) {
	if err := s.authz.Authorize(actor, authz.ObjectBooking, authz.ActionView); err != nil {
		return nil, 0, err
	}
	if userID == uuid.Nil {
		userID = actor.ID
	}
	if !actor.Is(userID) {
		if err := s.authz.Authorize(actor, authz.ObjectBooking, authz.ActionList); err != nil {
			return nil, 0, err
		}
	}
	bookings, total, err := s.uow.Repositories().Bookings.ListByParticipant(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]BookingDTO, len(bookings))
	for i, b := range bookings {
		out[i] = toBookingDTO(b)
	}
	return out, total, nil
}

// Transitions returns the booking's audit trail, oldest first.
func (s *BookingService) Transitions(ctx context.Context, actor auth.Actor, bookingID uuid.UUID) ([]TransitionDTO, error) {
	if _, err := s.GetBooking(ctx, actor, bookingID); err != nil {
		return nil, err
	}
	ts, err := s.uow.Repositories().Bookings.ListTransitions(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return toTransitionDTOs(ts), nil
}
