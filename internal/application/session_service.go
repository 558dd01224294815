package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/adapter"
	"github.com/tutorly/service-learning/internal/domain/booking"
	"github.com/tutorly/service-learning/internal/domain/session"
	"github.com/tutorly/service-learning/internal/domain/store"
	"github.com/tutorly/service-learning/internal/metrics"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/authz"
	"github.com/tutorly/service-learning/pkg/clock"
	"github.com/tutorly/service-learning/pkg/domain"
	"github.com/tutorly/service-learning/pkg/events"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentProvisioning = 4

// SessionService materializes booked slots into sessions and drives their lifecycle.
type SessionService struct {
	uow            store.UnitOfWork
	authz          *authz.Authorizer
	meetings       adapter.MeetingProvider
	notifier       adapter.Notifier
	metrics        *metrics.Metrics
	clock          clock.Clock
	meetingTimeout time.Duration
	logger         *zap.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	uow store.UnitOfWork,
	az *authz.Authorizer,
	meetings adapter.MeetingProvider,
	notifier adapter.Notifier,
	m *metrics.Metrics,
	clk clock.Clock,
	meetingTimeout time.Duration,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		uow:            uow,
		authz:          az,
		meetings:       meetings,
		notifier:       notifier,
		metrics:        m,
		clock:          clk,
		meetingTimeout: meetingTimeout,
		logger:         logger,
	}
}

// Materialize creates any missing sessions for a confirmed booking. Calling it again creates nothing.
func (s *SessionService) Materialize(ctx context.Context, actor auth.Actor, bookingID uuid.UUID) ([]SessionDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectSession, authz.ActionMaterialize); err != nil {
		return nil, err
	}
	var sessions []*session.Session
	err := s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		b, err := repos.Bookings.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status() != booking.StatusConfirmed {
			return domain.NewInvalidStateError(string(b.Status()), "materialized")
		}
		sessions, err = s.materialize(ctx, repos, b)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toSessionDTOs(sessions, true), nil
}

// materialize must run inside a transaction that holds the booking row lock. It asks the
// meeting provider once per missing slot; a failed slot still gets a session, without a meeting.
func (s *SessionService) materialize(ctx context.Context, repos store.Repositories, b *booking.Booking) ([]*session.Session, error) {
	existing, err := repos.Sessions.ListByBooking(ctx, b.ID())
	if err != nil {
		return nil, err
	}
	have := make(map[int]bool, len(existing))
	for _, sess := range existing {
		have[sess.SlotIndex()] = true
	}

	slots := b.Slots()
	var missing []int
	for i := range slots {
		if !have[i] {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return existing, nil
	}

	meetings := make([]*session.Meeting, len(missing))
	failures := make([]string, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProvisioning)
	for n, idx := range missing {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, s.meetingTimeout)
			defer cancel()
			m, err := s.meetings.CreateMeeting(callCtx, adapter.MeetingRequest{
				BookingID: b.ID(),
				SlotIndex: idx,
				HostID:    b.TeacherID(),
				Start:     slots[idx].Start,
				End:       slots[idx].End,
			})
			if err == nil && m.MeetingID == "" {
				err = fmt.Errorf("provider returned an empty meeting id")
			}
			if err != nil {
				// A caller that went away is not a provider failure.
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures[n] = err.Error()
				s.logger.Warn("meeting provisioning failed",
					zap.String("booking_id", b.ID().String()),
					zap.Int("slot_index", idx),
					zap.Error(err),
				)
				return nil
			}
			meetings[n] = &m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	created := make([]*session.Session, 0, len(missing))
	for n, idx := range missing {
		sess := session.NewSession(b.ID(), b.TeacherID(), idx, slots[idx], meetings[n], failures[n], now)
		if err := repos.Sessions.Save(ctx, sess); err != nil {
			return nil, err
		}
		s.metrics.SessionMaterialized(sess.Provisioned())
		created = append(created, sess)
	}

	s.logger.Info("sessions materialized",
		zap.String("booking_id", b.ID().String()),
		zap.Int("created", len(created)),
		zap.Int("already_present", len(existing)),
	)
	return repos.Sessions.ListByBooking(ctx, b.ID())
}

// Start marks a scheduled session as started. Only the session's teacher may start it.
func (s *SessionService) Start(ctx context.Context, actor auth.Actor, sessionID uuid.UUID) (*SessionDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectSession, authz.ActionStart); err != nil {
		return nil, err
	}
	var sess *session.Session
	err := s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		sess, err = repos.Sessions.FindByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if !actor.Is(sess.TeacherID()) {
			return domain.NewForbiddenError("only the session's teacher may start it")
		}
		if err := sess.Start(s.clock.Now()); err != nil {
			return err
		}
		sess.IncrementVersion()
		return repos.Sessions.Update(ctx, sess)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session started", zap.String("session_id", sessionID.String()))
	s.notifier.Notify(ctx, events.NotifySessionStarted, sess.BookingID().String(), events.SessionStartedEvent{
		SessionID:  sess.ID(),
		BookingID:  sess.BookingID(),
		JoinURL:    sess.Meeting().JoinURL,
		OccurredAt: s.clock.Now(),
	})
	dto := toSessionDTO(sess, true)
	return &dto, nil
}

// End marks a started session as ended. When every live session of the booking has ended
// the booking is completed in the same transaction.
func (s *SessionService) End(ctx context.Context, actor auth.Actor, sessionID uuid.UUID) (*SessionDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectSession, authz.ActionEnd); err != nil {
		return nil, err
	}
	var (
		sess      *session.Session
		completed bool
	)
	err := s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		found, err := repos.Sessions.FindByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if !actor.Is(found.TeacherID()) {
			return domain.NewForbiddenError("only the session's teacher may end it")
		}
		b, err := repos.Bookings.FindByIDForUpdate(ctx, found.BookingID())
		if err != nil {
			return err
		}
		// Re-read under the booking lock so the completion check sees committed siblings.
		sess, err = repos.Sessions.FindByID(ctx, sessionID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := sess.End(now); err != nil {
			return err
		}
		sess.IncrementVersion()
		if err := repos.Sessions.Update(ctx, sess); err != nil {
			return err
		}

		all, err := repos.Sessions.ListByBooking(ctx, b.ID())
		if err != nil {
			return err
		}
		if b.Status() != booking.StatusConfirmed || !session.AllEnded(all) {
			return nil
		}
		tr, err := b.Complete(now)
		if err != nil {
			return err
		}
		b.IncrementVersion()
		if err := repos.Bookings.Update(ctx, b); err != nil {
			return err
		}
		completed = true
		return repos.Bookings.SaveTransition(ctx, tr.By(actor.ID, actor.Role, "all sessions ended"))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session ended",
		zap.String("session_id", sessionID.String()),
		zap.Bool("booking_completed", completed),
	)
	if completed {
		s.metrics.BookingTransition(string(booking.StatusCompleted))
	}
	dto := toSessionDTO(sess, true)
	return &dto, nil
}

// List returns a booking's sessions to its student, its teacher or an admin.
func (s *SessionService) List(ctx context.Context, actor auth.Actor, bookingID uuid.UUID) ([]SessionDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectSession, authz.ActionView); err != nil {
		return nil, err
	}
	repos := s.uow.Repositories()
	b, err := repos.Bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !b.IsParty(actor.ID) {
		return nil, domain.NewForbiddenError("not a participant of this booking")
	}
	sessions, err := repos.Sessions.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return toSessionDTOs(sessions, actor.IsAdmin() || actor.Is(b.TeacherID())), nil
}

func toSessionDTOs(sessions []*session.Session, withHost bool) []SessionDTO {
	out := make([]SessionDTO, len(sessions))
	for i, sess := range sessions {
		out[i] = toSessionDTO(sess, withHost)
	}
	return out
}

// cancelScheduled cancels the booking's sessions that have not started yet.
func cancelScheduled(ctx context.Context, repos store.Repositories, bookingID uuid.UUID, now time.Time) (int, error) {
	sessions, err := repos.Sessions.ListByBooking(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range sessions {
		if sess.Status() != session.StatusScheduled {
			continue
		}
		if _, err := sess.Cancel(now); err != nil {
			return n, err
		}
		sess.IncrementVersion()
		if err := repos.Sessions.Update(ctx, sess); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
