package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/timeslot"
	"github.com/tutorly/service-learning/pkg/domain"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusStarted   Status = "started"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

// Meeting is what the video provider hands back for one slot.
type Meeting struct {
	MeetingID string
	JoinURL   string
	HostURL   string
}

// Session is one concrete teaching occurrence of a booking slot.
type Session struct {
	id                uuid.UUID
	bookingID         uuid.UUID
	teacherID         uuid.UUID
	slotIndex         int
	scheduledStart    time.Time
	scheduledEnd      time.Time
	meeting           Meeting
	provisioningError string
	status            Status
	startedAt         *time.Time
	endedAt           *time.Time
	cancelledAt       *time.Time
	version           int64
	createdAt         time.Time
	updatedAt         time.Time
}

// NewSession creates a scheduled session. meeting is nil when provisioning failed, in which
// case provisioningErr records why. Meeting fields cannot be changed afterwards.
func NewSession(bookingID, teacherID uuid.UUID, slotIndex int, slot timeslot.Slot, meeting *Meeting, provisioningErr string, now time.Time) *Session {
	now = now.UTC()
	s := &Session{
		id:             uuid.New(),
		bookingID:      bookingID,
		teacherID:      teacherID,
		slotIndex:      slotIndex,
		scheduledStart: slot.Start,
		scheduledEnd:   slot.End,
		status:         StatusScheduled,
		version:        1,
		createdAt:      now,
		updatedAt:      now,
	}
	if meeting != nil {
		s.meeting = *meeting
	} else {
		s.provisioningError = provisioningErr
	}
	return s
}

func (s *Session) ID() uuid.UUID             { return s.id }
func (s *Session) BookingID() uuid.UUID      { return s.bookingID }
func (s *Session) TeacherID() uuid.UUID      { return s.teacherID }
func (s *Session) SlotIndex() int            { return s.slotIndex }
func (s *Session) ScheduledStart() time.Time { return s.scheduledStart }
func (s *Session) ScheduledEnd() time.Time   { return s.scheduledEnd }
func (s *Session) Meeting() Meeting          { return s.meeting }
func (s *Session) ProvisioningError() string { return s.provisioningError }
func (s *Session) Status() Status            { return s.status }
func (s *Session) StartedAt() *time.Time     { return s.startedAt }
func (s *Session) EndedAt() *time.Time       { return s.endedAt }
func (s *Session) CancelledAt() *time.Time   { return s.cancelledAt }
func (s *Session) Version() int64            { return s.version }
func (s *Session) CreatedAt() time.Time      { return s.createdAt }
func (s *Session) UpdatedAt() time.Time      { return s.updatedAt }
func (s *Session) Provisioned() bool         { return s.meeting.MeetingID != "" }

// Start moves scheduled → started.
func (s *Session) Start(now time.Time) error {
	if s.status != StatusScheduled {
		return domain.NewInvalidTransitionError("session", string(s.status), string(StatusStarted))
	}
	now = now.UTC()
	s.status = StatusStarted
	s.startedAt = &now
	s.updatedAt = now
	return nil
}

// End moves started → ended.
func (s *Session) End(now time.Time) error {
	if s.status != StatusStarted {
		return domain.NewInvalidTransitionError("session", string(s.status), string(StatusEnded))
	}
	now = now.UTC()
	s.status = StatusEnded
	s.endedAt = &now
	s.updatedAt = now
	return nil
}

// Cancel moves scheduled → cancelled when the booking is cancelled or refunded.
// Already cancelled sessions are left alone.
func (s *Session) Cancel(now time.Time) (bool, error) {
	switch s.status {
	case StatusCancelled:
		return false, nil
	case StatusScheduled:
	default:
		return false, domain.NewInvalidTransitionError("session", string(s.status), string(StatusCancelled))
	}
	now = now.UTC()
	s.status = StatusCancelled
	s.cancelledAt = &now
	s.updatedAt = now
	return true, nil
}

func (s *Session) IncrementVersion() {
	s.version++
}

// Reconstitute rebuilds a Session from persisted data.
func Reconstitute(
	id, bookingID, teacherID uuid.UUID,
	slotIndex int,
	scheduledStart, scheduledEnd time.Time,
	meeting Meeting,
	provisioningError string,
	status Status,
	startedAt, endedAt, cancelledAt *time.Time,
	version int64,
	createdAt, updatedAt time.Time,
) *Session {
	return &Session{
		id:                id,
		bookingID:         bookingID,
		teacherID:         teacherID,
		slotIndex:         slotIndex,
		scheduledStart:    scheduledStart,
		scheduledEnd:      scheduledEnd,
		meeting:           meeting,
		provisioningError: provisioningError,
		status:            status,
		startedAt:         startedAt,
		endedAt:           endedAt,
		cancelledAt:       cancelledAt,
		version:           version,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}

// AllEnded reports whether every non-cancelled session has ended and at least one did.
func AllEnded(sessions []*Session) bool {
	ended := 0
	for _, s := range sessions {
		switch s.Status() {
		case StatusEnded:
			ended++
		case StatusCancelled:
		default:
			return false
		}
	}
	return ended > 0
}

// AnyStarted reports whether a session has already begun or finished.
func AnyStarted(sessions []*Session) bool {
	for _, s := range sessions {
		if s.Status() == StatusStarted || s.Status() == StatusEnded {
			return true
		}
	}
	return false
}
