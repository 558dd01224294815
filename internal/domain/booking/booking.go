package booking

import (
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/timeslot"
	"github.com/tutorly/service-learning/pkg/domain"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
	StatusCompleted Status = "completed"
)

// transitions is the complete edge set. Anything else is rejected.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusRefunded, StatusCompleted},
	StatusCancelled: {StatusRefunded},
}

// CanTransition reports whether from → to is an edge of the booking state machine.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Booking is the aggregate root for a student's reservation of one or more slots.
type Booking struct {
	id                  uuid.UUID
	studentID           uuid.UUID
	teacherID           uuid.UUID
	courseID            *uuid.UUID
	status              Status
	totalCents          int64
	platformFeeCents    int64
	teacherEarningCents int64
	currency            string
	slots               []timeslot.Slot
	confirmedAt         *time.Time
	cancelledAt         *time.Time
	refundedAt          *time.Time
	completedAt         *time.Time
	version             int64
	createdAt           time.Time
	updatedAt           time.Time
}

// NewBooking creates a pending booking. The total is computed by the caller from catalog data,
// and the platform fee is taken from it at feePercent.
func NewBooking(
	studentID, teacherID uuid.UUID,
	courseID *uuid.UUID,
	slots []timeslot.Slot,
	totalCents int64,
	currency string,
	feePercent float64,
	now time.Time,
) (*Booking, error) {
	normalized, err := timeslot.Normalize(slots)
	if err != nil {
		return nil, err
	}
	if totalCents <= 0 {
		return nil, domain.NewValidationError("total", "price must be positive")
	}
	if studentID == teacherID {
		return nil, domain.NewValidationError("teacher_id", "cannot book yourself")
	}
	if feePercent < 0 || feePercent >= 100 {
		return nil, domain.NewValidationError("fee_percent", "must be in [0, 100)")
	}
	fee := int64(float64(totalCents) * feePercent / 100.0)
	now = now.UTC()
	return &Booking{
		id:                  uuid.New(),
		studentID:           studentID,
		teacherID:           teacherID,
		courseID:            courseID,
		status:              StatusPending,
		totalCents:          totalCents,
		platformFeeCents:    fee,
		teacherEarningCents: totalCents - fee,
		currency:            currency,
		slots:               normalized,
		version:             1,
		createdAt:           now,
		updatedAt:           now,
	}, nil
}

func (b *Booking) ID() uuid.UUID               { return b.id }
func (b *Booking) StudentID() uuid.UUID        { return b.studentID }
func (b *Booking) TeacherID() uuid.UUID        { return b.teacherID }
func (b *Booking) CourseID() *uuid.UUID        { return b.courseID }
func (b *Booking) Status() Status              { return b.status }
func (b *Booking) TotalCents() int64           { return b.totalCents }
func (b *Booking) PlatformFeeCents() int64     { return b.platformFeeCents }
func (b *Booking) TeacherEarningCents() int64  { return b.teacherEarningCents }
func (b *Booking) Currency() string            { return b.currency }
func (b *Booking) ConfirmedAt() *time.Time     { return b.confirmedAt }
func (b *Booking) CancelledAt() *time.Time     { return b.cancelledAt }
func (b *Booking) RefundedAt() *time.Time      { return b.refundedAt }
func (b *Booking) CompletedAt() *time.Time     { return b.completedAt }
func (b *Booking) Version() int64              { return b.version }
func (b *Booking) CreatedAt() time.Time        { return b.createdAt }
func (b *Booking) UpdatedAt() time.Time        { return b.updatedAt }
func (b *Booking) IsCourse() bool              { return b.courseID != nil }
func (b *Booking) IsParty(id uuid.UUID) bool   { return id == b.studentID || id == b.teacherID }

// Slots returns a copy of the booked slots in start order.
func (b *Booking) Slots() []timeslot.Slot {
	out := make([]timeslot.Slot, len(b.slots))
	copy(out, b.slots)
	return out
}

// FirstStart is the start of the earliest slot.
func (b *Booking) FirstStart() time.Time { return b.slots[0].Start }

// Confirm moves pending → confirmed once payment has completed.
func (b *Booking) Confirm(now time.Time) (Transition, error) {
	t, err := b.move(StatusConfirmed, now)
	if err == nil {
		b.confirmedAt = &t.At
	}
	return t, err
}

// Cancel moves pending or confirmed → cancelled. A confirmed booking can only be
// cancelled before its first slot begins.
func (b *Booking) Cancel(now time.Time) (Transition, error) {
	if b.status == StatusConfirmed && !now.Before(b.FirstStart()) {
		return Transition{}, domain.NewInvalidStateError(string(b.status)+" (started)", string(StatusCancelled))
	}
	t, err := b.move(StatusCancelled, now)
	if err == nil {
		b.cancelledAt = &t.At
	}
	return t, err
}

// Refund moves confirmed or cancelled → refunded.
func (b *Booking) Refund(now time.Time) (Transition, error) {
	t, err := b.move(StatusRefunded, now)
	if err == nil {
		b.refundedAt = &t.At
	}
	return t, err
}

// Complete moves confirmed → completed once every session has ended.
func (b *Booking) Complete(now time.Time) (Transition, error) {
	t, err := b.move(StatusCompleted, now)
	if err == nil {
		b.completedAt = &t.At
	}
	return t, err
}

func (b *Booking) move(to Status, now time.Time) (Transition, error) {
	if !CanTransition(b.status, to) {
		return Transition{}, domain.NewInvalidTransitionError("booking", string(b.status), string(to))
	}
	now = now.UTC()
	t := Transition{BookingID: b.id, From: b.status, To: to, At: now}
	b.status = to
	b.updatedAt = now
	return t, nil
}

// IncrementVersion bumps the version for optimistic locking.
func (b *Booking) IncrementVersion() {
	b.version++
}

// Reconstitute rebuilds a Booking from persisted data.
func Reconstitute(
	id, studentID, teacherID uuid.UUID,
	courseID *uuid.UUID,
	status Status,
	totalCents, platformFeeCents, teacherEarningCents int64,
	currency string,
	slots []timeslot.Slot,
	confirmedAt, cancelledAt, refundedAt, completedAt *time.Time,
	version int64,
	createdAt, updatedAt time.Time,
) *Booking {
	return &Booking{
		id:                  id,
		studentID:           studentID,
		teacherID:           teacherID,
		courseID:            courseID,
		status:              status,
		totalCents:          totalCents,
		platformFeeCents:    platformFeeCents,
		teacherEarningCents: teacherEarningCents,
		currency:            currency,
		slots:               slots,
		confirmedAt:         confirmedAt,
		cancelledAt:         cancelledAt,
		refundedAt:          refundedAt,
		completedAt:         completedAt,
		version:             version,
		createdAt:           createdAt,
		updatedAt:           updatedAt,
	}
}
