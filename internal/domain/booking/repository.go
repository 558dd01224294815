package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/timeslot"
)

// Repository defines the persistence contract for Booking aggregates.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindByIDForUpdate loads the booking holding a row lock until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error)

	// Save persists a new booking with its slots.
	Save(ctx context.Context, b *Booking) error

	// Update persists status changes with optimistic locking on version.
	Update(ctx context.Context, b *Booking) error

	// HasConflict reports whether any pending or confirmed booking of the teacher overlaps slots.
	// Bookings of excludeCourseID are ignored so that students can share a course's slots.
	HasConflict(ctx context.Context, teacherID uuid.UUID, slots []timeslot.Slot, excludeCourseID *uuid.UUID) (bool, error)

	// HasOpenCourseBooking reports whether the student already holds a pending or confirmed seat in the course.
	HasOpenCourseBooking(ctx context.Context, studentID, courseID uuid.UUID) (bool, error)

	// FindPendingCourseBooking returns the student's pending seat in a course.
	FindPendingCourseBooking(ctx context.Context, studentID, courseID uuid.UUID) (*Booking, error)
	// ListPendingCreatedBefore returns pending bookings older than cutoff with no open payment.
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Booking, error)

	// ListByParticipant returns bookings where userID is the student or the teacher.
	ListByParticipant(ctx context.Context, userID uuid.UUID, page, limit int) ([]*Booking, int64, error)

	// SumCompletedEarnings totals teacher_earning_cents over the teacher's completed bookings
	// priced in currency.
	SumCompletedEarnings(ctx context.Context, teacherID uuid.UUID, currency string) (int64, error)

	SaveTransition(ctx context.Context, t Transition) error
	ListTransitions(ctx context.Context, bookingID uuid.UUID) ([]Transition, error)
}
