package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/timeslot"
)

type Repository interface {
	// FindRate returns NotFoundError when the teacher has not published a rate.
	FindRate(ctx context.Context, teacherID uuid.UUID) (Rate, error)
	UpsertRate(ctx context.Context, r Rate) error

	SaveAvailability(ctx context.Context, a Availability) error
	ListAvailability(ctx context.Context, teacherID uuid.UUID) ([]Availability, error)

	// Covers reports whether a single availability window fully contains slot.
	Covers(ctx context.Context, teacherID uuid.UUID, slot timeslot.Slot) (bool, error)

	SaveCourse(ctx context.Context, c *Course) error
	FindCourse(ctx context.Context, id uuid.UUID) (*Course, error)
}
