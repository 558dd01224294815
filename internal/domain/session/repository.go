package session

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for Session records.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Session, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*Session, error)

	// Save inserts a session. (booking_id, slot_index) is unique, so a duplicate returns ConflictError.
	Save(ctx context.Context, s *Session) error

	// Update persists status changes with optimistic locking on version.
	Update(ctx context.Context, s *Session) error
}
