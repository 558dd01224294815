package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for Payment aggregates and their adjustments.
type Repository interface {
	// FindByID retrieves a payment by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByIDForUpdate loads the payment holding a row lock until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindOpenByBooking returns the pending or completed payment settling a booking, if any.
	FindOpenByBooking(ctx context.Context, bookingID uuid.UUID) (*Payment, error)

	// ListByBooking returns every attempt made for a booking, oldest first.
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*Payment, error)

	// ListPendingCreatedBefore returns pending attempts older than cutoff, oldest first.
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Payment, error)

	// ListAll retrieves all payments with pagination (admin).
	ListAll(ctx context.Context, page, limit int) ([]*Payment, int64, error)

	// GetStats returns completed revenue and a count per status (admin).
	GetStats(ctx context.Context) (completedCents int64, countByStatus map[string]int64, err error)

	Save(ctx context.Context, p *Payment) error

	// Update persists changes with optimistic locking on version.
	Update(ctx context.Context, p *Payment) error

	SaveAdjustment(ctx context.Context, a *Adjustment) error

	// UpdateAdjustment persists an adjustment's status and gateway refund id.
	UpdateAdjustment(ctx context.Context, a *Adjustment) error

	// FindAdjustment returns the pending or issued adjustment of kind recorded for reference.
	FindAdjustment(ctx context.Context, paymentID uuid.UUID, kind AdjustmentKind, reference uuid.UUID) (*Adjustment, error)

	// SumAdjustments totals pending and issued adjustments. Failed ones returned nothing.
	SumAdjustments(ctx context.Context, paymentID uuid.UUID) (int64, error)

	ListAdjustments(ctx context.Context, paymentID uuid.UUID) ([]*Adjustment, error)
}
