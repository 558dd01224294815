package dispute

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Dispute, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Dispute, error)
	Save(ctx context.Context, d *Dispute) error
	Update(ctx context.Context, d *Dispute) error

	// Delete removes an open dispute. It is a ConflictError if the row changed since it was read.
	Delete(ctx context.Context, d *Dispute) error

	// ListAll filters by status when status is non-empty.
	ListAll(ctx context.Context, status Status, page, limit int) ([]*Dispute, int64, error)
}
