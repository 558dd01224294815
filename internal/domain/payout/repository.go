package payout

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Payout, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Payout, error)
	Save(ctx context.Context, p *Payout) error
	Update(ctx context.Context, p *Payout) error

	// SumCommitted totals the teacher's pending and sent payouts.
	SumCommitted(ctx context.Context, teacherID uuid.UUID) (int64, error)

	ListByTeacher(ctx context.Context, teacherID uuid.UUID, page, limit int) ([]*Payout, int64, error)
	ListAll(ctx context.Context, status Status, page, limit int) ([]*Payout, int64, error)

	// WalletVersion returns the teacher's wallet row version, creating the row at 0 if absent.
	WalletVersion(ctx context.Context, teacherID uuid.UUID) (int64, error)

	// BumpWalletVersion advances the wallet row from expected to expected+1.
	// A concurrent writer that got there first yields ConflictError.
	BumpWalletVersion(ctx context.Context, teacherID uuid.UUID, expected int64) error
}
