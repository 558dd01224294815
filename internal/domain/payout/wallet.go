package payout

import (
	"github.com/google/uuid"
	"github.com/tutorly/service-learning/pkg/domain"
)

// Balance is a teacher's derived wallet position.
type Balance struct {
	TeacherID      uuid.UUID
	EarnedCents    int64
	CommittedCents int64
	AvailableCents int64
}

// NewBalance derives availability from lifetime earnings and pending or sent payouts.
func NewBalance(teacherID uuid.UUID, earned, committed int64) Balance {
	available := earned - committed
	if available < 0 {
		available = 0
	}
	return Balance{
		TeacherID:      teacherID,
		EarnedCents:    earned,
		CommittedCents: committed,
		AvailableCents: available,
	}
}

// Cover returns InsufficientBalanceError when amount exceeds what is available.
func (b Balance) Cover(amountCents int64) error {
	if amountCents > b.AvailableCents {
		return domain.NewInsufficientBalanceError(amountCents, b.AvailableCents)
	}
	return nil
}
