// Package store groups the aggregate repositories behind one transactional boundary.
package store

import (
	"context"

	"github.com/tutorly/service-learning/internal/domain/booking"
	"github.com/tutorly/service-learning/internal/domain/catalog"
	"github.com/tutorly/service-learning/internal/domain/dispute"
	"github.com/tutorly/service-learning/internal/domain/payment"
	"github.com/tutorly/service-learning/internal/domain/payout"
	"github.com/tutorly/service-learning/internal/domain/session"
)

// Repositories is a set of repositories bound to the same connection or transaction.
type Repositories struct {
	Bookings booking.Repository
	Payments payment.Repository
	Sessions session.Repository
	Disputes dispute.Repository
	Payouts  payout.Repository
	Catalog  catalog.Repository
}

// UnitOfWork runs fn in a single database transaction. Repositories handed to fn share it;
// the transaction commits when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error

	// Repositories returns repositories outside any transaction, for reads.
	Repositories() Repositories
}
