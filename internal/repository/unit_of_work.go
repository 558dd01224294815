package repository

import (
	"context"

	"github.com/tutorly/service-learning/internal/domain/store"
	"gorm.io/gorm"
)

// GormUnitOfWork binds every repository to one *gorm.DB, or to a transaction inside Within.
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork creates a unit of work over db.
func NewUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Repositories returns repositories bound to the root connection, outside any transaction.
func (u *GormUnitOfWork) Repositories() store.Repositories {
	return repositoriesFor(u.db)
}

// Within runs fn in a transaction and commits when it returns nil.
func (u *GormUnitOfWork) Within(ctx context.Context, fn func(ctx context.Context, repos store.Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, repositoriesFor(tx))
	})
}

func repositoriesFor(db *gorm.DB) store.Repositories {
	return store.Repositories{
		Bookings: NewBookingRepository(db),
		Payments: NewPaymentRepository(db),
		Sessions: NewSessionRepository(db),
		Disputes: NewDisputeRepository(db),
		Payouts:  NewPayoutRepository(db),
		Catalog:  NewCatalogRepository(db),
	}
}

var _ store.UnitOfWork = (*GormUnitOfWork)(nil)
