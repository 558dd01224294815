package repository

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/pkg/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate adds a row lock on dialects that support it. SQLite serializes writers anyway.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}

func notFound(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewNotFoundError(entity, id.String())
	}
	return err
}

func offset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

// AllModels lists every persistence model, for AutoMigrate in development and tests.
func AllModels() []interface{} {
	return []interface{}{
		&BookingModel{},
		&BookingSlotModel{},
		&BookingTransitionModel{},
		&PaymentModel{},
		&PaymentAdjustmentModel{},
		&SessionModel{},
		&DisputeModel{},
		&PayoutModel{},
		&TeacherWalletModel{},
		&TeacherRateModel{},
		&AvailabilityModel{},
		&CourseModel{},
		&CourseSlotModel{},
	}
}
