package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/payout"
	"github.com/tutorly/service-learning/pkg/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PayoutModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeacherID   uuid.UUID `gorm:"type:uuid;not null;index"`
	AmountCents int64     `gorm:"not null"`
	Currency    string    `gorm:"type:varchar(3);not null"`
	Status      string    `gorm:"type:varchar(20);not null;index"`
	Reference   string    `gorm:"type:varchar(255)"`
	SentAt      *time.Time
	CancelledAt *time.Time
	Version     int64     `gorm:"not null;default:1"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (PayoutModel) TableName() string { return "payouts" }

// TeacherWalletModel is the per-teacher compare-and-swap row that fences payout creation.
type TeacherWalletModel struct {
	TeacherID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Version   int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (TeacherWalletModel) TableName() string { return "teacher_wallets" }

type PayoutRepositoryImpl struct {
	db *gorm.DB
}

// NewPayoutRepository creates a new GORM-backed payout repository.
func NewPayoutRepository(db *gorm.DB) *PayoutRepositoryImpl {
	return &PayoutRepositoryImpl{db: db}
}

// FindByID retrieves a payout by its unique identifier.
func (r *PayoutRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	var model PayoutModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFound(err, "Payout", id)
	}
	return payoutToDomain(&model), nil
}

// FindByIDForUpdate retrieves a payout and locks its row for the rest of the transaction.
func (r *PayoutRepositoryImpl) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	var model PayoutModel
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFound(err, "Payout", id)
	}
	return payoutToDomain(&model), nil
}

// Save persists a new payout.
func (r *PayoutRepositoryImpl) Save(ctx context.Context, p *payout.Payout) error {
	return r.db.WithContext(ctx).Create(payoutToModel(p)).Error
}

// Update persists a payout status change with optimistic locking.
func (r *PayoutRepositoryImpl) Update(ctx context.Context, p *payout.Payout) error {
	model := payoutToModel(p)
	result := r.db.WithContext(ctx).
		Model(&PayoutModel{}).
		Where("id = ? AND version = ?", model.ID, p.Version()-1).
		Select("status", "reference", "sent_at", "cancelled_at", "version", "updated_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("payout was modified by another transaction")
	}
	return nil
}

// SumCommitted totals the teacher's pending and sent payouts.
func (r *PayoutRepositoryImpl) SumCommitted(ctx context.Context, teacherID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&PayoutModel{}).
		Where("teacher_id = ? AND status IN ?", teacherID, []string{string(payout.StatusPending), string(payout.StatusSent)}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	return total, err
}

// ListByTeacher retrieves a teacher's payouts, newest first.
func (r *PayoutRepositoryImpl) ListByTeacher(ctx context.Context, teacherID uuid.UUID, page, limit int) ([]*payout.Payout, int64, error) {
	return r.list(r.db.WithContext(ctx).Model(&PayoutModel{}).Where("teacher_id = ?", teacherID), page, limit)
}

// ListAll retrieves payouts with pagination, optionally filtered by status (admin).
func (r *PayoutRepositoryImpl) ListAll(ctx context.Context, status payout.Status, page, limit int) ([]*payout.Payout, int64, error) {
	q := r.db.WithContext(ctx).Model(&PayoutModel{})
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	return r.list(q, page, limit)
}

func (r *PayoutRepositoryImpl) list(q *gorm.DB, page, limit int) ([]*payout.Payout, int64, error) {
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []PayoutModel
	if err := q.Order("created_at DESC").Offset(offset(page, limit)).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	out := make([]*payout.Payout, len(models))
	for i := range models {
		out[i] = payoutToDomain(&models[i])
	}
	return out, total, nil
}

// WalletVersion returns the teacher's wallet version, zero when no payout was ever taken.
func (r *PayoutRepositoryImpl) WalletVersion(ctx context.Context, teacherID uuid.UUID) (int64, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&TeacherWalletModel{TeacherID: teacherID, Version: 0, UpdatedAt: time.Now().UTC()}).Error; err != nil {
		return 0, err
	}
	var wallet TeacherWalletModel
	if err := db.Where("teacher_id = ?", teacherID).First(&wallet).Error; err != nil {
		return 0, err
	}
	return wallet.Version, nil
}

// BumpWalletVersion advances the wallet version if it still equals expected.
func (r *PayoutRepositoryImpl) BumpWalletVersion(ctx context.Context, teacherID uuid.UUID, expected int64) error {
	result := r.db.WithContext(ctx).
		Model(&TeacherWalletModel{}).
		Where("teacher_id = ? AND version = ?", teacherID, expected).
		Updates(map[string]interface{}{
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("wallet changed concurrently, retry the payout request")
	}
	return nil
}

func payoutToDomain(m *PayoutModel) *payout.Payout {
	return payout.Reconstitute(
		m.ID, m.TeacherID,
		m.AmountCents,
		m.Currency,
		payout.Status(m.Status),
		m.Reference,
		m.SentAt, m.CancelledAt,
		m.Version,
		m.CreatedAt, m.UpdatedAt,
	)
}

func payoutToModel(p *payout.Payout) *PayoutModel {
	return &PayoutModel{
		ID:          p.ID(),
		TeacherID:   p.TeacherID(),
		AmountCents: p.AmountCents(),
		Currency:    p.Currency(),
		Status:      string(p.Status()),
		Reference:   p.Reference(),
		SentAt:      p.SentAt(),
		CancelledAt: p.CancelledAt(),
		Version:     p.Version(),
		CreatedAt:   p.CreatedAt(),
		UpdatedAt:   p.UpdatedAt(),
	}
}
