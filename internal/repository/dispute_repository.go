package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/dispute"
	"github.com/tutorly/service-learning/pkg/domain"
	"gorm.io/gorm"
)

type DisputeModel struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BookingID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	RaisedBy     uuid.UUID  `gorm:"type:uuid;not null;index"`
	RaisedByRole string     `gorm:"type:varchar(20);not null"`
	Reason       string     `gorm:"type:text;not null"`
	Status       string     `gorm:"type:varchar(20);not null;index"`
	Resolution   string     `gorm:"type:varchar(30)"`
	AmountCents  *int64
	Notes        string     `gorm:"type:text"`
	ResolvedBy   *uuid.UUID `gorm:"type:uuid"`
	ResolvedAt   *time.Time
	AdjustmentID *uuid.UUID `gorm:"type:uuid"`
	Version      int64      `gorm:"not null;default:1"`
	CreatedAt    time.Time  `gorm:"not null"`
	UpdatedAt    time.Time  `gorm:"not null"`
}

func (DisputeModel) TableName() string { return "disputes" }

type DisputeRepositoryImpl struct {
	db *gorm.DB
}

// NewDisputeRepository creates a new GORM-backed dispute repository.
func NewDisputeRepository(db *gorm.DB) *DisputeRepositoryImpl {
	return &DisputeRepositoryImpl{db: db}
}

// FindByID retrieves a dispute by its unique identifier.
func (r *DisputeRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*dispute.Dispute, error) {
	var model DisputeModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFound(err, "Dispute", id)
	}
	return disputeToDomain(&model), nil
}

// FindByIDForUpdate retrieves a dispute and locks its row for the rest of the transaction.
func (r *DisputeRepositoryImpl) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*dispute.Dispute, error) {
	var model DisputeModel
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFound(err, "Dispute", id)
	}
	return disputeToDomain(&model), nil
}

// Save persists a new dispute.
func (r *DisputeRepositoryImpl) Save(ctx context.Context, d *dispute.Dispute) error {
	return r.db.WithContext(ctx).Create(disputeToModel(d)).Error
}

// Update persists a dispute resolution with optimistic locking.
func (r *DisputeRepositoryImpl) Update(ctx context.Context, d *dispute.Dispute) error {
	model := disputeToModel(d)
	result := r.db.WithContext(ctx).
		Model(&DisputeModel{}).
		Where("id = ? AND version = ?", model.ID, d.Version()-1).
		Select("status", "resolution", "amount_cents", "notes", "resolved_by", "resolved_at",
			"adjustment_id", "version", "updated_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("dispute was modified by another transaction")
	}
	return nil
}

// Delete removes a dispute that is still open and unchanged since it was loaded.
func (r *DisputeRepositoryImpl) Delete(ctx context.Context, d *dispute.Dispute) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND version = ? AND status = ?", d.ID(), d.Version(), string(dispute.StatusOpen)).
		Delete(&DisputeModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("dispute was modified by another transaction")
	}
	return nil
}

// ListAll retrieves disputes with pagination, optionally filtered by status (admin).
func (r *DisputeRepositoryImpl) ListAll(ctx context.Context, status dispute.Status, page, limit int) ([]*dispute.Dispute, int64, error) {
	q := r.db.WithContext(ctx).Model(&DisputeModel{})
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []DisputeModel
	if err := q.Order("created_at DESC").Offset(offset(page, limit)).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	out := make([]*dispute.Dispute, len(models))
	for i := range models {
		out[i] = disputeToDomain(&models[i])
	}
	return out, total, nil
}

func disputeToDomain(m *DisputeModel) *dispute.Dispute {
	return dispute.Reconstitute(
		m.ID, m.BookingID, m.RaisedBy,
		m.RaisedByRole, m.Reason,
		dispute.Status(m.Status),
		dispute.Resolution(m.Resolution),
		m.AmountCents,
		m.Notes,
		m.ResolvedBy,
		m.ResolvedAt,
		m.AdjustmentID,
		m.Version,
		m.CreatedAt, m.UpdatedAt,
	)
}

func disputeToModel(d *dispute.Dispute) *DisputeModel {
	return &DisputeModel{
		ID:           d.ID(),
		BookingID:    d.BookingID(),
		RaisedBy:     d.RaisedBy(),
		RaisedByRole: d.RaisedByRole(),
		Reason:       d.Reason(),
		Status:       string(d.Status()),
		Resolution:   string(d.Resolution()),
		AmountCents:  d.AmountCents(),
		Notes:        d.Notes(),
		ResolvedBy:   d.ResolvedBy(),
		ResolvedAt:   d.ResolvedAt(),
		AdjustmentID: d.AdjustmentID(),
		Version:      d.Version(),
		CreatedAt:    d.CreatedAt(),
		UpdatedAt:    d.UpdatedAt(),
	}
}
