package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/payment"
	"github.com/tutorly/service-learning/pkg/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentModel is the GORM persistence model for the payments table.
type PaymentModel struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TargetType           string     `gorm:"type:varchar(20);not null;index:idx_payments_target,priority:1"`
	TargetID             uuid.UUID  `gorm:"type:uuid;not null;index:idx_payments_target,priority:2"`
	BookingID            uuid.UUID  `gorm:"type:uuid;not null;index"`
	PayerID              uuid.UUID  `gorm:"type:uuid;not null;index"`
	AmountCents          int64      `gorm:"not null"`
	Currency             string     `gorm:"type:varchar(3);not null"`
	PaymentMethod        string     `gorm:"type:varchar(100)"`
	Status               string     `gorm:"type:varchar(20);not null;default:'pending';index"`
	Reconciled           bool       `gorm:"not null;default:false"`
	ReconciledAt         *time.Time
	ReconciledBy         *uuid.UUID `gorm:"type:uuid"`
	GatewayTransactionID string     `gorm:"type:varchar(255)"`
	GatewayMeta          datatypes.JSONMap
	FailureReason        string `gorm:"type:text"`
	CompletedAt          *time.Time
	Version              int64     `gorm:"not null;default:1"`
	CreatedAt            time.Time `gorm:"not null"`
	UpdatedAt            time.Time `gorm:"not null"`
}

func (PaymentModel) TableName() string { return "payments" }

// PaymentAdjustmentModel records money returned against a completed payment.
type PaymentAdjustmentModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	PaymentID       uuid.UUID `gorm:"type:uuid;not null;index"`
	Kind            string    `gorm:"type:varchar(30);not null"`
	Status          string    `gorm:"type:varchar(20);not null;default:'issued'"`
	AmountCents     int64     `gorm:"not null"`
	Reference       uuid.UUID `gorm:"type:uuid;not null"`
	GatewayRefundID string    `gorm:"type:varchar(255)"`
	CreatedBy       uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (PaymentAdjustmentModel) TableName() string { return "payment_adjustments" }

// PaymentRepositoryImpl is the GORM-based implementation of payment.Repository.
type PaymentRepositoryImpl struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new GORM-backed payment repository.
func NewPaymentRepository(db *gorm.DB) *PaymentRepositoryImpl {
	return &PaymentRepositoryImpl{db: db}
}

// FindByID retrieves a payment by its unique identifier.
func (r *PaymentRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var model PaymentModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFound(err, "Payment", id)
	}
	return paymentToDomain(&model), nil
}

// FindByIDForUpdate retrieves a payment and locks its row for the rest of the transaction.
func (r *PaymentRepositoryImpl) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var model PaymentModel
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFound(err, "Payment", id)
	}
	return paymentToDomain(&model), nil
}

// FindOpenByBooking retrieves the newest pending or completed payment for a booking.
func (r *PaymentRepositoryImpl) FindOpenByBooking(ctx context.Context, bookingID uuid.UUID) (*payment.Payment, error) {
	var model PaymentModel
	err := r.db.WithContext(ctx).
		Where("booking_id = ? AND status IN ?", bookingID,
			[]string{string(payment.StatusPending), string(payment.StatusCompleted)}).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		return nil, notFound(err, "Open payment for booking", bookingID)
	}
	return paymentToDomain(&model), nil
}

// ListByBooking retrieves every attempt for a booking, oldest first.
func (r *PaymentRepositoryImpl) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*payment.Payment, error) {
	var models []PaymentModel
	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return paymentsToDomain(models), nil
}

// ListPendingCreatedBefore retrieves pending attempts created before cutoff, oldest first.
func (r *PaymentRepositoryImpl) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*payment.Payment, error) {
	var models []PaymentModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(payment.StatusPending), cutoff).
		Order("created_at").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return paymentsToDomain(models), nil
}

// Save persists a new payment.
func (r *PaymentRepositoryImpl) Save(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Create(paymentToModel(p)).Error
}

// Update persists changes to an existing payment with optimistic locking.
// Amount, target and payer are never rewritten.
func (r *PaymentRepositoryImpl) Update(ctx context.Context, p *payment.Payment) error {
	model := paymentToModel(p)
	result := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("id = ? AND version = ?", model.ID, p.Version()-1).
		Select("status", "reconciled", "reconciled_at", "reconciled_by", "gateway_transaction_id",
			"gateway_meta", "failure_reason", "completed_at", "version", "updated_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("payment was modified by another transaction")
	}
	return nil
}

// ListAll retrieves all payments with pagination (admin).
func (r *PaymentRepositoryImpl) ListAll(ctx context.Context, page, limit int) ([]*payment.Payment, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&PaymentModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []PaymentModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Offset(offset(page, limit)).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return paymentsToDomain(models), total, nil
}

// GetStats returns completed revenue and payment counts by status (admin).
func (r *PaymentRepositoryImpl) GetStats(ctx context.Context) (int64, map[string]int64, error) {
	var revenue int64
	if err := r.db.WithContext(ctx).Model(&PaymentModel{}).
		Where("status = ?", string(payment.StatusCompleted)).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&revenue).Error; err != nil {
		return 0, nil, err
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&PaymentModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return 0, nil, err
	}
	counts := make(map[string]int64, len(results))
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return revenue, counts, nil
}

// SaveAdjustment persists a new adjustment.
func (r *PaymentRepositoryImpl) SaveAdjustment(ctx context.Context, a *payment.Adjustment) error {
	return r.db.WithContext(ctx).Create(adjustmentToModel(a)).Error
}

// UpdateAdjustment persists an adjustment's status and gateway refund id. Only pending
// adjustments change, so a concurrent resolution of the same reservation is a conflict.
func (r *PaymentRepositoryImpl) UpdateAdjustment(ctx context.Context, a *payment.Adjustment) error {
	result := r.db.WithContext(ctx).
		Model(&PaymentAdjustmentModel{}).
		Where("id = ? AND status = ?", a.ID, string(payment.AdjustmentPending)).
		Updates(map[string]interface{}{
			"status":            string(a.Status),
			"gateway_refund_id": a.GatewayRefundID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("adjustment is no longer pending")
	}
	return nil
}

// FindAdjustment retrieves the live adjustment of kind recorded for reference.
func (r *PaymentRepositoryImpl) FindAdjustment(ctx context.Context, paymentID uuid.UUID, kind payment.AdjustmentKind, reference uuid.UUID) (*payment.Adjustment, error) {
	var model PaymentAdjustmentModel
	err := r.db.WithContext(ctx).
		Where("payment_id = ? AND kind = ? AND reference = ? AND status <> ?",
			paymentID, string(kind), reference, string(payment.AdjustmentFailed)).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		return nil, notFound(err, "Adjustment for reference", reference)
	}
	return adjustmentToDomain(&model), nil
}

// SumAdjustments totals pending and issued adjustments on a payment.
func (r *PaymentRepositoryImpl) SumAdjustments(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&PaymentAdjustmentModel{}).
		Where("payment_id = ? AND status <> ?", paymentID, string(payment.AdjustmentFailed)).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	return total, err
}

// ListAdjustments retrieves every adjustment on a payment, oldest first.
func (r *PaymentRepositoryImpl) ListAdjustments(ctx context.Context, paymentID uuid.UUID) ([]*payment.Adjustment, error) {
	var models []PaymentAdjustmentModel
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*payment.Adjustment, len(models))
	for i := range models {
		out[i] = adjustmentToDomain(&models[i])
	}
	return out, nil
}

func adjustmentToModel(a *payment.Adjustment) *PaymentAdjustmentModel {
	return &PaymentAdjustmentModel{
		ID:              a.ID,
		PaymentID:       a.PaymentID,
		Kind:            string(a.Kind),
		Status:          string(a.Status),
		AmountCents:     a.AmountCents,
		Reference:       a.Reference,
		GatewayRefundID: a.GatewayRefundID,
		CreatedBy:       a.CreatedBy,
		CreatedAt:       a.CreatedAt,
	}
}

func adjustmentToDomain(m *PaymentAdjustmentModel) *payment.Adjustment {
	return &payment.Adjustment{
		ID:              m.ID,
		PaymentID:       m.PaymentID,
		Kind:            payment.AdjustmentKind(m.Kind),
		Status:          payment.AdjustmentStatus(m.Status),
		AmountCents:     m.AmountCents,
		Reference:       m.Reference,
		GatewayRefundID: m.GatewayRefundID,
		CreatedBy:       m.CreatedBy,
		CreatedAt:       m.CreatedAt,
	}
}

func paymentsToDomain(models []PaymentModel) []*payment.Payment {
	out := make([]*payment.Payment, len(models))
	for i := range models {
		out[i] = paymentToDomain(&models[i])
	}
	return out
}

// paymentToDomain maps a PaymentModel to the domain Payment aggregate.
func paymentToDomain(m *PaymentModel) *payment.Payment {
	meta := make(payment.GatewayMeta, len(m.GatewayMeta))
	for k, v := range m.GatewayMeta {
		meta[payment.MetaKey(k)] = fmt.Sprint(v)
	}
	return payment.Reconstitute(
		m.ID,
		payment.Target{Type: payment.TargetType(m.TargetType), ID: m.TargetID},
		m.BookingID,
		m.PayerID,
		m.AmountCents,
		m.Currency, m.PaymentMethod,
		payment.Status(m.Status),
		m.Reconciled,
		m.ReconciledAt,
		m.ReconciledBy,
		m.GatewayTransactionID,
		meta,
		m.FailureReason,
		m.CompletedAt,
		m.Version,
		m.CreatedAt, m.UpdatedAt,
	)
}

// paymentToModel maps a domain Payment aggregate to a PaymentModel for persistence.
func paymentToModel(p *payment.Payment) *PaymentModel {
	meta := datatypes.JSONMap{}
	for k, v := range p.GatewayMeta() {
		meta[string(k)] = v
	}
	return &PaymentModel{
		ID:                   p.ID(),
		TargetType:           string(p.Target().Type),
		TargetID:             p.Target().ID,
		BookingID:            p.BookingID(),
		PayerID:              p.PayerID(),
		AmountCents:          p.AmountCents(),
		Currency:             p.Currency(),
		PaymentMethod:        p.PaymentMethod(),
		Status:               string(p.Status()),
		Reconciled:           p.Reconciled(),
		ReconciledAt:         p.ReconciledAt(),
		ReconciledBy:         p.ReconciledBy(),
		GatewayTransactionID: p.GatewayTransactionID(),
		GatewayMeta:          meta,
		FailureReason:        p.FailureReason(),
		CompletedAt:          p.CompletedAt(),
		Version:              p.Version(),
		CreatedAt:            p.CreatedAt(),
		UpdatedAt:            p.UpdatedAt(),
	}
}
