package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/pkg/domain"
)

// AdjustmentKind says which path returned money to the payer.
type AdjustmentKind string

const (
	AdjustmentBookingRefund AdjustmentKind = "booking_refund"
	AdjustmentDisputeRefund AdjustmentKind = "dispute_refund"
)

// AdjustmentStatus tracks a refund from reservation to the gateway's answer.
type AdjustmentStatus string

const (
	// AdjustmentPending is reserved against the refundable amount but not yet sent to the gateway.
	AdjustmentPending AdjustmentStatus = "pending"
	AdjustmentIssued  AdjustmentStatus = "issued"
	// AdjustmentFailed was refused by the gateway and no longer counts against the payment.
	AdjustmentFailed AdjustmentStatus = "failed"
)

// Adjustment is a record of money returned against a completed payment. Once issued it is never changed.
type Adjustment struct {
	ID              uuid.UUID
	PaymentID       uuid.UUID
	Kind            AdjustmentKind
	Status          AdjustmentStatus
	AmountCents     int64
	Reference       uuid.UUID
	GatewayRefundID string
	CreatedBy       uuid.UUID
	CreatedAt       time.Time
}

// NewAdjustment reserves a pending refund, checking the amount against what remains refundable.
func NewAdjustment(p *Payment, kind AdjustmentKind, amountCents, alreadyAdjusted int64, reference, createdBy uuid.UUID, now time.Time) (*Adjustment, error) {
	if p.Status() != StatusCompleted {
		return nil, domain.NewInvalidStateError(string(p.Status()), "adjusted")
	}
	if amountCents <= 0 {
		return nil, domain.NewValidationError("amount", "must be greater than zero")
	}
	if remaining := Refundable(p.AmountCents(), alreadyAdjusted); amountCents > remaining {
		return nil, domain.NewValidationError("amount", "exceeds refundable amount")
	}
	return &Adjustment{
		ID:          uuid.New(),
		PaymentID:   p.ID(),
		Kind:        kind,
		Status:      AdjustmentPending,
		AmountCents: amountCents,
		Reference:   reference,
		CreatedBy:   createdBy,
		CreatedAt:   now.UTC(),
	}, nil
}

// MarkIssued records the gateway's refund id.
func (a *Adjustment) MarkIssued(refundID string) error {
	if a.Status != AdjustmentPending {
		return domain.NewInvalidStateError(string(a.Status), string(AdjustmentIssued))
	}
	if refundID == "" {
		return domain.NewValidationError("gateway_refund_id", "is required")
	}
	a.Status = AdjustmentIssued
	a.GatewayRefundID = refundID
	return nil
}

// MarkFailed releases a pending reservation.
func (a *Adjustment) MarkFailed() error {
	if a.Status != AdjustmentPending {
		return domain.NewInvalidStateError(string(a.Status), string(AdjustmentFailed))
	}
	a.Status = AdjustmentFailed
	return nil
}

func (a *Adjustment) Issued() bool { return a.Status == AdjustmentIssued }

// Refundable is what can still be returned on a payment.
func Refundable(amountCents, adjustedCents int64) int64 {
	if r := amountCents - adjustedCents; r > 0 {
		return r
	}
	return 0
}
