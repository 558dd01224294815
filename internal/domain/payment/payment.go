package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/pkg/domain"
)

// Status represents the state of a payment attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// TargetType is what a payment pays for.
type TargetType string

const (
	TargetBooking TargetType = "booking"
	TargetCourse  TargetType = "course"
)

type Target struct {
	Type TargetType `json:"type"`
	ID   uuid.UUID  `json:"id"`
}

func (t Target) Validate() error {
	if t.Type != TargetBooking && t.Type != TargetCourse {
		return domain.NewValidationError("target.type", "must be booking or course")
	}
	if t.ID == uuid.Nil {
		return domain.NewValidationError("target.id", "is required")
	}
	return nil
}

// Payment is the aggregate root for one charge attempt.
type Payment struct {
	id                   uuid.UUID
	target               Target
	bookingID            uuid.UUID
	payerID              uuid.UUID
	amountCents          int64
	currency             string
	paymentMethod        string
	status               Status
	reconciled           bool
	reconciledAt         *time.Time
	reconciledBy         *uuid.UUID
	gatewayTransactionID string
	gatewayMeta          GatewayMeta
	failureReason        string
	completedAt          *time.Time
	version              int64
	createdAt            time.Time
	updatedAt            time.Time
}

// NewPayment records a pending attempt. bookingID is the booking the charge settles:
// the target itself for private lessons, the payer's seat booking for course purchases.
func NewPayment(payerID uuid.UUID, target Target, bookingID uuid.UUID, amountCents int64, currency, paymentMethod string, now time.Time) (*Payment, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if bookingID == uuid.Nil {
		return nil, domain.NewValidationError("booking_id", "is required")
	}
	if target.Type == TargetBooking && target.ID != bookingID {
		return nil, domain.NewValidationError("booking_id", "must equal the target booking")
	}
	if amountCents <= 0 {
		return nil, domain.NewValidationError("amount", "must be greater than zero")
	}
	if currency == "" {
		return nil, domain.NewValidationError("currency", "is required")
	}
	now = now.UTC()
	return &Payment{
		id:            uuid.New(),
		target:        target,
		bookingID:     bookingID,
		payerID:       payerID,
		amountCents:   amountCents,
		currency:      currency,
		paymentMethod: paymentMethod,
		status:        StatusPending,
		gatewayMeta:   GatewayMeta{},
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

func (p *Payment) ID() uuid.UUID                { return p.id }
func (p *Payment) Target() Target               { return p.target }
func (p *Payment) PayerID() uuid.UUID           { return p.payerID }
func (p *Payment) AmountCents() int64           { return p.amountCents }
func (p *Payment) Currency() string             { return p.currency }
func (p *Payment) PaymentMethod() string        { return p.paymentMethod }
func (p *Payment) Status() Status               { return p.status }
func (p *Payment) Reconciled() bool             { return p.reconciled }
func (p *Payment) ReconciledAt() *time.Time     { return p.reconciledAt }
func (p *Payment) ReconciledBy() *uuid.UUID     { return p.reconciledBy }
func (p *Payment) GatewayTransactionID() string { return p.gatewayTransactionID }
func (p *Payment) GatewayMeta() GatewayMeta     { return p.gatewayMeta.Clone() }
func (p *Payment) FailureReason() string        { return p.failureReason }
func (p *Payment) CompletedAt() *time.Time      { return p.completedAt }
func (p *Payment) Version() int64               { return p.version }
func (p *Payment) CreatedAt() time.Time         { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time         { return p.updatedAt }

// BookingID is the booking confirmed when this payment completes.
func (p *Payment) BookingID() uuid.UUID { return p.bookingID }

// IsOpen reports whether the attempt still blocks a new attempt for the same target.
func (p *Payment) IsOpen() bool {
	return p.status == StatusPending || p.status == StatusCompleted
}

// MarkCompleted moves pending → completed. It returns false without error when the payment
// is already completed, so redelivered settlements are no-ops.
func (p *Payment) MarkCompleted(gatewayRef string, meta GatewayMeta, now time.Time) (bool, error) {
	switch p.status {
	case StatusCompleted:
		return false, nil
	case StatusPending:
	default:
		return false, domain.NewInvalidStateError(string(p.status), string(StatusCompleted))
	}
	if gatewayRef == "" {
		return false, domain.NewValidationError("gateway_ref", "is required")
	}
	now = now.UTC()
	p.status = StatusCompleted
	p.gatewayTransactionID = gatewayRef
	p.gatewayMeta = meta.Clone()
	p.completedAt = &now
	p.updatedAt = now
	return true, nil
}

// MarkFailed moves pending → failed. A repeated failure is a no-op.
func (p *Payment) MarkFailed(reason string, now time.Time) (bool, error) {
	switch p.status {
	case StatusFailed:
		return false, nil
	case StatusPending:
	default:
		return false, domain.NewInvalidStateError(string(p.status), string(StatusFailed))
	}
	p.status = StatusFailed
	p.failureReason = reason
	p.updatedAt = now.UTC()
	return true, nil
}

// MarkRefunded moves completed → refunded once adjustments have returned the full amount.
func (p *Payment) MarkRefunded(now time.Time) error {
	if p.status != StatusCompleted {
		return domain.NewInvalidStateError(string(p.status), string(StatusRefunded))
	}
	p.status = StatusRefunded
	p.updatedAt = now.UTC()
	return nil
}

// Reconcile flags the payment as checked against the gateway. Status is untouched.
func (p *Payment) Reconcile(by uuid.UUID, now time.Time) {
	now = now.UTC()
	p.reconciled = true
	p.reconciledAt = &now
	p.reconciledBy = &by
	p.updatedAt = now
}

// IncrementVersion bumps the version for optimistic locking.
func (p *Payment) IncrementVersion() {
	p.version++
}

// Reconstitute rebuilds a Payment from persisted data.
func Reconstitute(
	id uuid.UUID,
	target Target,
	bookingID uuid.UUID,
	payerID uuid.UUID,
	amountCents int64,
	currency, paymentMethod string,
	status Status,
	reconciled bool,
	reconciledAt *time.Time,
	reconciledBy *uuid.UUID,
	gatewayTransactionID string,
	gatewayMeta GatewayMeta,
	failureReason string,
	completedAt *time.Time,
	version int64,
	createdAt, updatedAt time.Time,
) *Payment {
	if gatewayMeta == nil {
		gatewayMeta = GatewayMeta{}
	}
	return &Payment{
		id:                   id,
		target:               target,
		bookingID:            bookingID,
		payerID:              payerID,
		amountCents:          amountCents,
		currency:             currency,
		paymentMethod:        paymentMethod,
		status:               status,
		reconciled:           reconciled,
		reconciledAt:         reconciledAt,
		reconciledBy:         reconciledBy,
		gatewayTransactionID: gatewayTransactionID,
		gatewayMeta:          gatewayMeta,
		failureReason:        failureReason,
		completedAt:          completedAt,
		version:              version,
		createdAt:            createdAt,
		updatedAt:            updatedAt,
	}
}
