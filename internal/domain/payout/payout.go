package payout

import (
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/pkg/domain"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusCancelled Status = "cancelled"
)

// Payout is a teacher's withdrawal request against the wallet balance.
type Payout struct {
	id          uuid.UUID
	teacherID   uuid.UUID
	amountCents int64
	currency    string
	status      Status
	reference   string
	sentAt      *time.Time
	cancelledAt *time.Time
	version     int64
	createdAt   time.Time
	updatedAt   time.Time
}

// NewPayout creates a pending payout. Sufficiency is checked by the caller against a fresh balance.
func NewPayout(teacherID uuid.UUID, amountCents int64, currency string, now time.Time) (*Payout, error) {
	if amountCents <= 0 {
		return nil, domain.NewValidationError("amount", "must be greater than zero")
	}
	now = now.UTC()
	return &Payout{
		id:          uuid.New(),
		teacherID:   teacherID,
		amountCents: amountCents,
		currency:    currency,
		status:      StatusPending,
		version:     1,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

func (p *Payout) ID() uuid.UUID           { return p.id }
func (p *Payout) TeacherID() uuid.UUID    { return p.teacherID }
func (p *Payout) AmountCents() int64      { return p.amountCents }
func (p *Payout) Currency() string        { return p.currency }
func (p *Payout) Status() Status          { return p.status }
func (p *Payout) Reference() string       { return p.reference }
func (p *Payout) SentAt() *time.Time      { return p.sentAt }
func (p *Payout) CancelledAt() *time.Time { return p.cancelledAt }
func (p *Payout) Version() int64          { return p.version }
func (p *Payout) CreatedAt() time.Time    { return p.createdAt }
func (p *Payout) UpdatedAt() time.Time    { return p.updatedAt }

// MarkSent moves pending → sent. Repeating it on a sent payout is a no-op.
func (p *Payout) MarkSent(reference string, now time.Time) (bool, error) {
	switch p.status {
	case StatusSent:
		return false, nil
	case StatusPending:
	default:
		return false, domain.NewInvalidTransitionError("payout", string(p.status), string(StatusSent))
	}
	now = now.UTC()
	p.status = StatusSent
	p.reference = reference
	p.sentAt = &now
	p.updatedAt = now
	return true, nil
}

// Cancel moves pending → cancelled.
func (p *Payout) Cancel(now time.Time) error {
	if p.status != StatusPending {
		return domain.NewInvalidTransitionError("payout", string(p.status), string(StatusCancelled))
	}
	now = now.UTC()
	p.status = StatusCancelled
	p.cancelledAt = &now
	p.updatedAt = now
	return nil
}

func (p *Payout) IncrementVersion() {
	p.version++
}

// Reconstitute rebuilds a Payout from persisted data.
func Reconstitute(
	id, teacherID uuid.UUID,
	amountCents int64,
	currency string,
	status Status,
	reference string,
	sentAt, cancelledAt *time.Time,
	version int64,
	createdAt, updatedAt time.Time,
) *Payout {
	return &Payout{
		id:          id,
		teacherID:   teacherID,
		amountCents: amountCents,
		currency:    currency,
		status:      status,
		reference:   reference,
		sentAt:      sentAt,
		cancelledAt: cancelledAt,
		version:     version,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}
