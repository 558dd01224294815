package dispute

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/pkg/domain"
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Resolution is the outcome an admin records when closing a dispute.
type Resolution string

const (
	ResolutionStudentFavored Resolution = "student_favored"
	ResolutionTeacherFavored Resolution = "teacher_favored"
	ResolutionSettled        Resolution = "settled"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionStudentFavored, ResolutionTeacherFavored, ResolutionSettled:
		return true
	}
	return false
}

// Dispute is a complaint raised by a booking party.
type Dispute struct {
	id           uuid.UUID
	bookingID    uuid.UUID
	raisedBy     uuid.UUID
	raisedByRole string
	reason       string
	status       Status
	resolution   Resolution
	amountCents  *int64
	notes        string
	resolvedBy   *uuid.UUID
	resolvedAt   *time.Time
	adjustmentID *uuid.UUID
	version      int64
	createdAt    time.Time
	updatedAt    time.Time
}

// Open creates a dispute in the open state.
func Open(bookingID, raisedBy uuid.UUID, raisedByRole, reason string, now time.Time) (*Dispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("reason", "is required")
	}
	now = now.UTC()
	return &Dispute{
		id:           uuid.New(),
		bookingID:    bookingID,
		raisedBy:     raisedBy,
		raisedByRole: raisedByRole,
		reason:       reason,
		status:       StatusOpen,
		version:      1,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

func (d *Dispute) ID() uuid.UUID            { return d.id }
func (d *Dispute) BookingID() uuid.UUID     { return d.bookingID }
func (d *Dispute) RaisedBy() uuid.UUID      { return d.raisedBy }
func (d *Dispute) RaisedByRole() string     { return d.raisedByRole }
func (d *Dispute) Reason() string           { return d.reason }
func (d *Dispute) Status() Status           { return d.status }
func (d *Dispute) Resolution() Resolution   { return d.resolution }
func (d *Dispute) AmountCents() *int64      { return d.amountCents }
func (d *Dispute) Notes() string            { return d.notes }
func (d *Dispute) ResolvedBy() *uuid.UUID   { return d.resolvedBy }
func (d *Dispute) ResolvedAt() *time.Time   { return d.resolvedAt }
func (d *Dispute) AdjustmentID() *uuid.UUID { return d.adjustmentID }
func (d *Dispute) Version() int64           { return d.version }
func (d *Dispute) CreatedAt() time.Time     { return d.createdAt }
func (d *Dispute) UpdatedAt() time.Time     { return d.updatedAt }

// ValidateResolution checks resolve input without mutating the dispute.
func (d *Dispute) ValidateResolution(resolution Resolution, amountCents *int64) error {
	if d.status != StatusOpen {
		return domain.NewInvalidTransitionError("dispute", string(d.status), string(StatusResolved))
	}
	if !resolution.Valid() {
		return domain.NewValidationError("resolution", "must be student_favored, teacher_favored or settled")
	}
	if amountCents != nil && *amountCents <= 0 {
		return domain.NewValidationError("amount", "must be greater than zero when present")
	}
	return nil
}

// Resolve moves open → resolved and sets resolved_at. adjustmentID links the refund made for amountCents.
func (d *Dispute) Resolve(resolution Resolution, amountCents *int64, notes string, by uuid.UUID, adjustmentID *uuid.UUID, now time.Time) error {
	if err := d.ValidateResolution(resolution, amountCents); err != nil {
		return err
	}
	now = now.UTC()
	d.status = StatusResolved
	d.resolution = resolution
	d.amountCents = amountCents
	d.notes = strings.TrimSpace(notes)
	d.resolvedBy = &by
	d.resolvedAt = &now
	d.adjustmentID = adjustmentID
	d.updatedAt = now
	return nil
}

// CheckDeletable allows deletion only by the owner while the dispute is open.
func (d *Dispute) CheckDeletable(actorID uuid.UUID) error {
	if d.raisedBy != actorID {
		return domain.NewForbiddenError("only the dispute owner may delete it")
	}
	if d.status != StatusOpen {
		return domain.NewInvalidStateError(string(d.status), "deleted")
	}
	return nil
}

func (d *Dispute) IncrementVersion() {
	d.version++
}

// Reconstitute rebuilds a Dispute from persisted data.
func Reconstitute(
	id, bookingID, raisedBy uuid.UUID,
	raisedByRole, reason string,
	status Status,
	resolution Resolution,
	amountCents *int64,
	notes string,
	resolvedBy *uuid.UUID,
	resolvedAt *time.Time,
	adjustmentID *uuid.UUID,
	version int64,
	createdAt, updatedAt time.Time,
) *Dispute {
	return &Dispute{
		id:           id,
		bookingID:    bookingID,
		raisedBy:     raisedBy,
		raisedByRole: raisedByRole,
		reason:       reason,
		status:       status,
		resolution:   resolution,
		amountCents:  amountCents,
		notes:        notes,
		resolvedBy:   resolvedBy,
		resolvedAt:   resolvedAt,
		adjustmentID: adjustmentID,
		version:      version,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}
