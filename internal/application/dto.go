package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/booking"
	"github.com/tutorly/service-learning/internal/domain/catalog"
	"github.com/tutorly/service-learning/internal/domain/dispute"
	"github.com/tutorly/service-learning/internal/domain/payment"
	"github.com/tutorly/service-learning/internal/domain/payout"
	"github.com/tutorly/service-learning/internal/domain/session"
	"github.com/tutorly/service-learning/internal/domain/timeslot"
)

// SlotRequest is a requested time range in RFC 3339.
type SlotRequest struct {
	Start time.Time `json:"start" binding:"required"`
	End   time.Time `json:"end" binding:"required"`
}

func toSlots(reqs []SlotRequest) []timeslot.Slot {
	out := make([]timeslot.Slot, len(reqs))
	for i, r := range reqs {
		out[i] = timeslot.New(r.Start, r.End)
	}
	return out
}

type SlotDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func toSlotDTOs(slots []timeslot.Slot) []SlotDTO {
	out := make([]SlotDTO, len(slots))
	for i, s := range slots {
		out[i] = SlotDTO{Start: s.Start, End: s.End}
	}
	return out
}

type BookingDTO struct {
	ID                  uuid.UUID  `json:"id"`
	StudentID           uuid.UUID  `json:"student_id"`
	TeacherID           uuid.UUID  `json:"teacher_id"`
	CourseID            *uuid.UUID `json:"course_id,omitempty"`
	Status              string     `json:"status"`
	TotalCents          int64      `json:"total_cents"`
	PlatformFeeCents    int64      `json:"platform_fee_cents"`
	TeacherEarningCents int64      `json:"teacher_earning_cents"`
	Currency            string     `json:"currency"`
	Slots               []SlotDTO  `json:"slots"`
	ConfirmedAt         *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt          *time.Time `json:"refunded_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	Version             int64      `json:"version"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toBookingDTO(b *booking.Booking) BookingDTO {
	return BookingDTO{
		ID:                  b.ID(),
		StudentID:           b.StudentID(),
		TeacherID:           b.TeacherID(),
		CourseID:            b.CourseID(),
		Status:              string(b.Status()),
		TotalCents:          b.TotalCents(),
		PlatformFeeCents:    b.PlatformFeeCents(),
		TeacherEarningCents: b.TeacherEarningCents(),
		Currency:            b.Currency(),
		Slots:               toSlotDTOs(b.Slots()),
		ConfirmedAt:         b.ConfirmedAt(),
		CancelledAt:         b.CancelledAt(),
		RefundedAt:          b.RefundedAt(),
		CompletedAt:         b.CompletedAt(),
		Version:             b.Version(),
		CreatedAt:           b.CreatedAt(),
		UpdatedAt:           b.UpdatedAt(),
	}
}

type TransitionDTO struct {
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	ActorID   uuid.UUID `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

func toTransitionDTOs(ts []booking.Transition) []TransitionDTO {
	out := make([]TransitionDTO, len(ts))
	for i, t := range ts {
		out[i] = TransitionDTO{
			From:      string(t.From),
			To:        string(t.To),
			ActorID:   t.ActorID,
			ActorRole: t.ActorRole,
			Reason:    t.Reason,
			At:        t.At,
		}
	}
	return out
}

type PaymentDTO struct {
	ID                   uuid.UUID         `json:"id"`
	TargetType           string            `json:"target_type"`
	TargetID             uuid.UUID         `json:"target_id"`
	BookingID            uuid.UUID         `json:"booking_id"`
	PayerID              uuid.UUID         `json:"payer_id"`
	AmountCents          int64             `json:"amount_cents"`
	Currency             string            `json:"currency"`
	PaymentMethod        string            `json:"payment_method,omitempty"`
	Status               string            `json:"status"`
	Reconciled           bool              `json:"reconciled"`
	ReconciledAt         *time.Time        `json:"reconciled_at,omitempty"`
	GatewayTransactionID string            `json:"gateway_transaction_id,omitempty"`
	GatewayMeta          map[string]string `json:"gateway_meta,omitempty"`
	FailureReason        string            `json:"failure_reason,omitempty"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
	Adjustments          []AdjustmentDTO   `json:"adjustments,omitempty"`
	Version              int64             `json:"version"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

func toPaymentDTO(p *payment.Payment) PaymentDTO {
	return PaymentDTO{
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
		GatewayTransactionID: p.GatewayTransactionID(),
		GatewayMeta:          p.GatewayMeta().Strings(),
		FailureReason:        p.FailureReason(),
		CompletedAt:          p.CompletedAt(),
		Version:              p.Version(),
		CreatedAt:            p.CreatedAt(),
		UpdatedAt:            p.UpdatedAt(),
	}
}

type AdjustmentDTO struct {
	ID              uuid.UUID `json:"id"`
	Kind            string    `json:"kind"`
	Status          string    `json:"status"`
	AmountCents     int64     `json:"amount_cents"`
	Reference       uuid.UUID `json:"reference"`
	GatewayRefundID string    `json:"gateway_refund_id"`
	CreatedBy       uuid.UUID `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

func toAdjustmentDTO(a *payment.Adjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:              a.ID,
		Kind:            string(a.Kind),
		Status:          string(a.Status),
		AmountCents:     a.AmountCents,
		Reference:       a.Reference,
		GatewayRefundID: a.GatewayRefundID,
		CreatedBy:       a.CreatedBy,
		CreatedAt:       a.CreatedAt,
	}
}

type PaymentStatsDTO struct {
	CompletedRevenueCents int64            `json:"completed_revenue_cents"`
	CountByStatus         map[string]int64 `json:"count_by_status"`
}

type SessionDTO struct {
	ID                uuid.UUID  `json:"id"`
	BookingID         uuid.UUID  `json:"booking_id"`
	TeacherID         uuid.UUID  `json:"teacher_id"`
	SlotIndex         int        `json:"slot_index"`
	ScheduledStart    time.Time  `json:"scheduled_start"`
	ScheduledEnd      time.Time  `json:"scheduled_end"`
	MeetingID         string     `json:"meeting_id,omitempty"`
	JoinURL           string     `json:"join_url,omitempty"`
	HostURL           string     `json:"host_url,omitempty"`
	ProvisioningError string     `json:"provisioning_error,omitempty"`
	Status            string     `json:"status"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
}

// toSessionDTO hides the host link from everyone but the teacher and admins.
func toSessionDTO(s *session.Session, withHost bool) SessionDTO {
	m := s.Meeting()
	dto := SessionDTO{
		ID:                s.ID(),
		BookingID:         s.BookingID(),
		TeacherID:         s.TeacherID(),
		SlotIndex:         s.SlotIndex(),
		ScheduledStart:    s.ScheduledStart(),
		ScheduledEnd:      s.ScheduledEnd(),
		MeetingID:         m.MeetingID,
		JoinURL:           m.JoinURL,
		ProvisioningError: s.ProvisioningError(),
		Status:            string(s.Status()),
		StartedAt:         s.StartedAt(),
		EndedAt:           s.EndedAt(),
		CancelledAt:       s.CancelledAt(),
	}
	if withHost {
		dto.HostURL = m.HostURL
	}
	return dto
}

type DisputeDTO struct {
	ID           uuid.UUID  `json:"id"`
	BookingID    uuid.UUID  `json:"booking_id"`
	RaisedBy     uuid.UUID  `json:"raised_by"`
	RaisedByRole string     `json:"raised_by_role"`
	Reason       string     `json:"reason"`
	Status       string     `json:"status"`
	Resolution   string     `json:"resolution,omitempty"`
	AmountCents  *int64     `json:"amount_cents,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	ResolvedBy   *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	AdjustmentID *uuid.UUID `json:"adjustment_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toDisputeDTO(d *dispute.Dispute) DisputeDTO {
	return DisputeDTO{
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
		CreatedAt:    d.CreatedAt(),
	}
}

type PayoutDTO struct {
	ID          uuid.UUID  `json:"id"`
	TeacherID   uuid.UUID  `json:"teacher_id"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	Reference   string     `json:"reference,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toPayoutDTO(p *payout.Payout) PayoutDTO {
	return PayoutDTO{
		ID:          p.ID(),
		TeacherID:   p.TeacherID(),
		AmountCents: p.AmountCents(),
		Currency:    p.Currency(),
		Status:      string(p.Status()),
		Reference:   p.Reference(),
		SentAt:      p.SentAt(),
		CancelledAt: p.CancelledAt(),
		CreatedAt:   p.CreatedAt(),
	}
}

type BalanceDTO struct {
	TeacherID      uuid.UUID `json:"teacher_id"`
	EarnedCents    int64     `json:"earned_cents"`
	CommittedCents int64     `json:"committed_cents"`
	AvailableCents int64     `json:"available_cents"`
}

func toBalanceDTO(b payout.Balance) BalanceDTO {
	return BalanceDTO{
		TeacherID:      b.TeacherID,
		EarnedCents:    b.EarnedCents,
		CommittedCents: b.CommittedCents,
		AvailableCents: b.AvailableCents,
	}
}

type RateDTO struct {
	TeacherID       uuid.UUID `json:"teacher_id"`
	HourlyRateCents int64     `json:"hourly_rate_cents"`
	Currency        string    `json:"currency"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type AvailabilityDTO struct {
	ID        uuid.UUID `json:"id"`
	TeacherID uuid.UUID `json:"teacher_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

type CourseDTO struct {
	ID         uuid.UUID `json:"id"`
	TeacherID  uuid.UUID `json:"teacher_id"`
	Title      string    `json:"title"`
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
	Slots      []SlotDTO `json:"slots"`
	CreatedAt  time.Time `json:"created_at"`
}

func toCourseDTO(c *catalog.Course) CourseDTO {
	return CourseDTO{
		ID:         c.ID,
		TeacherID:  c.TeacherID,
		Title:      c.Title,
		PriceCents: c.PriceCents,
		Currency:   c.Currency,
		Slots:      toSlotDTOs(c.Slots),
		CreatedAt:  c.CreatedAt,
	}
}
