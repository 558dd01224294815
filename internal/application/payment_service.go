package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/adapter"
	"github.com/tutorly/service-learning/internal/domain/booking"
	"github.com/tutorly/service-learning/internal/domain/payment"
	"github.com/tutorly/service-learning/internal/domain/store"
	"github.com/tutorly/service-learning/internal/metrics"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/authz"
	"github.com/tutorly/service-learning/pkg/clock"
	"github.com/tutorly/service-learning/pkg/domain"
	"github.com/tutorly/service-learning/pkg/events"
	"go.uber.org/zap"
)

// ReasonAttemptExpired is the failure reason of attempts that never heard back from the gateway.
const ReasonAttemptExpired = "attempt_expired"

// RecordPaymentRequest is the DTO for recording a payment attempt.
type RecordPaymentRequest struct {
	TargetType    string    `json:"target_type" binding:"required,oneof=booking course"`
	TargetID      uuid.UUID `json:"target_id" binding:"required"`
	AmountCents   int64     `json:"amount_cents" binding:"required,gt=0"`
	PaymentMethod string    `json:"payment_method" binding:"required"`
}

// SettlePaymentRequest carries a gateway outcome into the ledger.
type SettlePaymentRequest struct {
	GatewayRef  string            `json:"gateway_ref"`
	GatewayMeta map[string]string `json:"gateway_meta"`
}

// Quote is what the payer owes for a target and which booking the payment will settle.
type Quote struct {
	Target      payment.Target
	BookingID   uuid.UUID
	AmountCents int64
	Currency    string
}

// PaymentService is the payment ledger: it records attempts, applies gateway outcomes
// and issues refunds against completed payments.
type PaymentService struct {
	uow            store.UnitOfWork
	authz          *authz.Authorizer
	gateway        adapter.PaymentGateway
	sessions       *SessionService
	notifier       adapter.Notifier
	metrics        *metrics.Metrics
	clock          clock.Clock
	gatewayTimeout time.Duration
	logger         *zap.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	uow store.UnitOfWork,
	az *authz.Authorizer,
	gateway adapter.PaymentGateway,
	sessions *SessionService,
	notifier adapter.Notifier,
	m *metrics.Metrics,
	clk clock.Clock,
	gatewayTimeout time.Duration,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		uow:            uow,
		authz:          az,
		gateway:        gateway,
		sessions:       sessions,
		notifier:       notifier,
		metrics:        m,
		clock:          clk,
		gatewayTimeout: gatewayTimeout,
		logger:         logger,
	}
}

// Quote resolves a payment target to the pending booking it pays for and the amount due.
func (s *PaymentService) Quote(ctx context.Context, actor auth.Actor, target payment.Target) (*Quote, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayment, authz.ActionCreate); err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	repos := s.uow.Repositories()
	b, err := s.resolveBooking(ctx, repos, actor, target)
	if err != nil {
		return nil, err
	}
	return &Quote{Target: target, BookingID: b.ID(), AmountCents: b.TotalCents(), Currency: b.Currency()}, nil
}

// resolveBooking finds the booking a target settles and checks that actor may pay for it now.
// A target that does not resolve is a ValidationError, since the client named it.
func (s *PaymentService) resolveBooking(ctx context.Context, repos store.Repositories, actor auth.Actor, target payment.Target) (*booking.Booking, error) {
	var (
		b   *booking.Booking
		err error
	)
	switch target.Type {
	case payment.TargetBooking:
		b, err = repos.Bookings.FindByID(ctx, target.ID)
	case payment.TargetCourse:
		if _, err = repos.Catalog.FindCourse(ctx, target.ID); err == nil {
			b, err = repos.Bookings.FindPendingCourseBooking(ctx, actor.ID, target.ID)
		}
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewValidationError("target_id", "does not name a payable "+string(target.Type))
	}
	if err != nil {
		return nil, err
	}
	if !actor.Is(b.StudentID()) {
		return nil, domain.NewForbiddenError("only the booking's student may pay for it")
	}
	if b.Status() != booking.StatusPending {
		return nil, domain.NewInvalidStateError(string(b.Status()), "paid")
	}
	return b, nil
}

// RecordAttempt creates a pending payment. The amount must match the price fixed on the booking,
// and a booking may have only one pending or completed payment at a time.
func (s *PaymentService) RecordAttempt(ctx context.Context, actor auth.Actor, req RecordPaymentRequest) (*PaymentDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayment, authz.ActionCreate); err != nil {
		return nil, err
	}
	target := payment.Target{Type: payment.TargetType(req.TargetType), ID: req.TargetID}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	var p *payment.Payment
	err := s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		b, err := s.resolveBooking(ctx, repos, actor, target)
		if err != nil {
			return err
		}
		// Serialize attempts for the same booking.
		if b, err = repos.Bookings.FindByIDForUpdate(ctx, b.ID()); err != nil {
			return err
		}
		if b.Status() != booking.StatusPending {
			return domain.NewInvalidStateError(string(b.Status()), "paid")
		}
		if req.AmountCents != b.TotalCents() {
			return domain.NewValidationError("amount_cents", "must equal the booking total")
		}
		open, err := repos.Payments.FindOpenByBooking(ctx, b.ID())
		switch {
		case err == nil:
			return domain.NewConflictError("booking already has a " + string(open.Status()) + " payment " + open.ID().String())
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		p, err = payment.NewPayment(actor.ID, target, b.ID(), req.AmountCents, b.Currency(), req.PaymentMethod, s.clock.Now())
		if err != nil {
			return err
		}
		return repos.Payments.Save(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment attempt recorded",
		zap.String("payment_id", p.ID().String()),
		zap.String("booking_id", p.BookingID().String()),
		zap.String("target_type", string(target.Type)),
		zap.Int64("amount_cents", p.AmountCents()),
	)
	dto := toPaymentDTO(p)
	return &dto, nil
}

// MarkCompleted applies a successful charge. In one transaction it completes the payment,
// confirms the booking and materializes its sessions. A payment that is already completed
// is returned unchanged, so redelivered settlements confirm and materialize nothing.
func (s *PaymentService) MarkCompleted(ctx context.Context, actor auth.Actor, paymentID uuid.UUID, req SettlePaymentRequest) (*PaymentDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayment, authz.ActionSettle); err != nil {
		return nil, err
	}
	// A redelivery is acknowledged before its payload is looked at.
	current, err := s.uow.Repositories().Payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if current.Status() == payment.StatusCompleted {
		dto := toPaymentDTO(current)
		return &dto, nil
	}
	meta, err := payment.ParseGatewayMeta(req.GatewayMeta)
	if err != nil {
		return nil, err
	}

	var (
		p         *payment.Payment
		b         *booking.Booking
		confirmed bool
		sessions  int
	)
	err = s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		p, err = repos.Payments.FindByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		changed, err := p.MarkCompleted(req.GatewayRef, meta, now)
		if err != nil || !changed {
			return err
		}
		p.IncrementVersion()
		if err := repos.Payments.Update(ctx, p); err != nil {
			return err
		}

		b, err = repos.Bookings.FindByIDForUpdate(ctx, p.BookingID())
		if err != nil {
			return err
		}
		if b.Status() != booking.StatusPending {
			s.logger.Warn("payment completed for a booking that is no longer pending",
				zap.String("payment_id", p.ID().String()),
				zap.String("booking_id", b.ID().String()),
				zap.String("booking_status", string(b.Status())),
			)
			return nil
		}
		tr, err := b.Confirm(now)
		if err != nil {
			return err
		}
		b.IncrementVersion()
		if err := repos.Bookings.Update(ctx, b); err != nil {
			return err
		}
		if err := repos.Bookings.SaveTransition(ctx, tr.By(actor.ID, actor.Role, "payment "+p.ID().String()+" completed")); err != nil {
			return err
		}
		confirmed = true
		created, err := s.sessions.materialize(ctx, repos, b)
		sessions = len(created)
		return err
	})
	if err != nil {
		s.logger.Error("failed to complete payment", zap.String("payment_id", paymentID.String()), zap.Error(err))
		return nil, err
	}

	if confirmed {
		s.metrics.Payment(metrics.OutcomeOK)
		s.metrics.BookingTransition(string(booking.StatusConfirmed))
		s.logger.Info("payment completed, booking confirmed",
			zap.String("payment_id", p.ID().String()),
			zap.String("booking_id", b.ID().String()),
			zap.Int("sessions", sessions),
		)
		s.notifier.Notify(ctx, events.NotifyBookingConfirmed, b.ID().String(), events.BookingConfirmedEvent{
			BookingID:  b.ID(),
			StudentID:  b.StudentID(),
			TeacherID:  b.TeacherID(),
			Sessions:   sessions,
			OccurredAt: s.clock.Now(),
		})
	}
	dto := toPaymentDTO(p)
	return &dto, nil
}

// MarkFailed records a declined or errored charge. The booking stays pending and may be paid again.
func (s *PaymentService) MarkFailed(ctx context.Context, actor auth.Actor, paymentID uuid.UUID, reason string) (*PaymentDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayment, authz.ActionSettle); err != nil {
		return nil, err
	}
	var (
		p       *payment.Payment
		changed bool
	)
	err := s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		p, err = repos.Payments.FindByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		changed, err = p.MarkFailed(reason, s.clock.Now())
		if err != nil || !changed {
			return err
		}
		p.IncrementVersion()
		return repos.Payments.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.Payment(metrics.OutcomeDeclined)
		s.logger.Info("payment failed",
			zap.String("payment_id", paymentID.String()),
			zap.String("reason", reason),
		)
	}
	dto := toPaymentDTO(p)
	return &dto, nil
}

// ExpireAttempts fails pending attempts older than ttl that never got a gateway outcome,
// which frees their bookings for a new attempt, a cancel or expiry. It returns how many were failed.
func (s *PaymentService) ExpireAttempts(ctx context.Context, actor auth.Actor, ttl time.Duration, batch int) (int, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayment, authz.ActionSettle); err != nil {
		return 0, err
	}
	stale, err := s.uow.Repositories().Payments.ListPendingCreatedBefore(ctx, s.clock.Now().Add(-ttl), batch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, p := range stale {
		if _, err := s.MarkFailed(ctx, actor, p.ID(), ReasonAttemptExpired); err != nil {
			// The gateway outcome may have landed since the scan.
			s.logger.Warn("failed to expire payment attempt",
				zap.String("payment_id", p.ID().String()),
				zap.Error(err),
			)
			continue
		}
		expired++
	}
	return expired, nil
}

// Reconcile flags a payment as checked against the gateway's records. It never touches status.
func (s *PaymentService) Reconcile(ctx context.Context, actor auth.Actor, paymentID uuid.UUID) (*PaymentDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayment, authz.ActionReconcile); err != nil {
		return nil, err
	}
	var p *payment.Payment
	err := s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		p, err = repos.Payments.FindByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		p.Reconcile(actor.ID, s.clock.Now())
		p.IncrementVersion()
		return repos.Payments.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment reconciled",
		zap.String("payment_id", paymentID.String()),
		zap.String("admin_id", actor.ID.String()),
	)
	dto := toPaymentDTO(p)
	return &dto, nil
}

// GetPayment returns a payment with its adjustments to the payer or an admin.
func (s *PaymentService) GetPayment(ctx context.Context, actor auth.Actor, paymentID uuid.UUID) (*PaymentDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayment, authz.ActionView); err != nil {
		return nil, err
	}
	repos := s.uow.Repositories()
	p, err := repos.Payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Is(p.PayerID()) {
		return nil, domain.NewForbiddenError("not the payer of this payment")
	}
	adjustments, err := repos.Payments.ListAdjustments(ctx, p.ID())
	if err != nil {
		return nil, err
	}
	dto := toPaymentDTO(p)
	for _, a := range adjustments {
		dto.Adjustments = append(dto.Adjustments, toAdjustmentDTO(a))
	}
	return &dto, nil
}

// ListForBooking returns every attempt made for a booking.
func (s *PaymentService) ListForBooking(ctx context.Context, actor auth.Actor, bookingID uuid.UUID) ([]PaymentDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayment, authz.ActionView); err != nil {
		return nil, err
	}
	repos := s.uow.Repositories()
	b, err := repos.Bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Is(b.StudentID()) {
		return nil, domain.NewForbiddenError("not the student of this booking")
	}
	payments, err := repos.Payments.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	out := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		out[i] = toPaymentDTO(p)
	}
	return out, nil
}

// ListAll retrieves all payments with pagination (admin).
func (s *PaymentService) ListAll(ctx context.Context, actor auth.Actor, page, limit int) ([]PaymentDTO, int64, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayment, authz.ActionList); err != nil {
		return nil, 0, err
	}
	payments, total, err := s.uow.Repositories().Payments.ListAll(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		out[i] = toPaymentDTO(p)
	}
	return out, total, nil
}

// Stats returns completed revenue and payment counts by status (admin).
func (s *PaymentService) Stats(ctx context.Context, actor auth.Actor) (*PaymentStatsDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayment, authz.ActionList); err != nil {
		return nil, err
	}
	revenue, counts, err := s.uow.Repositories().Payments.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	return &PaymentStatsDTO{CompletedRevenueCents: revenue, CountByStatus: counts}, nil
}

// Charge calls the gateway under the configured timeout. A timeout is a failure like any other.
func (s *PaymentService) Charge(ctx context.Context, p *PaymentDTO) (*adapter.ChargeResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	started := time.Now()
	res, err := s.gateway.Charge(callCtx, adapter.ChargeRequest{
		PaymentID:     p.ID,
		AmountCents:   p.AmountCents,
		Currency:      p.Currency,
		PaymentMethod: p.PaymentMethod,
	})
	s.metrics.GatewayCall("charge", started, err)
	return res, err
}

// VoidCharge returns a charge that was taken but could not be recorded.
// Voids are keyed by transaction, so a repeated compensation refunds once.
func (s *PaymentService) VoidCharge(ctx context.Context, transactionID string, amountCents int64) error {
	_, _, err := s.gatewayRefund(ctx, adapter.RefundRequest{
		TransactionID:  transactionID,
		AmountCents:    amountCents,
		IdempotencyKey: "void:" + transactionID,
	})
	return err
}

// gatewayRefund calls the gateway under the configured timeout. timedOut reports a call
// the gateway may still have acted on.
func (s *PaymentService) gatewayRefund(ctx context.Context, req adapter.RefundRequest) (refundID string, timedOut bool, err error) {
	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	started := time.Now()
	refundID, err = s.gateway.Refund(callCtx, req)
	s.metrics.GatewayCall("refund", started, err)
	return refundID, err != nil && callCtx.Err() != nil, err
}

// settledPayment returns the booking's completed payment, locked. A payment that adjustments
// already emptied is returned too, with nothing left to refund.
func (s *PaymentService) settledPayment(ctx context.Context, repos store.Repositories, bookingID uuid.UUID) (*payment.Payment, error) {
	payments, err := repos.Payments.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	for i := len(payments) - 1; i >= 0; i-- {
		switch payments[i].Status() {
		case payment.StatusCompleted, payment.StatusRefunded:
			return repos.Payments.FindByIDForUpdate(ctx, payments[i].ID())
		}
	}
	return nil, domain.NewInvalidStateError("unpaid", "refunded")
}

// reserveRefund returns the live adjustment already recorded for reference on a locked,
// completed payment, or reserves a new pending one. An amountCents of zero reserves whatever
// remains refundable, and nil is returned when nothing does. Callers commit the reservation
// before handing it to issueRefund so that the gateway is never called inside a transaction.
func (s *PaymentService) reserveRefund(
	ctx context.Context,
	repos store.Repositories,
	p *payment.Payment,
	kind payment.AdjustmentKind,
	reference uuid.UUID,
	amountCents int64,
	actor auth.Actor,
) (*payment.Adjustment, error) {
	now := s.clock.Now()
	existing, err := repos.Payments.FindAdjustment(ctx, p.ID(), kind, reference)
	switch {
	case err == nil:
		if amountCents != 0 && existing.AmountCents != amountCents {
			return nil, domain.NewConflictError("a refund of a different amount is already recorded")
		}
		// A fresh reservation belongs to a request that is still talking to the gateway.
		if !existing.Issued() && now.Sub(existing.CreatedAt) < 2*s.gatewayTimeout {
			return nil, domain.NewConflictError("refund already in progress")
		}
		return existing, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	adjusted, err := repos.Payments.SumAdjustments(ctx, p.ID())
	if err != nil {
		return nil, err
	}
	if amountCents == 0 {
		if amountCents = payment.Refundable(p.AmountCents(), adjusted); amountCents == 0 {
			return nil, nil
		}
	}
	adj, err := payment.NewAdjustment(p, kind, amountCents, adjusted, reference, actor.ID, now)
	if err != nil {
		return nil, err
	}
	if err := repos.Payments.SaveAdjustment(ctx, adj); err != nil {
		return nil, err
	}
	return adj, nil
}

// issueRefund sends a committed reservation to the gateway and records the outcome in its own
// transaction. The adjustment id is the gateway idempotency key, so resending a reservation
// whose outcome was lost returns the original refund. An issued adjustment is left alone.
// A refusal releases the reservation; a timeout keeps it, since the refund may have gone through.
func (s *PaymentService) issueRefund(ctx context.Context, transactionID string, adj *payment.Adjustment) error {
	if adj == nil || adj.Issued() {
		return nil
	}
	refundID, timedOut, err := s.gatewayRefund(ctx, adapter.RefundRequest{
		TransactionID:  transactionID,
		AmountCents:    adj.AmountCents,
		IdempotencyKey: adj.ID.String(),
	})
	if err != nil {
		if timedOut {
			s.logger.Warn("refund outcome unknown, reservation kept",
				zap.String("adjustment_id", adj.ID.String()),
				zap.Error(err),
			)
			return err
		}
		if ferr := adj.MarkFailed(); ferr == nil {
			ferr = s.uow.Within(context.WithoutCancel(ctx), func(ctx context.Context, repos store.Repositories) error {
				return repos.Payments.UpdateAdjustment(ctx, adj)
			})
			if ferr != nil {
				s.logger.Error("failed to release refund reservation",
					zap.String("adjustment_id", adj.ID.String()),
					zap.Error(ferr),
				)
			}
		}
		return err
	}
	if err := adj.MarkIssued(refundID); err != nil {
		return err
	}
	err = s.uow.Within(context.WithoutCancel(ctx), func(ctx context.Context, repos store.Repositories) error {
		return repos.Payments.UpdateAdjustment(ctx, adj)
	})
	if err != nil {
		s.logger.Error("refund issued but not recorded",
			zap.String("adjustment_id", adj.ID.String()),
			zap.String("gateway_refund_id", refundID),
			zap.Error(err),
		)
		return err
	}
	s.logger.Info("refund issued",
		zap.String("payment_id", adj.PaymentID.String()),
		zap.String("kind", string(adj.Kind)),
		zap.Int64("amount_cents", adj.AmountCents),
		zap.String("gateway_refund_id", refundID),
	)
	return nil
}

// closeIfRefunded moves a completed payment to refunded once dispute refunds have returned
// all of it. The payment is locked by the caller's transaction.
func (s *PaymentService) closeIfRefunded(ctx context.Context, repos store.Repositories, paymentID uuid.UUID) error {
	p, err := repos.Payments.FindByIDForUpdate(ctx, paymentID)
	if err != nil {
		return err
	}
	if p.Status() != payment.StatusCompleted {
		return nil
	}
	adjusted, err := repos.Payments.SumAdjustments(ctx, p.ID())
	if err != nil || payment.Refundable(p.AmountCents(), adjusted) > 0 {
		return err
	}
	if err := p.MarkRefunded(s.clock.Now()); err != nil {
		return err
	}
	p.IncrementVersion()
	return repos.Payments.Update(ctx, p)
}
