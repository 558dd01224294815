package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/adapter"
	"github.com/tutorly/service-learning/internal/domain/booking"
	"github.com/tutorly/service-learning/internal/domain/dispute"
	"github.com/tutorly/service-learning/internal/domain/payment"
	"github.com/tutorly/service-learning/internal/domain/store"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/authz"
	"github.com/tutorly/service-learning/pkg/clock"
	"github.com/tutorly/service-learning/pkg/domain"
	"github.com/tutorly/service-learning/pkg/events"
	"go.uber.org/zap"
)

type OpenDisputeRequest struct {
	BookingID uuid.UUID `json:"booking_id" binding:"required"`
	Reason    string    `json:"reason" binding:"required"`
}

type ResolveDisputeRequest struct {
	Resolution  string `json:"resolution" binding:"required"`
	AmountCents *int64 `json:"amount_cents"`
	Notes       string `json:"notes"`
}

// DisputeService lets booking participants raise disputes and admins settle them.
type DisputeService struct {
	uow      store.UnitOfWork
	authz    *authz.Authorizer
	payments *PaymentService
	notifier adapter.Notifier
	clock    clock.Clock
	logger   *zap.Logger
}

// NewDisputeService creates a new DisputeService.
func NewDisputeService(
	uow store.UnitOfWork,
	az *authz.Authorizer,
	payments *PaymentService,
	notifier adapter.Notifier,
	clk clock.Clock,
	logger *zap.Logger,
) *DisputeService {
	return &DisputeService{uow: uow, authz: az, payments: payments, notifier: notifier, clock: clk, logger: logger}
}

// Open raises a dispute on a paid booking the caller takes part in.
func (s *DisputeService) Open(ctx context.Context, actor auth.Actor, req OpenDisputeRequest) (*DisputeDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectDispute, authz.ActionOpen); err != nil {
		return nil, err
	}
	repos := s.uow.Repositories()
	b, err := repos.Bookings.FindByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsParty(actor.ID) {
		return nil, domain.NewForbiddenError("not a participant of this booking")
	}
	if b.Status() == booking.StatusPending {
		return nil, domain.NewInvalidStateError(string(b.Status()), "disputed")
	}
	d, err := dispute.Open(b.ID(), actor.ID, actor.Role, req.Reason, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := repos.Disputes.Save(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("dispute opened",
		zap.String("dispute_id", d.ID().String()),
		zap.String("booking_id", b.ID().String()),
		zap.String("raised_by", actor.String()),
	)
	dto := toDisputeDTO(d)
	return &dto, nil
}

// Resolve closes an open dispute. An amount is paid back to the student as a dispute refund
// against the booking's completed payment before the dispute is marked resolved. The refund is
// reserved and committed before the gateway call, so a retry after a failed resolution reuses it.
func (s *DisputeService) Resolve(ctx context.Context, actor auth.Actor, disputeID uuid.UUID, req ResolveDisputeRequest) (*DisputeDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectDispute, authz.ActionResolve); err != nil {
		return nil, err
	}
	resolution := dispute.Resolution(req.Resolution)

	var (
		p   *payment.Payment
		adj *payment.Adjustment
	)
	err := s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		d, err := repos.Disputes.FindByIDForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		if err := d.ValidateResolution(resolution, req.AmountCents); err != nil {
			return err
		}
		if req.AmountCents == nil {
			return nil
		}
		if p, err = s.payments.settledPayment(ctx, repos, d.BookingID()); err != nil {
			return err
		}
		adj, err = s.payments.reserveRefund(ctx, repos, p, payment.AdjustmentDisputeRefund, d.ID(), *req.AmountCents, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	if adj != nil {
		if err := s.payments.issueRefund(ctx, p.GatewayTransactionID(), adj); err != nil {
			return nil, err
		}
	}

	var d *dispute.Dispute
	err = s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		if d, err = repos.Disputes.FindByIDForUpdate(ctx, disputeID); err != nil {
			return err
		}
		var adjustmentID *uuid.UUID
		if adj != nil {
			if err := s.payments.closeIfRefunded(ctx, repos, adj.PaymentID); err != nil {
				return err
			}
			adjustmentID = &adj.ID
		}
		if err := d.Resolve(resolution, req.AmountCents, req.Notes, actor.ID, adjustmentID, s.clock.Now()); err != nil {
			return err
		}
		d.IncrementVersion()
		return repos.Disputes.Update(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("dispute resolved",
		zap.String("dispute_id", disputeID.String()),
		zap.String("resolution", req.Resolution),
		zap.Bool("refunded", req.AmountCents != nil),
	)
	s.notifier.Notify(ctx, events.NotifyDisputeResolved, d.BookingID().String(), events.DisputeResolvedEvent{
		DisputeID:   d.ID(),
		BookingID:   d.BookingID(),
		Resolution:  string(d.Resolution()),
		AmountCents: d.AmountCents(),
		OccurredAt:  s.clock.Now(),
	})
	dto := toDisputeDTO(d)
	return &dto, nil
}

// Delete withdraws an open dispute. Only the user who raised it may do so.
func (s *DisputeService) Delete(ctx context.Context, actor auth.Actor, disputeID uuid.UUID) error {
	if err := s.authz.Authorize(actor, authz.ObjectDispute, authz.ActionDelete); err != nil {
		return err
	}
	return s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		d, err := repos.Disputes.FindByIDForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		if err := d.CheckDeletable(actor.ID); err != nil {
			return err
		}
		return repos.Disputes.Delete(ctx, d)
	})
}

// Get returns a dispute to the booking's participants or an admin.
func (s *DisputeService) Get(ctx context.Context, actor auth.Actor, disputeID uuid.UUID) (*DisputeDTO, error) {
	repos := s.uow.Repositories()
	d, err := repos.Disputes.FindByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		b, err := repos.Bookings.FindByID(ctx, d.BookingID())
		if err != nil {
			return nil, err
		}
		if !b.IsParty(actor.ID) {
			return nil, domain.NewForbiddenError("not a participant of this booking")
		}
	}
	dto := toDisputeDTO(d)
	return &dto, nil
}

// List returns disputes for admins, optionally filtered by status.
func (s *DisputeService) List(ctx context.Context, actor auth.Actor, status string, page, limit int) ([]DisputeDTO, int64, error) {
	if err := s.authz.Authorize(actor, authz.ObjectDispute, authz.ActionList); err != nil {
		return nil, 0, err
	}
	disputes, total, err := s.uow.Repositories().Disputes.ListAll(ctx, dispute.Status(status), page, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]DisputeDTO, len(disputes))
	for i, d := range disputes {
		out[i] = toDisputeDTO(d)
	}
	return out, total, nil
}
