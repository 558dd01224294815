package application

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/adapter"
	"github.com/tutorly/service-learning/internal/domain/payout"
	"github.com/tutorly/service-learning/internal/domain/store"
	"github.com/tutorly/service-learning/internal/metrics"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/authz"
	"github.com/tutorly/service-learning/pkg/clock"
	"github.com/tutorly/service-learning/pkg/domain"
	"github.com/tutorly/service-learning/pkg/events"
	"github.com/tutorly/service-learning/pkg/lock"
	"go.uber.org/zap"
)

type RequestPayoutRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Currency    string `json:"currency"`
}

type MarkPayoutSentRequest struct {
	Reference string `json:"reference" binding:"required"`
}

// WalletService is the teacher payout ledger. Balances are always derived, never stored.
type WalletService struct {
	uow      store.UnitOfWork
	authz    *authz.Authorizer
	locker   lock.Locker
	notifier adapter.Notifier
	metrics  *metrics.Metrics
	clock    clock.Clock
	currency string
	lockWait time.Duration
	logger   *zap.Logger
}

// NewWalletService creates a new WalletService.
func NewWalletService(
	uow store.UnitOfWork,
	az *authz.Authorizer,
	locker lock.Locker,
	notifier adapter.Notifier,
	m *metrics.Metrics,
	clk clock.Clock,
	currency string,
	lockWait time.Duration,
	logger *zap.Logger,
) *WalletService {
	return &WalletService{
		uow:      uow,
		authz:    az,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		clock:    clk,
		currency: currency,
		lockWait: lockWait,
		logger:   logger,
	}
}

// balanceOf counts only earnings priced in the wallet currency; bookings in any other
// currency never fund a payout.
func (s *WalletService) balanceOf(ctx context.Context, repos store.Repositories, teacherID uuid.UUID) (payout.Balance, error) {
	earned, err := repos.Bookings.SumCompletedEarnings(ctx, teacherID, s.currency)
	if err != nil {
		return payout.Balance{}, err
	}
	committed, err := repos.Payouts.SumCommitted(ctx, teacherID)
	if err != nil {
		return payout.Balance{}, err
	}
	return payout.NewBalance(teacherID, earned, committed), nil
}

func (s *WalletService) checkTeacher(actor auth.Actor, teacherID uuid.UUID) error {
	if !actor.IsAdmin() && !actor.Is(teacherID) {
		return domain.NewForbiddenError("not this teacher's wallet")
	}
	return nil
}

// ComputeBalance returns earnings from completed bookings less pending and sent payouts.
func (s *WalletService) ComputeBalance(ctx context.Context, actor auth.Actor, teacherID uuid.UUID) (*BalanceDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayout, authz.ActionBalance); err != nil {
		return nil, err
	}
	if err := s.checkTeacher(actor, teacherID); err != nil {
		return nil, err
	}
	b, err := s.balanceOf(ctx, s.uow.Repositories(), teacherID)
	if err != nil {
		return nil, err
	}
	dto := toBalanceDTO(b)
	return &dto, nil
}

// RequestPayout withdraws amountCents from the caller's wallet. The balance is recomputed under
// a per-teacher lock and the insert is fenced by the wallet version row, so concurrent requests
// can never commit more than the balance.
func (s *WalletService) RequestPayout(ctx context.Context, actor auth.Actor, req RequestPayoutRequest) (*PayoutDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayout, authz.ActionRequest); err != nil {
		return nil, err
	}
	// Earnings accrue in the wallet currency only, so a payout in any other would overdraw it.
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.currency
	}
	if currency != s.currency {
		return nil, domain.NewValidationError("currency", "must be "+s.currency)
	}

	var p *payout.Payout
	err := withLock(ctx, s.locker, "payout:teacher:"+actor.ID.String(), s.lockWait, func() error {
		return s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
			version, err := repos.Payouts.WalletVersion(ctx, actor.ID)
			if err != nil {
				return err
			}
			balance, err := s.balanceOf(ctx, repos, actor.ID)
			if err != nil {
				return err
			}
			if err := balance.Cover(req.AmountCents); err != nil {
				return err
			}
			p, err = payout.NewPayout(actor.ID, req.AmountCents, currency, s.clock.Now())
			if err != nil {
				return err
			}
			if err := repos.Payouts.Save(ctx, p); err != nil {
				return err
			}
			return repos.Payouts.BumpWalletVersion(ctx, actor.ID, version)
		})
	})
	s.metrics.PayoutRequest(err)
	if err != nil {
		s.logger.Info("payout request rejected",
			zap.String("teacher_id", actor.ID.String()),
			zap.Int64("amount_cents", req.AmountCents),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("payout requested",
		zap.String("payout_id", p.ID().String()),
		zap.String("teacher_id", actor.ID.String()),
		zap.Int64("amount_cents", p.AmountCents()),
	)
	dto := toPayoutDTO(p)
	return &dto, nil
}

// MarkSent records that the transfer went out. Repeating it with a sent payout changes nothing.
func (s *WalletService) MarkSent(ctx context.Context, actor auth.Actor, payoutID uuid.UUID, req MarkPayoutSentRequest) (*PayoutDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayout, authz.ActionSend); err != nil {
		return nil, err
	}
	var (
		p       *payout.Payout
		changed bool
	)
	err := s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		p, err = repos.Payouts.FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return err
		}
		changed, err = p.MarkSent(req.Reference, s.clock.Now())
		if err != nil || !changed {
			return err
		}
		p.IncrementVersion()
		return repos.Payouts.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info("payout sent",
			zap.String("payout_id", payoutID.String()),
			zap.String("reference", req.Reference),
		)
		s.notifier.Notify(ctx, events.NotifyPayoutSent, p.TeacherID().String(), events.PayoutSentEvent{
			PayoutID:    p.ID(),
			TeacherID:   p.TeacherID(),
			AmountCents: p.AmountCents(),
			Currency:    p.Currency(),
			Reference:   p.Reference(),
			OccurredAt:  s.clock.Now(),
		})
	}
	dto := toPayoutDTO(p)
	return &dto, nil
}

// CancelWithdrawal cancels a pending payout, returning its amount to the available balance.
func (s *WalletService) CancelWithdrawal(ctx context.Context, actor auth.Actor, payoutID uuid.UUID) (*PayoutDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayout, authz.ActionCancel); err != nil {
		return nil, err
	}
	var p *payout.Payout
	err := s.uow.Within(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		p, err = repos.Payouts.FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return err
		}
		if err := s.checkTeacher(actor, p.TeacherID()); err != nil {
			return err
		}
		if err := p.Cancel(s.clock.Now()); err != nil {
			return err
		}
		p.IncrementVersion()
		return repos.Payouts.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payout cancelled",
		zap.String("payout_id", payoutID.String()),
		zap.String("actor", actor.String()),
	)
	dto := toPayoutDTO(p)
	return &dto, nil
}

// ListForTeacher returns a teacher's payouts to that teacher or an admin.
func (s *WalletService) ListForTeacher(ctx context.Context, actor auth.Actor, teacherID uuid.UUID, page, limit int) ([]PayoutDTO, int64, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayout, authz.ActionBalance); err != nil {
		return nil, 0, err
	}
	if err := s.checkTeacher(actor, teacherID); err != nil {
		return nil, 0, err
	}
	payouts, total, err := s.uow.Repositories().Payouts.ListByTeacher(ctx, teacherID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	return toPayoutDTOs(payouts), total, nil
}

// ListAll returns every payout, optionally filtered by status (admin).
func (s *WalletService) ListAll(ctx context.Context, actor auth.Actor, status string, page, limit int) ([]PayoutDTO, int64, error) {
	if err := s.authz.Authorize(actor, authz.ObjectPayout, authz.ActionList); err != nil {
		return nil, 0, err
	}
	payouts, total, err := s.uow.Repositories().Payouts.ListAll(ctx, payout.Status(status), page, limit)
	if err != nil {
		return nil, 0, err
	}
	return toPayoutDTOs(payouts), total, nil
}

func toPayoutDTOs(payouts []*payout.Payout) []PayoutDTO {
	out := make([]PayoutDTO, len(payouts))
	for i, p := range payouts {
		out[i] = toPayoutDTO(p)
	}
	return out
}
