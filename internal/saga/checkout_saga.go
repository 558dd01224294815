package saga

import (
	"context"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/adapter"
	"github.com/tutorly/service-learning/internal/application"
	"github.com/tutorly/service-learning/internal/domain/payment"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/domain"
	"go.uber.org/zap"
)

// Ledger is the part of the payment ledger a checkout drives.
type Ledger interface {
	Quote(ctx context.Context, actor auth.Actor, target payment.Target) (*application.Quote, error)
	RecordAttempt(ctx context.Context, actor auth.Actor, req application.RecordPaymentRequest) (*application.PaymentDTO, error)
	Charge(ctx context.Context, p *application.PaymentDTO) (*adapter.ChargeResult, error)
	VoidCharge(ctx context.Context, transactionID string, amountCents int64) error
	MarkCompleted(ctx context.Context, actor auth.Actor, paymentID uuid.UUID, req application.SettlePaymentRequest) (*application.PaymentDTO, error)
	MarkFailed(ctx context.Context, actor auth.Actor, paymentID uuid.UUID, reason string) (*application.PaymentDTO, error)
}

// CheckoutSaga takes a student from a pending booking to a confirmed one in a single call.
type CheckoutSaga struct {
	ledger Ledger
	logger *zap.Logger
}

// NewCheckoutSaga creates a checkout saga over the payment ledger.
func NewCheckoutSaga(ledger Ledger, logger *zap.Logger) *CheckoutSaga {
	return &CheckoutSaga{ledger: ledger, logger: logger}
}

// PayBooking records an attempt for target, charges it and settles it. A decline or gateway
// failure marks the attempt failed and leaves the booking pending; a charge that cannot be
// settled is voided at the gateway.
func (c *CheckoutSaga) PayBooking(ctx context.Context, actor auth.Actor, target payment.Target, paymentMethod string) (*application.PaymentDTO, error) {
	var (
		attempt *application.PaymentDTO
		charge  *adapter.ChargeResult
		settled *application.PaymentDTO
		reason  = "checkout aborted"
	)
	system := auth.SystemActor()

	s := New("checkout", c.logger)
	s.AddStep(Step{
		Name: "record_attempt",
		Execute: func(ctx context.Context) error {
			q, err := c.ledger.Quote(ctx, actor, target)
			if err != nil {
				return err
			}
			attempt, err = c.ledger.RecordAttempt(ctx, actor, application.RecordPaymentRequest{
				TargetType:    string(target.Type),
				TargetID:      target.ID,
				AmountCents:   q.AmountCents,
				PaymentMethod: paymentMethod,
			})
			return err
		},
		Compensate: func(ctx context.Context) error {
			_, err := c.ledger.MarkFailed(ctx, system, attempt.ID, reason)
			return err
		},
	})
	s.AddStep(Step{
		Name: "charge",
		Execute: func(ctx context.Context) error {
			var err error
			charge, err = c.ledger.Charge(ctx, attempt)
			if err != nil {
				reason = err.Error()
				return err
			}
			if !charge.Succeeded {
				reason = charge.FailureReason
				return domain.NewPaymentDeclinedError(charge.FailureReason)
			}
			return nil
		},
		Compensate: func(ctx context.Context) error {
			return c.ledger.VoidCharge(ctx, charge.TransactionID, attempt.AmountCents)
		},
	})
	s.AddStep(Step{
		Name: "settle",
		Execute: func(ctx context.Context) error {
			var err error
			settled, err = c.ledger.MarkCompleted(ctx, system, attempt.ID, application.SettlePaymentRequest{
				GatewayRef:  charge.TransactionID,
				GatewayMeta: charge.Meta,
			})
			if err != nil {
				reason = "settlement failed: " + err.Error()
			}
			return err
		},
	})

	if err := s.Execute(ctx); err != nil {
		return nil, err
	}
	c.logger.Info("checkout completed",
		zap.String("payment_id", settled.ID.String()),
		zap.String("booking_id", settled.BookingID.String()),
	)
	return settled, nil
}
