package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/pkg/domain"
	"go.uber.org/zap"
)

// ChargeRequest describes a single charge against the payer's payment method.
type ChargeRequest struct {
	PaymentID     uuid.UUID
	AmountCents   int64
	Currency      string
	PaymentMethod string
}

// ChargeResult is the gateway's answer. A decline is a result, not an error.
type ChargeResult struct {
	TransactionID string
	Succeeded     bool
	FailureReason string
	Meta          map[string]string
}

// RefundRequest returns money on a captured charge. Requests sharing an IdempotencyKey
// produce one refund at the processor; repeats return the first refund's id.
type RefundRequest struct {
	TransactionID  string
	AmountCents    int64
	IdempotencyKey string
}

// PaymentGateway is the anti-corruption boundary around the card processor.
// Transport errors and timeouts come back as ExternalServiceError.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (refundID string, err error)
}

// MockGateway simulates a processor for development and tests.
// Payment methods prefixed "pm_decline" are declined, "pm_error" fail in transport,
// and "pm_hang" block until the context gives up.
type MockGateway struct {
	latency time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	refunds map[string]string
}

// NewMockGateway creates a mock gateway that answers after latency.
func NewMockGateway(latency time.Duration, logger *zap.Logger) *MockGateway {
	return &MockGateway{latency: latency, logger: logger, refunds: make(map[string]string)}
}

func (g *MockGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	hang := strings.HasPrefix(req.PaymentMethod, "pm_hang")
	if err := g.wait(ctx, hang); err != nil {
		return nil, domain.NewExternalServiceError("payment gateway", err)
	}
	if strings.HasPrefix(req.PaymentMethod, "pm_error") {
		return nil, domain.NewExternalServiceError("payment gateway", fmt.Errorf("connection reset"))
	}

	if strings.HasPrefix(req.PaymentMethod, "pm_decline") {
		g.logger.Info("[MOCK GATEWAY] charge declined",
			zap.String("payment_id", req.PaymentID.String()),
			zap.Int64("amount_cents", req.AmountCents),
		)
		return &ChargeResult{
			Succeeded:     false,
			FailureReason: "card_declined",
			Meta: map[string]string{
				"failure_code":    "card_declined",
				"failure_message": "The card was declined.",
			},
		}, nil
	}

	txnID := fmt.Sprintf("ch_mock_%s", uuid.New().String()[:8])
	g.logger.Info("[MOCK GATEWAY] charge succeeded",
		zap.String("payment_id", req.PaymentID.String()),
		zap.String("transaction_id", txnID),
		zap.Int64("amount_cents", req.AmountCents),
		zap.String("currency", req.Currency),
	)
	return &ChargeResult{
		TransactionID: txnID,
		Succeeded:     true,
		Meta: map[string]string{
			"card_brand":         "visa",
			"card_last4":         "4242",
			"processor_name":     "mock",
			"authorization_code": strings.ToUpper(txnID[len(txnID)-6:]),
		},
	}, nil
}

// Refund creates a refund, or returns the one already created for the same idempotency key.
func (g *MockGateway) Refund(ctx context.Context, req RefundRequest) (string, error) {
	if err := g.wait(ctx, false); err != nil {
		return "", domain.NewExternalServiceError("payment gateway", err)
	}
	if req.TransactionID == "" {
		return "", domain.NewExternalServiceError("payment gateway", fmt.Errorf("no transaction to refund"))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if refundID, ok := g.refunds[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		g.logger.Info("[MOCK GATEWAY] refund replayed",
			zap.String("transaction_id", req.TransactionID),
			zap.String("refund_id", refundID),
			zap.String("idempotency_key", req.IdempotencyKey),
		)
		return refundID, nil
	}
	refundID := fmt.Sprintf("re_mock_%s", uuid.New().String()[:8])
	if req.IdempotencyKey != "" {
		g.refunds[req.IdempotencyKey] = refundID
	}
	g.logger.Info("[MOCK GATEWAY] refund created",
		zap.String("transaction_id", req.TransactionID),
		zap.String("refund_id", refundID),
		zap.Int64("amount_cents", req.AmountCents),
	)
	return refundID, nil
}

func (g *MockGateway) wait(ctx context.Context, forever bool) error {
	if !forever && g.latency <= 0 {
		return ctx.Err()
	}
	var after <-chan time.Time
	if !forever {
		timer := time.NewTimer(g.latency)
		defer timer.Stop()
		after = timer.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-after:
		return nil
	}
}
