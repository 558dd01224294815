package events

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/tutorly/service-learning/internal/application"
	"github.com/tutorly/service-learning/internal/metrics"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/domain"
	"github.com/tutorly/service-learning/pkg/events"
	"github.com/tutorly/service-learning/pkg/kafka"
	"go.uber.org/zap"
)

// Settler applies gateway outcomes to the payment ledger.
type Settler interface {
	MarkCompleted(ctx context.Context, actor auth.Actor, paymentID uuid.UUID, req application.SettlePaymentRequest) (*application.PaymentDTO, error)
	MarkFailed(ctx context.Context, actor auth.Actor, paymentID uuid.UUID, reason string) (*application.PaymentDTO, error)
}

// GatewaySettlementConsumer listens to asynchronous charge outcomes and settles the matching payments.
// Both outcomes are idempotent in the ledger, so redelivered events are harmless.
type GatewaySettlementConsumer struct {
	consumer *kafka.Consumer
	settler  Settler
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewGatewaySettlementConsumer creates a consumer of gateway outcomes on the settlement topic.
func NewGatewaySettlementConsumer(
	brokers []string,
	groupID string,
	settler Settler,
	m *metrics.Metrics,
	logger *zap.Logger,
) *GatewaySettlementConsumer {
	return &GatewaySettlementConsumer{
		consumer: kafka.NewConsumer(brokers, groupID, events.TopicGatewayEvents, logger),
		settler:  settler,
		metrics:  m,
		logger:   logger,
	}
}

// Start blocks until ctx is cancelled.
func (c *GatewaySettlementConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

func (c *GatewaySettlementConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	ce, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		// A malformed event will never parse; commit past it.
		c.logger.Error("failed to parse gateway event", zap.Error(err), zap.String("raw", string(msg.Value)))
		return nil
	}

	c.logger.Info("received gateway event",
		zap.String("type", ce.Type),
		zap.String("id", ce.ID),
	)

	switch {
	case strings.EqualFold(ce.Type, events.GatewayChargeSucceeded):
		err = c.handleSucceeded(ctx, ce)
	case strings.EqualFold(ce.Type, events.GatewayChargeFailed):
		err = c.handleFailed(ctx, ce)
	default:
		c.logger.Debug("ignoring unhandled gateway event type", zap.String("type", ce.Type))
		return nil
	}
	c.metrics.SettlementEvent(ce.Type, err)
	if permanent(err) {
		c.logger.Warn("gateway event cannot be applied, skipping",
			zap.String("type", ce.Type),
			zap.String("id", ce.ID),
			zap.Error(err),
		)
		return nil
	}
	return err
}

func (c *GatewaySettlementConsumer) handleSucceeded(ctx context.Context, ce kafka.CloudEvent) error {
	var event events.ChargeSucceededEvent
	if err := ce.ParseData(&event); err != nil {
		return domain.NewValidationError("data", err.Error())
	}
	_, err := c.settler.MarkCompleted(ctx, auth.SystemActor(), event.PaymentID, application.SettlePaymentRequest{
		GatewayRef:  event.TransactionID,
		GatewayMeta: event.Meta,
	})
	return err
}

func (c *GatewaySettlementConsumer) handleFailed(ctx context.Context, ce kafka.CloudEvent) error {
	var event events.ChargeFailedEvent
	if err := ce.ParseData(&event); err != nil {
		return domain.NewValidationError("data", err.Error())
	}
	_, err := c.settler.MarkFailed(ctx, auth.SystemActor(), event.PaymentID, event.Reason)
	return err
}

// permanent reports errors that redelivery cannot fix.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, domain.ErrInvalidTransition)
}

// Close closes the underlying Kafka reader.
func (c *GatewaySettlementConsumer) Close() error {
	return c.consumer.Close()
}
