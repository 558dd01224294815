package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/tutorly/service-learning/pkg/events"
	"github.com/tutorly/service-learning/pkg/kafka"
	"go.uber.org/zap"
)

// Notifier delivers user-facing notifications. Implementations never fail or block the caller.
type Notifier interface {
	Notify(ctx context.Context, eventType, subject string, payload interface{})
}

// EventPublisher is the part of the Kafka producer the notifier needs.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ce kafka.CloudEvent) error
}

// KafkaNotifier publishes notifications as CloudEvents on the notifications topic.
// Each publish runs in the background under its own timeout, and at most maxInFlight run at once;
// notifications beyond that are dropped.
type KafkaNotifier struct {
	publisher EventPublisher
	source    string
	timeout   time.Duration
	inFlight  chan struct{}
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// NewKafkaNotifier creates a notifier publishing through publisher.
func NewKafkaNotifier(publisher EventPublisher, source string, timeout time.Duration, maxInFlight int, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		publisher: publisher,
		source:    source,
		timeout:   timeout,
		inFlight:  make(chan struct{}, maxInFlight),
		logger:    logger,
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, eventType, subject string, payload interface{}) {
	ce, err := kafka.NewCloudEvent(n.source, eventType, payload)
	if err != nil {
		n.logger.Error("failed to build notification", zap.String("type", eventType), zap.Error(err))
		return
	}
	ce.Subject = subject

	select {
	case n.inFlight <- struct{}{}:
	default:
		n.logger.Warn("notification dropped, too many in flight",
			zap.String("type", eventType),
			zap.String("subject", subject),
		)
		return
	}
	n.wg.Add(1)
	// Outlives the request that triggered it.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	go func() {
		defer func() {
			cancel()
			<-n.inFlight
			n.wg.Done()
		}()
		if err := n.publisher.PublishEvent(pubCtx, events.TopicNotifications, ce); err != nil {
			n.logger.Warn("notification dropped",
				zap.String("type", eventType),
				zap.String("subject", subject),
				zap.Error(err),
			)
		}
	}()
}

// Close waits for in-flight notifications to be published or to time out.
func (n *KafkaNotifier) Close() {
	n.wg.Wait()
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string, interface{}) {}
