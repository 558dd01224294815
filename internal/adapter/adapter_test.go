package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorly/service-learning/pkg/domain"
	"github.com/tutorly/service-learning/pkg/events"
	"github.com/tutorly/service-learning/pkg/kafka"
	"go.uber.org/zap"
)

func TestMockGateway_Charge(t *testing.T) {
	g := NewMockGateway(0, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name      string
		method    string
		succeeded bool
		wantErr   error
	}{
		{"success", "pm_card_visa", true, nil},
		{"decline is a result", "pm_decline_insufficient", false, nil},
		{"transport failure", "pm_error_reset", false, domain.ErrExternalService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := g.Charge(ctx, ChargeRequest{
				PaymentID:     uuid.New(),
				AmountCents:   5000,
				Currency:      "USD",
				PaymentMethod: tt.method,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.succeeded, res.Succeeded)
			if tt.succeeded {
				assert.True(t, strings.HasPrefix(res.TransactionID, "ch_mock_"))
				assert.Equal(t, "4242", res.Meta["card_last4"])
			} else {
				assert.Equal(t, "card_declined", res.FailureReason)
			}
		})
	}
}

func TestMockGateway_HangRespectsDeadline(t *testing.T) {
	g := NewMockGateway(0, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.Charge(ctx, ChargeRequest{PaymentID: uuid.New(), AmountCents: 1, PaymentMethod: "pm_hang"})
	assert.ErrorIs(t, err, domain.ErrExternalService)
	assert.Less(t, time.Since(start), time.Second)
}

func TestMockGateway_Refund(t *testing.T) {
	g := NewMockGateway(0, zap.NewNop())

	id, err := g.Refund(context.Background(), RefundRequest{TransactionID: "ch_mock_1", AmountCents: 100, IdempotencyKey: "adj-1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "re_mock_"))

	again, err := g.Refund(context.Background(), RefundRequest{TransactionID: "ch_mock_1", AmountCents: 100, IdempotencyKey: "adj-1"})
	require.NoError(t, err)
	assert.Equal(t, id, again, "same key, same refund")

	other, err := g.Refund(context.Background(), RefundRequest{TransactionID: "ch_mock_1", AmountCents: 100, IdempotencyKey: "adj-2"})
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	_, err = g.Refund(context.Background(), RefundRequest{AmountCents: 100})
	assert.ErrorIs(t, err, domain.ErrExternalService)
}

func TestMockMeetingProvider(t *testing.T) {
	p := NewMockMeetingProvider("https://meet.test/", zap.NewNop())
	host := uuid.New()
	req := MeetingRequest{BookingID: uuid.New(), SlotIndex: 0, HostID: host}

	a, err := p.CreateMeeting(context.Background(), req)
	require.NoError(t, err)
	b, err := p.CreateMeeting(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, a.MeetingID, b.MeetingID, "meeting ids are never reused")
	assert.Equal(t, "https://meet.test/j/"+a.MeetingID, a.JoinURL)
	assert.Contains(t, a.HostURL, host.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.CreateMeeting(ctx, req)
	assert.ErrorIs(t, err, domain.ErrExternalService)
}

type capturePublisher struct {
	mu    sync.Mutex
	topic string
	event kafka.CloudEvent
	err   error
}

func (c *capturePublisher) PublishEvent(_ context.Context, topic string, ce kafka.CloudEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topic = topic
	c.event = ce
	return c.err
}

// hungPublisher blocks until its context gives up and reports how it ended.
type hungPublisher struct {
	calls atomic.Int32
	ended chan error
}

func (h *hungPublisher) PublishEvent(ctx context.Context, _ string, _ kafka.CloudEvent) error {
	h.calls.Add(1)
	<-ctx.Done()
	h.ended <- ctx.Err()
	return ctx.Err()
}

func TestKafkaNotifier(t *testing.T) {
	pub := &capturePublisher{}
	n := NewKafkaNotifier(pub, "learning", time.Second, 4, zap.NewNop())
	payoutID := uuid.New()

	n.Notify(context.Background(), events.NotifyPayoutSent, payoutID.String(), map[string]int64{"amount_cents": 500})
	n.Close()

	assert.Equal(t, events.TopicNotifications, pub.topic)
	assert.Equal(t, events.NotifyPayoutSent, pub.event.Type)
	assert.Equal(t, "learning", pub.event.Source)
	assert.Equal(t, payoutID.String(), pub.event.Subject)

	var data map[string]int64
	require.NoError(t, pub.event.ParseData(&data))
	assert.Equal(t, int64(500), data["amount_cents"])
}

func TestKafkaNotifier_SwallowsPublishErrors(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	n := NewKafkaNotifier(pub, "learning", time.Second, 4, zap.NewNop())

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), events.NotifySessionStarted, "s-1", struct{}{})
		n.Close()
	})
	assert.Equal(t, events.NotifySessionStarted, pub.event.Type)
}

func TestKafkaNotifier_HungBrokerDoesNotBlockCaller(t *testing.T) {
	pub := &hungPublisher{ended: make(chan error, 1)}
	n := NewKafkaNotifier(pub, "learning", 50*time.Millisecond, 4, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	started := time.Now()
	n.Notify(ctx, events.NotifyBookingConfirmed, "b-1", struct{}{})
	assert.Less(t, time.Since(started), 40*time.Millisecond)

	// The request finishing does not cut the publish short; its own timeout does.
	cancel()
	select {
	case err := <-pub.ended:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("publish was never bounded")
	}
	n.Close()
}

func TestKafkaNotifier_DropsBeyondMaxInFlight(t *testing.T) {
	pub := &hungPublisher{ended: make(chan error, 2)}
	n := NewKafkaNotifier(pub, "learning", 100*time.Millisecond, 1, zap.NewNop())

	n.Notify(context.Background(), events.NotifyPayoutSent, "p-1", struct{}{})
	n.Notify(context.Background(), events.NotifyPayoutSent, "p-2", struct{}{})
	n.Close()

	assert.Equal(t, int32(1), pub.calls.Load())
}
