//go:build integration

package main_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorly/service-learning/internal/application"
	"github.com/tutorly/service-learning/internal/repository"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/events"
)

func actors() (teacher, student auth.Actor) {
	return auth.Actor{ID: uuid.New(), Role: auth.RoleTeacher}, auth.Actor{ID: uuid.New(), Role: auth.RoleStudent}
}

// TestGatewaySucceeded_ConfirmsBooking verifies that a charge-succeeded event settles the payment,
// confirms the booking, materializes its session and emits a booking-confirmed notification.
func TestGatewaySucceeded_ConfirmsBooking(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupLearningStack(t, infra)
	defer stack.CleanupProducer()
	defer func() { _ = stack.Consumer.Close() }()

	teacher, student := actors()
	p := seedPendingPayment(t, stack, teacher, student)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stack.Consumer.Start(ctx) }()
	time.Sleep(3 * time.Second) // Wait for consumer group join.

	evt := events.ChargeSucceededEvent{
		PaymentID:     p.ID,
		TransactionID: "ch_int_0001",
		Meta:          map[string]string{"card_last4": "4242"},
		OccurredAt:    time.Now().UTC(),
	}
	publishTestEvent(t, infra.KafkaBrokers, events.TopicGatewayEvents, "payment-gateway", events.GatewayChargeSucceeded, evt)
	// Redelivery must be harmless.
	publishTestEvent(t, infra.KafkaBrokers, events.TopicGatewayEvents, "payment-gateway", events.GatewayChargeSucceeded, evt)

	model := waitForPaymentStatus(t, infra.DB, p.ID, "completed", 15*time.Second)
	assert.Equal(t, "ch_int_0001", model.GatewayTransactionID)
	assert.NotNil(t, model.CompletedAt)

	b, err := stack.Bookings.GetBooking(context.Background(), student, p.BookingID)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", b.Status)

	require.Eventually(t, func() bool {
		var count int64
		infra.DB.Model(&repository.SessionModel{}).Where("booking_id = ?", p.BookingID).Count(&count)
		return count == 1
	}, 5*time.Second, 200*time.Millisecond, "expected exactly one session")

	var transitions int64
	infra.DB.Model(&repository.BookingTransitionModel{}).
		Where("booking_id = ? AND to_status = ?", p.BookingID, "confirmed").Count(&transitions)
	assert.Equal(t, int64(1), transitions, "booking confirmed exactly once")

	ce := consumeOneEvent(t, infra.KafkaBrokers, events.TopicNotifications, events.NotifyBookingConfirmed, 15*time.Second)
	assert.Equal(t, p.BookingID.String(), ce.Subject)
}

// TestGatewayFailed_LeavesBookingPending verifies that a charge-failed event marks the payment failed
// without touching the booking.
func TestGatewayFailed_LeavesBookingPending(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupLearningStack(t, infra)
	defer stack.CleanupProducer()
	defer func() { _ = stack.Consumer.Close() }()

	teacher, student := actors()
	p := seedPendingPayment(t, stack, teacher, student)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stack.Consumer.Start(ctx) }()
	time.Sleep(3 * time.Second)

	publishTestEvent(t, infra.KafkaBrokers, events.TopicGatewayEvents, "payment-gateway", events.GatewayChargeFailed,
		events.ChargeFailedEvent{PaymentID: p.ID, Reason: "insufficient_funds", OccurredAt: time.Now().UTC()})

	model := waitForPaymentStatus(t, infra.DB, p.ID, "failed", 15*time.Second)
	assert.Equal(t, "insufficient_funds", model.FailureReason)

	b, err := stack.Bookings.GetBooking(context.Background(), student, p.BookingID)
	require.NoError(t, err)
	assert.Equal(t, "pending", b.Status)

	var count int64
	infra.DB.Model(&repository.SessionModel{}).Where("booking_id = ?", p.BookingID).Count(&count)
	assert.Equal(t, int64(0), count, "no sessions for an unpaid booking")
}

// TestUnknownPayment_DoesNotBlockConsumer verifies that an event for a missing payment is skipped
// and later events are still processed.
func TestUnknownPayment_DoesNotBlockConsumer(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupLearningStack(t, infra)
	defer stack.CleanupProducer()
	defer func() { _ = stack.Consumer.Close() }()

	teacher, student := actors()
	p := seedPendingPayment(t, stack, teacher, student)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stack.Consumer.Start(ctx) }()
	time.Sleep(3 * time.Second)

	publishTestEvent(t, infra.KafkaBrokers, events.TopicGatewayEvents, "payment-gateway", events.GatewayChargeSucceeded,
		events.ChargeSucceededEvent{PaymentID: uuid.New(), TransactionID: "ch_ghost", OccurredAt: time.Now().UTC()})
	publishTestEvent(t, infra.KafkaBrokers, events.TopicGatewayEvents, "payment-gateway", events.GatewayChargeSucceeded,
		events.ChargeSucceededEvent{PaymentID: p.ID, TransactionID: "ch_real", OccurredAt: time.Now().UTC()})

	waitForPaymentStatus(t, infra.DB, p.ID, "completed", 15*time.Second)
}

// TestConcurrentPayouts_NeverOverdraw races payout requests across the Redis lock and the wallet
// version row on PostgreSQL.
func TestConcurrentPayouts_NeverOverdraw(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupLearningStack(t, infra)
	defer stack.CleanupProducer()

	teacher, _ := actors()
	seedCompletedEarning(t, infra.DB, teacher.ID, 10000)

	const requests = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := stack.Wallet.RequestPayout(context.Background(), teacher,
				application.RequestPayoutRequest{AmountCents: 3000})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded, "only three 3000 payouts fit in 10000")

	balance, err := stack.Wallet.ComputeBalance(context.Background(), teacher, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.AvailableCents)
}
