// Package events defines the topics, CloudEvent types and payloads exchanged over Kafka.
package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	// TopicGatewayEvents carries asynchronous charge outcomes from the payment gateway.
	TopicGatewayEvents = "payment.gateway.events"
	// TopicNotifications carries user-facing notifications. Delivery is best effort.
	TopicNotifications = "learning.notifications"
)

const (
	GatewayChargeSucceeded = "gateway.charge.succeeded"
	GatewayChargeFailed    = "gateway.charge.failed"

	NotifyBookingConfirmed = "learning.booking.confirmed"
	NotifyBookingCancelled = "learning.booking.cancelled"
	NotifySessionStarted   = "learning.session.started"
	NotifyDisputeResolved  = "learning.dispute.resolved"
	NotifyPayoutSent       = "learning.payout.sent"
)

// ChargeSucceededEvent reports a settled charge for a payment attempt.
type ChargeSucceededEvent struct {
	PaymentID     uuid.UUID         `json:"payment_id"`
	TransactionID string            `json:"transaction_id"`
	Meta          map[string]string `json:"meta,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// ChargeFailedEvent reports a declined or errored charge.
type ChargeFailedEvent struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

type BookingConfirmedEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	StudentID  uuid.UUID `json:"student_id"`
	TeacherID  uuid.UUID `json:"teacher_id"`
	Sessions   int       `json:"sessions"`
	OccurredAt time.Time `json:"occurred_at"`
}

type BookingCancelledEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	StudentID  uuid.UUID `json:"student_id"`
	TeacherID  uuid.UUID `json:"teacher_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type SessionStartedEvent struct {
	SessionID  uuid.UUID `json:"session_id"`
	BookingID  uuid.UUID `json:"booking_id"`
	JoinURL    string    `json:"join_url,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type DisputeResolvedEvent struct {
	DisputeID   uuid.UUID `json:"dispute_id"`
	BookingID   uuid.UUID `json:"booking_id"`
	Resolution  string    `json:"resolution"`
	AmountCents *int64    `json:"amount_cents,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type PayoutSentEvent struct {
	PayoutID    uuid.UUID `json:"payout_id"`
	TeacherID   uuid.UUID `json:"teacher_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Reference   string    `json:"reference"`
	OccurredAt  time.Time `json:"occurred_at"`
}
