// Package metrics exposes Prometheus instruments for the learning service.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tutorly/service-learning/pkg/domain"
)

const (
	OutcomeOK        = "ok"
	OutcomeDeclined  = "declined"
	OutcomeTimeout   = "timeout"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
	OutcomeForbidden = "forbidden"
	OutcomeExternal  = "external_error"
	OutcomeError     = "error"
)

// Metrics groups the service's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry           *prometheus.Registry
	bookingTransitions *prometheus.CounterVec
	payments           *prometheus.CounterVec
	gatewayDuration    *prometheus.HistogramVec
	sessions           *prometheus.CounterVec
	payouts            *prometheus.CounterVec
	expiredBookings    prometheus.Counter
	settlementEvents   *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, together with the Go and process collectors.
func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	labels := prometheus.Labels{"service": service}

	m := &Metrics{
		registry: reg,
		bookingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "learning_booking_transitions_total",
			Help:        "Booking status transitions by target status.",
			ConstLabels: labels,
		}, []string{"to"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "learning_payments_total",
			Help:        "Payment attempts by final outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "learning_gateway_call_duration_seconds",
			Help:        "Latency of calls to the payment gateway.",
			ConstLabels: labels,
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation", "outcome"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "learning_sessions_materialized_total",
			Help:        "Sessions created, split by whether a meeting was provisioned.",
			ConstLabels: labels,
		}, []string{"provisioned"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "learning_payout_requests_total",
			Help:        "Payout requests by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		expiredBookings: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "learning_expired_bookings_total",
			Help:        "Pending bookings cancelled by the expiry job.",
			ConstLabels: labels,
		}),
		settlementEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "learning_settlement_events_total",
			Help:        "Gateway settlement events consumed, by type and outcome.",
			ConstLabels: labels,
		}, []string{"type", "outcome"}),
	}
	reg.MustRegister(
		m.bookingTransitions,
		m.payments,
		m.gatewayDuration,
		m.sessions,
		m.payouts,
		m.expiredBookings,
		m.settlementEvents,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) BookingTransition(to string) {
	if m == nil {
		return
	}
	m.bookingTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) Payment(outcome string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GatewayCall(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(operation, Classify(err)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) SessionMaterialized(provisioned bool) {
	if m == nil {
		return
	}
	label := "false"
	if provisioned {
		label = "true"
	}
	m.sessions.WithLabelValues(label).Inc()
}

func (m *Metrics) PayoutRequest(err error) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(Classify(err)).Inc()
}

func (m *Metrics) BookingsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expiredBookings.Add(float64(n))
}

func (m *Metrics) SettlementEvent(eventType string, err error) {
	if m == nil {
		return
	}
	m.settlementEvents.WithLabelValues(eventType, Classify(err)).Inc()
}

// Classify maps an error to a bounded outcome label.
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, domain.ErrExternalService):
		return OutcomeExternal
	case errors.Is(err, domain.ErrPaymentDeclined):
		return OutcomeDeclined
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrUnauthorized):
		return OutcomeForbidden
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrSlotConflict):
		return OutcomeConflict
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotFound):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
