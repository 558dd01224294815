package payment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorly/service-learning/pkg/domain"
)

var now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestPayment(t *testing.T) *Payment {
	t.Helper()
	bookingID := uuid.New()
	p, err := NewPayment(uuid.New(), Target{Type: TargetBooking, ID: bookingID}, bookingID, 5000, "USD", "pm_card", now)
	require.NoError(t, err)
	return p
}

func TestNewPayment_Validation(t *testing.T) {
	target := Target{Type: TargetBooking, ID: uuid.New()}

	_, err := NewPayment(uuid.New(), target, target.ID, 0, "USD", "", now)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewPayment(uuid.New(), Target{Type: "order", ID: uuid.New()}, uuid.New(), 10, "USD", "", now)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewPayment(uuid.New(), Target{Type: TargetCourse}, uuid.New(), 10, "USD", "", now)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewPayment(uuid.New(), target, uuid.New(), 10, "USD", "", now)
	assert.ErrorIs(t, err, domain.ErrValidation)

	course := Target{Type: TargetCourse, ID: uuid.New()}
	seat := uuid.New()
	p, err := NewPayment(uuid.New(), course, seat, 10, "USD", "", now)
	require.NoError(t, err)
	assert.Equal(t, seat, p.BookingID())
	assert.Equal(t, course, p.Target())
}

func TestMarkCompleted_Idempotent(t *testing.T) {
	p := newTestPayment(t)
	meta := GatewayMeta{MetaCardLast4: "4242"}

	changed, err := p.MarkCompleted("txn_1", meta, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusCompleted, p.Status())

	changed, err = p.MarkCompleted("txn_2", nil, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "txn_1", p.GatewayTransactionID(), "second completion must not overwrite")
	assert.Equal(t, "4242", p.GatewayMeta()[MetaCardLast4])
}

func TestMarkCompleted_RejectsFailed(t *testing.T) {
	p := newTestPayment(t)
	_, err := p.MarkFailed("declined", now)
	require.NoError(t, err)

	_, err = p.MarkCompleted("txn", nil, now)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestMarkFailed(t *testing.T) {
	p := newTestPayment(t)
	changed, err := p.MarkFailed("declined", now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = p.MarkFailed("again", now)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "declined", p.FailureReason())

	done := newTestPayment(t)
	_, err = done.MarkCompleted("txn", nil, now)
	require.NoError(t, err)
	_, err = done.MarkFailed("late", now)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestReconcile_IndependentOfStatus(t *testing.T) {
	admin := uuid.New()
	for _, fail := range []bool{false, true} {
		p := newTestPayment(t)
		if fail {
			_, _ = p.MarkFailed("declined", now)
		}
		before := p.Status()
		p.Reconcile(admin, now)
		assert.True(t, p.Reconciled())
		assert.Equal(t, before, p.Status())
		assert.Equal(t, admin, *p.ReconciledBy())
	}
}

func TestParseGatewayMeta(t *testing.T) {
	meta, err := ParseGatewayMeta(map[string]string{"card_brand": "visa", "card_last4": "4242"})
	require.NoError(t, err)
	assert.Equal(t, "visa", meta[MetaCardBrand])

	_, err = ParseGatewayMeta(map[string]string{"raw_blob": "{}"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewAdjustment(t *testing.T) {
	p := newTestPayment(t)
	_, err := NewAdjustment(p, AdjustmentDisputeRefund, 100, 0, uuid.New(), uuid.New(), now)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "pending payments cannot be adjusted")

	_, err = p.MarkCompleted("txn", nil, now)
	require.NoError(t, err)

	a, err := NewAdjustment(p, AdjustmentDisputeRefund, 50, 0, uuid.New(), uuid.New(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(50), a.AmountCents)

	_, err = NewAdjustment(p, AdjustmentDisputeRefund, 4951, 50, uuid.New(), uuid.New(), now)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, int64(4950), Refundable(5000, 50))
}

func TestAdjustment_Lifecycle(t *testing.T) {
	p := newTestPayment(t)
	_, err := p.MarkCompleted("txn", nil, now)
	require.NoError(t, err)

	a, err := NewAdjustment(p, AdjustmentBookingRefund, 500, 0, uuid.New(), uuid.New(), now)
	require.NoError(t, err)
	assert.Equal(t, AdjustmentPending, a.Status)
	assert.False(t, a.Issued())

	assert.ErrorIs(t, a.MarkIssued(""), domain.ErrValidation)
	require.NoError(t, a.MarkIssued("re_1"))
	assert.True(t, a.Issued())
	assert.Equal(t, "re_1", a.GatewayRefundID)
	assert.ErrorIs(t, a.MarkFailed(), domain.ErrInvalidState, "an issued refund cannot be released")
	assert.ErrorIs(t, a.MarkIssued("re_2"), domain.ErrInvalidState)

	b, err := NewAdjustment(p, AdjustmentBookingRefund, 500, 0, uuid.New(), uuid.New(), now)
	require.NoError(t, err)
	require.NoError(t, b.MarkFailed())
	assert.Equal(t, AdjustmentFailed, b.Status)
}
