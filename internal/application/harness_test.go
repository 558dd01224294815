package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tutorly/service-learning/internal/adapter"
	"github.com/tutorly/service-learning/internal/application"
	"github.com/tutorly/service-learning/internal/domain/booking"
	"github.com/tutorly/service-learning/internal/domain/session"
	"github.com/tutorly/service-learning/internal/domain/timeslot"
	"github.com/tutorly/service-learning/internal/repository"
	"github.com/tutorly/service-learning/internal/testutil"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/authz"
	"github.com/tutorly/service-learning/pkg/clock"
	"github.com/tutorly/service-learning/pkg/lock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// recordingMeetings counts provider calls and fails the slot indexes listed in fail.
// onCall, when set, runs before each call.
type recordingMeetings struct {
	mu     sync.Mutex
	calls  int
	fail   map[int]bool
	onCall func()
}

func (m *recordingMeetings) CreateMeeting(ctx context.Context, req adapter.MeetingRequest) (session.Meeting, error) {
	m.mu.Lock()
	m.calls++
	fail := m.fail[req.SlotIndex]
	onCall := m.onCall
	m.mu.Unlock()
	if onCall != nil {
		onCall()
	}
	if err := ctx.Err(); err != nil {
		return session.Meeting{}, err
	}
	if fail {
		return session.Meeting{}, errors.New("provider unavailable")
	}
	id := "mtg_test_" + uuid.NewString()[:8]
	return session.Meeting{MeetingID: id, JoinURL: "https://meet.test/j/" + id, HostURL: "https://meet.test/h/" + id}, nil
}

func (m *recordingMeetings) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// countingGateway counts distinct refunds created at the processor and every refund call made.
type countingGateway struct {
	*adapter.MockGateway
	mu      sync.Mutex
	refunds map[string]bool
	calls   int
}

func (g *countingGateway) Refund(ctx context.Context, req adapter.RefundRequest) (string, error) {
	id, err := g.MockGateway.Refund(ctx, req)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if err == nil {
		g.refunds[id] = true
	}
	return id, err
}

func (g *countingGateway) Refunds() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

func (g *countingGateway) RefundCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type harness struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	meetings *recordingMeetings
	gateway  *countingGateway

	catalog  *application.CatalogService
	bookings *application.BookingService
	payments *application.PaymentService
	sessions *application.SessionService
	disputes *application.DisputeService
	wallet   *application.WalletService

	teacher auth.Actor
	student auth.Actor
	admin   auth.Actor
	system  auth.Actor
}

const paymentTTL = 4 * time.Hour

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	uow := repository.NewUnitOfWork(db)
	az := authz.MustNew()
	clk := clock.NewFakeClock(testutil.At(0, 0))
	logger := zap.NewNop()
	notifier := adapter.NopNotifier{}
	locker := lock.NewLocalLocker()
	meetings := &recordingMeetings{fail: map[int]bool{}}
	gateway := &countingGateway{MockGateway: adapter.NewMockGateway(0, logger), refunds: map[string]bool{}}

	sessions := application.NewSessionService(uow, az, meetings, notifier, nil, clk, time.Second, logger)
	payments := application.NewPaymentService(uow, az, gateway, sessions, notifier, nil, clk, time.Second, logger)
	return &harness{
		db:       db,
		clock:    clk,
		meetings: meetings,
		gateway:  gateway,
		catalog:  application.NewCatalogService(uow, az, clk, "USD", logger),
		bookings: application.NewBookingService(uow, az, locker, payments, notifier, nil, clk,
			application.BookingPolicy{PlatformFeePercent: 15, LockWait: 5 * time.Second, PaymentTTL: paymentTTL}, logger),
		payments: payments,
		sessions: sessions,
		disputes: application.NewDisputeService(uow, az, payments, notifier, clk, logger),
		wallet:   application.NewWalletService(uow, az, locker, notifier, nil, clk, "USD", 5*time.Second, logger),
		teacher:  auth.Actor{ID: uuid.New(), Role: auth.RoleTeacher},
		student:  auth.Actor{ID: uuid.New(), Role: auth.RoleStudent},
		admin:    auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin},
		system:   auth.SystemActor(),
	}
}

func slotReq(startH, endH int) application.SlotRequest {
	return application.SlotRequest{Start: testutil.At(startH, 0), End: testutil.At(endH, 0)}
}

// course publishes a course by h.teacher with one slot per pair of hours.
func (h *harness) course(t *testing.T, priceCents int64, hours ...[2]int) *application.CourseDTO {
	t.Helper()
	slots := make([]application.SlotRequest, len(hours))
	for i, hh := range hours {
		slots[i] = slotReq(hh[0], hh[1])
	}
	c, err := h.catalog.CreateCourse(context.Background(), h.teacher, application.CreateCourseRequest{
		Title:      "Intro to Go",
		PriceCents: priceCents,
		Slots:      slots,
	})
	require.NoError(t, err)
	return c
}

// privateTeacher gives h.teacher an hourly rate and one open window from hour 24 to hour 72.
func (h *harness) privateTeacher(t *testing.T, hourlyCents int64) {
	t.Helper()
	ctx := context.Background()
	_, err := h.catalog.SetRate(ctx, h.teacher, application.SetRateRequest{HourlyRateCents: hourlyCents})
	require.NoError(t, err)
	_, err = h.catalog.AddAvailability(ctx, h.teacher, slotReq(24, 72))
	require.NoError(t, err)
}

func (h *harness) bookPrivate(t *testing.T, student auth.Actor, slots ...application.SlotRequest) *application.BookingDTO {
	t.Helper()
	b, err := h.bookings.CreateBooking(context.Background(), student, application.CreateBookingRequest{
		TeacherID: &h.teacher.ID,
		Slots:     slots,
	})
	require.NoError(t, err)
	return b
}

// pay records an attempt for the booking and settles it as the gateway would.
func (h *harness) pay(t *testing.T, b *application.BookingDTO) *application.PaymentDTO {
	t.Helper()
	p := h.attempt(t, b, "pm_card_visa")
	settled, err := h.payments.MarkCompleted(context.Background(), h.system, p.ID, application.SettlePaymentRequest{
		GatewayRef:  "ch_test_" + p.ID.String()[:8],
		GatewayMeta: map[string]string{"card_brand": "visa", "card_last4": "4242"},
	})
	require.NoError(t, err)
	return settled
}

func (h *harness) attempt(t *testing.T, b *application.BookingDTO, method string) *application.PaymentDTO {
	t.Helper()
	p, err := h.payments.RecordAttempt(context.Background(), auth.Actor{ID: b.StudentID, Role: auth.RoleStudent}, application.RecordPaymentRequest{
		TargetType:    "booking",
		TargetID:      b.ID,
		AmountCents:   b.TotalCents,
		PaymentMethod: method,
	})
	require.NoError(t, err)
	return p
}

// completedBooking stores a finished booking for teacherID whose whole price is the teacher's earning.
func (h *harness) completedBooking(t *testing.T, teacherID uuid.UUID, earningCents int64) {
	t.Helper()
	h.completedBookingIn(t, teacherID, earningCents, "USD")
}

func (h *harness) completedBookingIn(t *testing.T, teacherID uuid.UUID, earningCents int64, currency string) {
	t.Helper()
	now := h.clock.Now()
	b, err := booking.NewBooking(uuid.New(), teacherID, nil,
		[]timeslot.Slot{timeslot.New(testutil.At(1, 0), testutil.At(2, 0))}, earningCents, currency, 0, now)
	require.NoError(t, err)
	_, err = b.Confirm(now)
	require.NoError(t, err)
	_, err = b.Complete(now)
	require.NoError(t, err)
	require.NoError(t, repository.NewBookingRepository(h.db).Save(context.Background(), b))
}

func (h *harness) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Table(table).Count(&n).Error)
	return n
}
