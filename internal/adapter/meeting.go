package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/session"
	"github.com/tutorly/service-learning/pkg/domain"
	"go.uber.org/zap"
)

// MeetingRequest asks the video provider for one room covering a single slot.
type MeetingRequest struct {
	BookingID uuid.UUID
	SlotIndex int
	HostID    uuid.UUID
	Start     time.Time
	End       time.Time
}

// MeetingProvider creates video meetings. Meeting identifiers are never reused across slots.
type MeetingProvider interface {
	CreateMeeting(ctx context.Context, req MeetingRequest) (session.Meeting, error)
}

// MockMeetingProvider hands out deterministic-looking rooms under baseURL.
type MockMeetingProvider struct {
	baseURL string
	logger  *zap.Logger
}

// NewMockMeetingProvider creates a provider that mints links under baseURL.
func NewMockMeetingProvider(baseURL string, logger *zap.Logger) *MockMeetingProvider {
	return &MockMeetingProvider{baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

func (p *MockMeetingProvider) CreateMeeting(ctx context.Context, req MeetingRequest) (session.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return session.Meeting{}, domain.NewExternalServiceError("meeting provider", err)
	}
	id := fmt.Sprintf("mtg_%s", uuid.New().String()[:12])
	m := session.Meeting{
		MeetingID: id,
		JoinURL:   fmt.Sprintf("%s/j/%s", p.baseURL, id),
		HostURL:   fmt.Sprintf("%s/h/%s?host=%s", p.baseURL, id, req.HostID),
	}
	p.logger.Info("[MOCK MEETING] meeting created",
		zap.String("booking_id", req.BookingID.String()),
		zap.Int("slot_index", req.SlotIndex),
		zap.String("meeting_id", id),
	)
	return m, nil
}
