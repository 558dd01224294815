package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/session"
	"github.com/tutorly/service-learning/pkg/domain"
	"gorm.io/gorm"
)

// SessionModel is the GORM persistence model for the sessions table.
type SessionModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	BookingID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_sessions_booking_slot,priority:1"`
	SlotIndex         int       `gorm:"not null;uniqueIndex:ux_sessions_booking_slot,priority:2"`
	TeacherID         uuid.UUID `gorm:"type:uuid;not null;index"`
	ScheduledStart    time.Time `gorm:"not null"`
	ScheduledEnd      time.Time `gorm:"not null"`
	MeetingID         string    `gorm:"type:varchar(255)"`
	JoinURL           string    `gorm:"type:text"`
	HostURL           string    `gorm:"type:text"`
	ProvisioningError string    `gorm:"type:text"`
	Status            string    `gorm:"type:varchar(20);not null"`
	StartedAt         *time.Time
	EndedAt           *time.Time
	CancelledAt       *time.Time
	Version           int64     `gorm:"not null;default:1"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (SessionModel) TableName() string { return "sessions" }

type SessionRepositoryImpl struct {
	db *gorm.DB
}

// NewSessionRepository creates a new GORM-backed session repository.
func NewSessionRepository(db *gorm.DB) *SessionRepositoryImpl {
	return &SessionRepositoryImpl{db: db}
}

// FindByID retrieves a session by its unique identifier.
func (r *SessionRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	var model SessionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFound(err, "Session", id)
	}
	return sessionToDomain(&model), nil
}

// ListByBooking retrieves a booking's sessions in slot order.
func (r *SessionRepositoryImpl) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*session.Session, error) {
	var models []SessionModel
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Order("slot_index").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*session.Session, len(models))
	for i := range models {
		out[i] = sessionToDomain(&models[i])
	}
	return out, nil
}

// Save persists a new session.
func (r *SessionRepositoryImpl) Save(ctx context.Context, s *session.Session) error {
	if err := r.db.WithContext(ctx).Create(sessionToModel(s)).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError("session already exists for this booking slot")
		}
		return err
	}
	return nil
}

// Update persists status changes. Meeting fields are written only at creation.
func (r *SessionRepositoryImpl) Update(ctx context.Context, s *session.Session) error {
	model := sessionToModel(s)
	result := r.db.WithContext(ctx).
		Model(&SessionModel{}).
		Where("id = ? AND version = ?", model.ID, s.Version()-1).
		Select("status", "started_at", "ended_at", "cancelled_at", "version", "updated_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("session was modified by another transaction")
	}
	return nil
}

func sessionToDomain(m *SessionModel) *session.Session {
	return session.Reconstitute(
		m.ID, m.BookingID, m.TeacherID,
		m.SlotIndex,
		m.ScheduledStart, m.ScheduledEnd,
		session.Meeting{MeetingID: m.MeetingID, JoinURL: m.JoinURL, HostURL: m.HostURL},
		m.ProvisioningError,
		session.Status(m.Status),
		m.StartedAt, m.EndedAt, m.CancelledAt,
		m.Version,
		m.CreatedAt, m.UpdatedAt,
	)
}

func sessionToModel(s *session.Session) *SessionModel {
	meeting := s.Meeting()
	return &SessionModel{
		ID:                s.ID(),
		BookingID:         s.BookingID(),
		SlotIndex:         s.SlotIndex(),
		TeacherID:         s.TeacherID(),
		ScheduledStart:    s.ScheduledStart(),
		ScheduledEnd:      s.ScheduledEnd(),
		MeetingID:         meeting.MeetingID,
		JoinURL:           meeting.JoinURL,
		HostURL:           meeting.HostURL,
		ProvisioningError: s.ProvisioningError(),
		Status:            string(s.Status()),
		StartedAt:         s.StartedAt(),
		EndedAt:           s.EndedAt(),
		CancelledAt:       s.CancelledAt(),
		Version:           s.Version(),
		CreatedAt:         s.CreatedAt(),
		UpdatedAt:         s.UpdatedAt(),
	}
}
