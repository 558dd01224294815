// Package catalog holds what teachers publish: hourly rates, availability and fixed-slot courses.
package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/timeslot"
	"github.com/tutorly/service-learning/pkg/domain"
)

type Rate struct {
	TeacherID       uuid.UUID
	HourlyRateCents int64
	Currency        string
	UpdatedAt       time.Time
}

// NewRate validates and creates a teacher rate.
func NewRate(teacherID uuid.UUID, hourlyRateCents int64, currency string, now time.Time) (Rate, error) {
	if hourlyRateCents <= 0 {
		return Rate{}, domain.NewValidationError("hourly_rate", "must be greater than zero")
	}
	if len(currency) != 3 {
		return Rate{}, domain.NewValidationError("currency", "must be a 3-letter code")
	}
	return Rate{
		TeacherID:       teacherID,
		HourlyRateCents: hourlyRateCents,
		Currency:        strings.ToUpper(currency),
		UpdatedAt:       now.UTC(),
	}, nil
}

// PriceFor computes the private lesson price for slots, rounded to the nearest cent.
func (r Rate) PriceFor(slots []timeslot.Slot) int64 {
	var minutes int64
	for _, s := range slots {
		minutes += s.Minutes()
	}
	return (r.HourlyRateCents*minutes + 30) / 60
}

// Availability is a window in which a teacher accepts private lessons.
type Availability struct {
	ID        uuid.UUID
	TeacherID uuid.UUID
	Window    timeslot.Slot
	CreatedAt time.Time
}

func NewAvailability(teacherID uuid.UUID, window timeslot.Slot, now time.Time) (Availability, error) {
	if _, err := timeslot.Normalize([]timeslot.Slot{window}); err != nil {
		return Availability{}, err
	}
	return Availability{ID: uuid.New(), TeacherID: teacherID, Window: window, CreatedAt: now.UTC()}, nil
}

// Course is a fixed schedule sold at a flat price. Every student shares its slots.
type Course struct {
	ID         uuid.UUID
	TeacherID  uuid.UUID
	Title      string
	PriceCents int64
	Currency   string
	Slots      []timeslot.Slot
	CreatedAt  time.Time
}

// NewCourse creates a course. Slots are sorted and must not overlap.
func NewCourse(teacherID uuid.UUID, title string, priceCents int64, currency string, slots []timeslot.Slot, now time.Time) (*Course, error) {
	fields := map[string]string{}
	title = strings.TrimSpace(title)
	if title == "" {
		fields["title"] = "is required"
	}
	if priceCents <= 0 {
		fields["price"] = "must be greater than zero"
	}
	if len(currency) != 3 {
		fields["currency"] = "must be a 3-letter code"
	}
	if len(fields) > 0 {
		return nil, domain.NewValidationErrors(fields)
	}
	normalized, err := timeslot.Normalize(slots)
	if err != nil {
		return nil, err
	}
	return &Course{
		ID:         uuid.New(),
		TeacherID:  teacherID,
		Title:      title,
		PriceCents: priceCents,
		Currency:   strings.ToUpper(currency),
		Slots:      normalized,
		CreatedAt:  now.UTC(),
	}, nil
}
