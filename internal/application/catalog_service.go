package application

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/catalog"
	"github.com/tutorly/service-learning/internal/domain/store"
	"github.com/tutorly/service-learning/internal/domain/timeslot"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/authz"
	"github.com/tutorly/service-learning/pkg/clock"
	"go.uber.org/zap"
)

type SetRateRequest struct {
	HourlyRateCents int64  `json:"hourly_rate_cents" binding:"required,gt=0"`
	Currency        string `json:"currency"`
}

type CreateCourseRequest struct {
	Title      string        `json:"title" binding:"required"`
	PriceCents int64         `json:"price_cents" binding:"required,gt=0"`
	Currency   string        `json:"currency"`
	Slots      []SlotRequest `json:"slots" binding:"required,min=1,dive"`
}

// CatalogService manages what teachers sell: their hourly rate, open windows and fixed courses.
type CatalogService struct {
	uow      store.UnitOfWork
	authz    *authz.Authorizer
	clock    clock.Clock
	currency string
	logger   *zap.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(uow store.UnitOfWork, az *authz.Authorizer, clk clock.Clock, defaultCurrency string, logger *zap.Logger) *CatalogService {
	return &CatalogService{uow: uow, authz: az, clock: clk, currency: defaultCurrency, logger: logger}
}

func (s *CatalogService) currencyOr(c string) string {
	if strings.TrimSpace(c) == "" {
		return s.currency
	}
	return c
}

// SetRate publishes or replaces the teacher's hourly rate.
func (s *CatalogService) SetRate(ctx context.Context, actor auth.Actor, req SetRateRequest) (*RateDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectCatalog, authz.ActionManage); err != nil {
		return nil, err
	}
	rate, err := catalog.NewRate(actor.ID, req.HourlyRateCents, s.currencyOr(req.Currency), s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.uow.Repositories().Catalog.UpsertRate(ctx, rate); err != nil {
		return nil, err
	}
	s.logger.Info("teacher rate set",
		zap.String("teacher_id", actor.ID.String()),
		zap.Int64("hourly_rate_cents", rate.HourlyRateCents),
	)
	return &RateDTO{
		TeacherID:       rate.TeacherID,
		HourlyRateCents: rate.HourlyRateCents,
		Currency:        rate.Currency,
		UpdatedAt:       rate.UpdatedAt,
	}, nil
}

// GetRate returns a teacher's published hourly rate.
func (s *CatalogService) GetRate(ctx context.Context, teacherID uuid.UUID) (*RateDTO, error) {
	rate, err := s.uow.Repositories().Catalog.FindRate(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	return &RateDTO{
		TeacherID:       rate.TeacherID,
		HourlyRateCents: rate.HourlyRateCents,
		Currency:        rate.Currency,
		UpdatedAt:       rate.UpdatedAt,
	}, nil
}

// AddAvailability opens a window in which the caller accepts private lessons.
func (s *CatalogService) AddAvailability(ctx context.Context, actor auth.Actor, req SlotRequest) (*AvailabilityDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectCatalog, authz.ActionManage); err != nil {
		return nil, err
	}
	a, err := catalog.NewAvailability(actor.ID, timeslot.New(req.Start, req.End), s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.uow.Repositories().Catalog.SaveAvailability(ctx, a); err != nil {
		return nil, err
	}
	return &AvailabilityDTO{ID: a.ID, TeacherID: a.TeacherID, Start: a.Window.Start, End: a.Window.End}, nil
}

func (s *CatalogService) ListAvailability(ctx context.Context, teacherID uuid.UUID) ([]AvailabilityDTO, error) {
	windows, err := s.uow.Repositories().Catalog.ListAvailability(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	out := make([]AvailabilityDTO, len(windows))
	for i, a := range windows {
		out[i] = AvailabilityDTO{ID: a.ID, TeacherID: a.TeacherID, Start: a.Window.Start, End: a.Window.End}
	}
	return out, nil
}

// CreateCourse publishes a course with a fixed schedule taught by the calling teacher.
func (s *CatalogService) CreateCourse(ctx context.Context, actor auth.Actor, req CreateCourseRequest) (*CourseDTO, error) {
	if err := s.authz.Authorize(actor, authz.ObjectCatalog, authz.ActionManage); err != nil {
		return nil, err
	}
	c, err := catalog.NewCourse(actor.ID, req.Title, req.PriceCents, s.currencyOr(req.Currency), toSlots(req.Slots), s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.uow.Repositories().Catalog.SaveCourse(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("course created",
		zap.String("course_id", c.ID.String()),
		zap.String("teacher_id", actor.ID.String()),
		zap.Int("slots", len(c.Slots)),
	)
	dto := toCourseDTO(c)
	return &dto, nil
}

// GetCourse retrieves a course with its slots.
func (s *CatalogService) GetCourse(ctx context.Context, id uuid.UUID) (*CourseDTO, error) {
	c, err := s.uow.Repositories().Catalog.FindCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toCourseDTO(c)
	return &dto, nil
}
