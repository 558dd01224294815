package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/catalog"
	"github.com/tutorly/service-learning/internal/domain/timeslot"
	"github.com/tutorly/service-learning/pkg/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TeacherRateModel struct {
	TeacherID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	HourlyRateCents int64     `gorm:"not null"`
	Currency        string    `gorm:"type:varchar(3);not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (TeacherRateModel) TableName() string { return "teacher_rates" }

type AvailabilityModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeacherID uuid.UUID `gorm:"type:uuid;not null;index"`
	StartAt   time.Time `gorm:"not null"`
	EndAt     time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (AvailabilityModel) TableName() string { return "teacher_availability" }

type CourseModel struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	TeacherID  uuid.UUID         `gorm:"type:uuid;not null;index"`
	Title      string            `gorm:"type:varchar(255);not null"`
	PriceCents int64             `gorm:"not null"`
	Currency   string            `gorm:"type:varchar(3);not null"`
	CreatedAt  time.Time         `gorm:"not null"`
	Slots      []CourseSlotModel `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE"`
}

func (CourseModel) TableName() string { return "courses" }

type CourseSlotModel struct {
	CourseID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	SlotIndex int       `gorm:"primaryKey"`
	StartAt   time.Time `gorm:"not null"`
	EndAt     time.Time `gorm:"not null"`
}

func (CourseSlotModel) TableName() string { return "course_slots" }

type CatalogRepositoryImpl struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new GORM-backed catalog repository.
func NewCatalogRepository(db *gorm.DB) *CatalogRepositoryImpl {
	return &CatalogRepositoryImpl{db: db}
}

// FindRate retrieves a teacher's hourly rate.
func (r *CatalogRepositoryImpl) FindRate(ctx context.Context, teacherID uuid.UUID) (catalog.Rate, error) {
	var m TeacherRateModel
	if err := r.db.WithContext(ctx).Where("teacher_id = ?", teacherID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return catalog.Rate{}, domain.NewNotFoundError("Rate for teacher", teacherID.String())
		}
		return catalog.Rate{}, err
	}
	return catalog.Rate{
		TeacherID:       m.TeacherID,
		HourlyRateCents: m.HourlyRateCents,
		Currency:        m.Currency,
		UpdatedAt:       m.UpdatedAt,
	}, nil
}

// UpsertRate creates or replaces a teacher's hourly rate.
func (r *CatalogRepositoryImpl) UpsertRate(ctx context.Context, rate catalog.Rate) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "teacher_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"hourly_rate_cents", "currency", "updated_at"}),
	}).Create(&TeacherRateModel{
		TeacherID:       rate.TeacherID,
		HourlyRateCents: rate.HourlyRateCents,
		Currency:        rate.Currency,
		UpdatedAt:       rate.UpdatedAt,
	}).Error
}

// SaveAvailability persists an availability window.
func (r *CatalogRepositoryImpl) SaveAvailability(ctx context.Context, a catalog.Availability) error {
	return r.db.WithContext(ctx).Create(&AvailabilityModel{
		ID:        a.ID,
		TeacherID: a.TeacherID,
		StartAt:   a.Window.Start,
		EndAt:     a.Window.End,
		CreatedAt: a.CreatedAt,
	}).Error
}

// ListAvailability retrieves a teacher's availability windows, earliest first.
func (r *CatalogRepositoryImpl) ListAvailability(ctx context.Context, teacherID uuid.UUID) ([]catalog.Availability, error) {
	var models []AvailabilityModel
	if err := r.db.WithContext(ctx).Where("teacher_id = ?", teacherID).Order("start_at").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]catalog.Availability, len(models))
	for i, m := range models {
		out[i] = catalog.Availability{
			ID:        m.ID,
			TeacherID: m.TeacherID,
			Window:    timeslot.New(m.StartAt, m.EndAt),
			CreatedAt: m.CreatedAt,
		}
	}
	return out, nil
}

// Covers reports whether one availability window contains slot.
func (r *CatalogRepositoryImpl) Covers(ctx context.Context, teacherID uuid.UUID, slot timeslot.Slot) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&AvailabilityModel{}).
		Where("teacher_id = ? AND start_at <= ? AND end_at >= ?", teacherID, slot.Start, slot.End).
		Count(&count).Error
	return count > 0, err
}

// SaveCourse persists a new course with its slots.
func (r *CatalogRepositoryImpl) SaveCourse(ctx context.Context, c *catalog.Course) error {
	slots := make([]CourseSlotModel, len(c.Slots))
	for i, s := range c.Slots {
		slots[i] = CourseSlotModel{CourseID: c.ID, SlotIndex: i, StartAt: s.Start, EndAt: s.End}
	}
	return r.db.WithContext(ctx).Create(&CourseModel{
		ID:         c.ID,
		TeacherID:  c.TeacherID,
		Title:      c.Title,
		PriceCents: c.PriceCents,
		Currency:   c.Currency,
		CreatedAt:  c.CreatedAt,
		Slots:      slots,
	}).Error
}

// FindCourse retrieves a course with its slots.
func (r *CatalogRepositoryImpl) FindCourse(ctx context.Context, id uuid.UUID) (*catalog.Course, error) {
	var m CourseModel
	if err := r.db.WithContext(ctx).
		Preload("Slots", func(db *gorm.DB) *gorm.DB { return db.Order("slot_index") }).
		Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, "Course", id)
	}
	slots := make([]timeslot.Slot, len(m.Slots))
	for i, s := range m.Slots {
		slots[i] = timeslot.New(s.StartAt, s.EndAt)
	}
	return &catalog.Course{
		ID:         m.ID,
		TeacherID:  m.TeacherID,
		Title:      m.Title,
		PriceCents: m.PriceCents,
		Currency:   m.Currency,
		Slots:      slots,
		CreatedAt:  m.CreatedAt,
	}, nil
}
