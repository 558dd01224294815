package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/domain/booking"
	"github.com/tutorly/service-learning/internal/domain/timeslot"
	"github.com/tutorly/service-learning/pkg/domain"
	"gorm.io/gorm"
)

// BookingModel is the GORM persistence model for the bookings table.
type BookingModel struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey"`
	StudentID           uuid.UUID  `gorm:"type:uuid;not null;index"`
	TeacherID           uuid.UUID  `gorm:"type:uuid;not null;index"`
	CourseID            *uuid.UUID `gorm:"type:uuid;index"`
	Status              string     `gorm:"type:varchar(20);not null;index"`
	TotalCents          int64      `gorm:"not null"`
	PlatformFeeCents    int64      `gorm:"not null"`
	TeacherEarningCents int64      `gorm:"not null"`
	Currency            string     `gorm:"type:varchar(3);not null"`
	ConfirmedAt         *time.Time
	CancelledAt         *time.Time
	RefundedAt          *time.Time
	CompletedAt         *time.Time
	Version             int64              `gorm:"not null;default:1"`
	CreatedAt           time.Time          `gorm:"not null;index"`
	UpdatedAt           time.Time          `gorm:"not null"`
	Slots               []BookingSlotModel `gorm:"foreignKey:BookingID;constraint:OnDelete:CASCADE"`
}

func (BookingModel) TableName() string { return "bookings" }

// BookingSlotModel stores one booked slot. teacher_id is denormalized for the conflict query.
type BookingSlotModel struct {
	BookingID uuid.UUID `gorm:"type:uuid;primaryKey"`
	SlotIndex int       `gorm:"primaryKey"`
	TeacherID uuid.UUID `gorm:"type:uuid;not null;index:idx_booking_slots_teacher_time,priority:1"`
	StartAt   time.Time `gorm:"not null;index:idx_booking_slots_teacher_time,priority:2"`
	EndAt     time.Time `gorm:"not null"`
}

func (BookingSlotModel) TableName() string { return "booking_slots" }

// BookingTransitionModel is the append-only audit trail of booking status changes.
// Seq orders entries in insertion order; several can share one timestamp.
type BookingTransitionModel struct {
	Seq        int64     `gorm:"primaryKey;autoIncrement"`
	ID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	BookingID  uuid.UUID `gorm:"type:uuid;not null;index"`
	FromStatus string    `gorm:"type:varchar(20);not null"`
	ToStatus   string    `gorm:"type:varchar(20);not null"`
	ActorID    uuid.UUID `gorm:"type:uuid;not null"`
	ActorRole  string    `gorm:"type:varchar(20);not null"`
	Reason     string    `gorm:"type:text"`
	At         time.Time `gorm:"not null"`
}

func (BookingTransitionModel) TableName() string { return "booking_transitions" }

// BookingRepositoryImpl is the GORM-based implementation of booking.Repository.
type BookingRepositoryImpl struct {
	db *gorm.DB
}

// NewBookingRepository creates a new GORM-backed booking repository.
func NewBookingRepository(db *gorm.DB) *BookingRepositoryImpl {
	return &BookingRepositoryImpl{db: db}
}

// FindByID retrieves a booking with its slots.
func (r *BookingRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return r.find(ctx, r.db.WithContext(ctx), id)
}

// FindByIDForUpdate retrieves a booking and locks its row for the rest of the transaction.
func (r *BookingRepositoryImpl) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return r.find(ctx, forUpdate(r.db.WithContext(ctx)), id)
}

func (r *BookingRepositoryImpl) find(ctx context.Context, db *gorm.DB, id uuid.UUID) (*booking.Booking, error) {
	var model BookingModel
	if err := db.Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFound(err, "Booking", id)
	}
	var slots []BookingSlotModel
	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", id).Order("slot_index").Find(&slots).Error; err != nil {
		return nil, err
	}
	model.Slots = slots
	return bookingToDomain(&model), nil
}

// Save persists a new booking together with its slots.
func (r *BookingRepositoryImpl) Save(ctx context.Context, b *booking.Booking) error {
	return r.db.WithContext(ctx).Create(bookingToModel(b)).Error
}

// Update persists status changes with optimistic locking. Slots are immutable and not rewritten.
func (r *BookingRepositoryImpl) Update(ctx context.Context, b *booking.Booking) error {
	model := bookingToModel(b)
	model.Slots = nil
	result := r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("id = ? AND version = ?", model.ID, b.Version()-1).
		Select("status", "confirmed_at", "cancelled_at", "refunded_at", "completed_at", "version", "updated_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("booking was modified by another transaction")
	}
	return nil
}

// HasConflict reports whether a live booking of the teacher overlaps any of slots.
func (r *BookingRepositoryImpl) HasConflict(ctx context.Context, teacherID uuid.UUID, slots []timeslot.Slot, excludeCourseID *uuid.UUID) (bool, error) {
	for _, s := range slots {
		q := r.db.WithContext(ctx).
			Table("booking_slots").
			Joins("JOIN bookings ON bookings.id = booking_slots.booking_id").
			Where("booking_slots.teacher_id = ?", teacherID).
			Where("bookings.status IN ?", []string{string(booking.StatusPending), string(booking.StatusConfirmed)}).
			Where("booking_slots.start_at < ? AND booking_slots.end_at > ?", s.End, s.Start)
		if excludeCourseID != nil {
			q = q.Where("(bookings.course_id IS NULL OR bookings.course_id <> ?)", *excludeCourseID)
		}
		var count int64
		if err := q.Count(&count).Error; err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// HasOpenCourseBooking reports whether the student already holds a pending or confirmed seat.
func (r *BookingRepositoryImpl) HasOpenCourseBooking(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Where("student_id = ? AND course_id = ? AND status IN ?", studentID, courseID,
			[]string{string(booking.StatusPending), string(booking.StatusConfirmed)}).
		Count(&count).Error
	return count > 0, err
}

// FindPendingCourseBooking retrieves the student's newest pending seat in a course.
func (r *BookingRepositoryImpl) FindPendingCourseBooking(ctx context.Context, studentID, courseID uuid.UUID) (*booking.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND status = ?", studentID, courseID, string(booking.StatusPending)).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		return nil, notFound(err, "Pending booking for course", courseID)
	}
	return r.find(ctx, r.db.WithContext(ctx), model.ID)
}

// ListPendingCreatedBefore retrieves stale pending bookings that hold no open payment.
func (r *BookingRepositoryImpl) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*booking.Booking, error) {
	open := r.db.Model(&PaymentModel{}).
		Select("booking_id").
		Where("status IN ?", []string{"pending", "completed"})

	var models []BookingModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(booking.StatusPending), cutoff).
		Where("id NOT IN (?)", open).
		Order("created_at").
		Limit(limit).
		Preload("Slots").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return bookingsToDomain(models), nil
}

// ListByParticipant retrieves a user's bookings as student or teacher, newest first.
func (r *BookingRepositoryImpl) ListByParticipant(ctx context.Context, userID uuid.UUID, page, limit int) ([]*booking.Booking, int64, error) {
	q := r.db.WithContext(ctx).Model(&BookingModel{}).Where("student_id = ? OR teacher_id = ?", userID, userID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []BookingModel
	if err := q.Order("created_at DESC").Offset(offset(page, limit)).Limit(limit).
		Preload("Slots", func(db *gorm.DB) *gorm.DB { return db.Order("slot_index") }).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return bookingsToDomain(models), total, nil
}

// SumCompletedEarnings totals the teacher's earnings over completed bookings in one currency.
func (r *BookingRepositoryImpl) SumCompletedEarnings(ctx context.Context, teacherID uuid.UUID, currency string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Where("teacher_id = ? AND status = ? AND currency = ?", teacherID, string(booking.StatusCompleted), currency).
		Select("COALESCE(SUM(teacher_earning_cents), 0)").
		Scan(&total).Error
	return total, err
}

// SaveTransition appends a status change to the booking's history.
func (r *BookingRepositoryImpl) SaveTransition(ctx context.Context, t booking.Transition) error {
	return r.db.WithContext(ctx).Create(&BookingTransitionModel{
		ID:         t.ID,
		BookingID:  t.BookingID,
		FromStatus: string(t.From),
		ToStatus:   string(t.To),
		ActorID:    t.ActorID,
		ActorRole:  t.ActorRole,
		Reason:     t.Reason,
		At:         t.At,
	}).Error
}

// ListTransitions retrieves a booking's status history, oldest first.
func (r *BookingRepositoryImpl) ListTransitions(ctx context.Context, bookingID uuid.UUID) ([]booking.Transition, error) {
	var models []BookingTransitionModel
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Order("seq").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]booking.Transition, len(models))
	for i, m := range models {
		out[i] = booking.Transition{
			ID:        m.ID,
			BookingID: m.BookingID,
			From:      booking.Status(m.FromStatus),
			To:        booking.Status(m.ToStatus),
			ActorID:   m.ActorID,
			ActorRole: m.ActorRole,
			Reason:    m.Reason,
			At:        m.At,
		}
	}
	return out, nil
}

func bookingsToDomain(models []BookingModel) []*booking.Booking {
	out := make([]*booking.Booking, len(models))
	for i := range models {
		out[i] = bookingToDomain(&models[i])
	}
	return out
}

func bookingToDomain(m *BookingModel) *booking.Booking {
	slots := make([]timeslot.Slot, len(m.Slots))
	for i, s := range m.Slots {
		slots[i] = timeslot.New(s.StartAt, s.EndAt)
	}
	return booking.Reconstitute(
		m.ID, m.StudentID, m.TeacherID,
		m.CourseID,
		booking.Status(m.Status),
		m.TotalCents, m.PlatformFeeCents, m.TeacherEarningCents,
		m.Currency,
		slots,
		m.ConfirmedAt, m.CancelledAt, m.RefundedAt, m.CompletedAt,
		m.Version,
		m.CreatedAt, m.UpdatedAt,
	)
}

func bookingToModel(b *booking.Booking) *BookingModel {
	slots := b.Slots()
	slotModels := make([]BookingSlotModel, len(slots))
	for i, s := range slots {
		slotModels[i] = BookingSlotModel{
			BookingID: b.ID(),
			SlotIndex: i,
			TeacherID: b.TeacherID(),
			StartAt:   s.Start,
			EndAt:     s.End,
		}
	}
	return &BookingModel{
		ID:                  b.ID(),
		StudentID:           b.StudentID(),
		TeacherID:           b.TeacherID(),
		CourseID:            b.CourseID(),
		Status:              string(b.Status()),
		TotalCents:          b.TotalCents(),
		PlatformFeeCents:    b.PlatformFeeCents(),
		TeacherEarningCents: b.TeacherEarningCents(),
		Currency:            b.Currency(),
		ConfirmedAt:         b.ConfirmedAt(),
		CancelledAt:         b.CancelledAt(),
		RefundedAt:          b.RefundedAt(),
		CompletedAt:         b.CompletedAt(),
		Version:             b.Version(),
		CreatedAt:           b.CreatedAt(),
		UpdatedAt:           b.UpdatedAt(),
		Slots:               slotModels,
	}
}
