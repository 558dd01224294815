package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/application"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/middleware"
	"github.com/tutorly/service-learning/pkg/response"
)

// BookingHandler handles HTTP requests for the booking lifecycle.
type BookingHandler struct {
	bookings *application.BookingService
	sessions *application.SessionService
	payments *application.PaymentService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(bookings *application.BookingService, sessions *application.SessionService, payments *application.PaymentService) *BookingHandler {
	return &BookingHandler{bookings: bookings, sessions: sessions, payments: payments}
}

// RegisterRoutes registers booking routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	bookings := r.Group("/bookings")
	bookings.Use(middleware.AuthMiddleware(jwtManager))
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.GET("/:id/transitions", h.ListTransitions)
		bookings.GET("/:id/sessions", h.ListSessions)
		bookings.GET("/:id/payments", h.ListPayments)
		bookings.POST("/:id/cancel", h.CancelBooking)
		bookings.POST("/:id/refund", middleware.RequireRole(auth.RoleAdmin), h.RefundBooking)
	}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req application.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	dto, err := h.bookings.CreateBooking(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto)
}

// ListBookings handles GET /api/v1/bookings?user_id=
func (h *BookingHandler) ListBookings(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	userID := uuid.Nil
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid user ID")
			return
		}
		userID = id
	}
	page, limit := pagination(c)
	bookings, total, err := h.bookings.ListBookings(c.Request.Context(), actor, userID, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, bookings, total, page, limit)
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	bookingID, ok := idParam(c, "id", "booking")
	if !ok {
		return
	}
	dto, err := h.bookings.GetBooking(c.Request.Context(), actor, bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// ListTransitions handles GET /api/v1/bookings/:id/transitions
func (h *BookingHandler) ListTransitions(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	bookingID, ok := idParam(c, "id", "booking")
	if !ok {
		return
	}
	trail, err := h.bookings.Transitions(c.Request.Context(), actor, bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, trail)
}

// ListSessions handles GET /api/v1/bookings/:id/sessions
func (h *BookingHandler) ListSessions(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	bookingID, ok := idParam(c, "id", "booking")
	if !ok {
		return
	}
	sessions, err := h.sessions.List(c.Request.Context(), actor, bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sessions)
}

// ListPayments handles GET /api/v1/bookings/:id/payments
func (h *BookingHandler) ListPayments(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	bookingID, ok := idParam(c, "id", "booking")
	if !ok {
		return
	}
	payments, err := h.payments.ListForBooking(c.Request.Context(), actor, bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, payments)
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	bookingID, ok := idParam(c, "id", "booking")
	if !ok {
		return
	}
	var req application.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	dto, err := h.bookings.CancelBooking(c.Request.Context(), actor, bookingID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// RefundBooking handles POST /api/v1/bookings/:id/refund
func (h *BookingHandler) RefundBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	bookingID, ok := idParam(c, "id", "booking")
	if !ok {
		return
	}
	var req application.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	dto, err := h.bookings.RefundBooking(c.Request.Context(), actor, bookingID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}
