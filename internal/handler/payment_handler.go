package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tutorly/service-learning/internal/application"
	"github.com/tutorly/service-learning/internal/domain/payment"
	"github.com/tutorly/service-learning/internal/saga"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/middleware"
	"github.com/tutorly/service-learning/pkg/response"
)

// CheckoutRequest pays for a booking or course seat in one call.
type CheckoutRequest struct {
	TargetType    string    `json:"target_type" binding:"required,oneof=booking course"`
	TargetID      uuid.UUID `json:"target_id" binding:"required"`
	PaymentMethod string    `json:"payment_method" binding:"required"`
}

// PaymentHandler handles HTTP requests for payment operations.
type PaymentHandler struct {
	service  *application.PaymentService
	checkout *saga.CheckoutSaga
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *application.PaymentService, checkout *saga.CheckoutSaga) *PaymentHandler {
	return &PaymentHandler{service: service, checkout: checkout}
}

// RegisterRoutes registers payment routes. Settlement has no HTTP route: it arrives from the
// gateway over Kafka or from the checkout saga.
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	payments := r.Group("/payments")
	payments.Use(middleware.AuthMiddleware(jwtManager))
	{
		payments.POST("", h.RecordAttempt)
		payments.POST("/checkout", h.Checkout)
		payments.GET("/:id", h.GetPayment)
	}
}

// RecordAttempt handles POST /api/v1/payments
func (h *PaymentHandler) RecordAttempt(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req application.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	dto, err := h.service.RecordAttempt(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto)
}

// Checkout handles POST /api/v1/payments/checkout
func (h *PaymentHandler) Checkout(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	target := payment.Target{Type: payment.TargetType(req.TargetType), ID: req.TargetID}
	dto, err := h.checkout.PayBooking(c.Request.Context(), actor, target, req.PaymentMethod)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto)
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	paymentID, ok := idParam(c, "id", "payment")
	if !ok {
		return
	}
	dto, err := h.service.GetPayment(c.Request.Context(), actor, paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}
