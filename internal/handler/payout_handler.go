package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tutorly/service-learning/internal/application"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/middleware"
	"github.com/tutorly/service-learning/pkg/response"
)

// PayoutHandler exposes the teacher wallet.
type PayoutHandler struct {
	service *application.WalletService
}

// NewPayoutHandler creates a new PayoutHandler.
func NewPayoutHandler(service *application.WalletService) *PayoutHandler {
	return &PayoutHandler{service: service}
}

// RegisterRoutes registers wallet and payout routes.
func (h *PayoutHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)

	wallets := r.Group("/wallets")
	wallets.Use(authMW)
	{
		wallets.GET("/:teacherId", h.GetBalance)
		wallets.GET("/:teacherId/payouts", h.ListPayouts)
	}

	payouts := r.Group("/payouts")
	payouts.Use(authMW)
	{
		payouts.POST("", h.RequestPayout)
		payouts.POST("/:id/cancel", h.CancelPayout)
	}
}

// GetBalance handles GET /api/v1/wallets/:teacherId
func (h *PayoutHandler) GetBalance(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	teacherID, ok := idParam(c, "teacherId", "teacher")
	if !ok {
		return
	}
	dto, err := h.service.ComputeBalance(c.Request.Context(), actor, teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

func (h *PayoutHandler) ListPayouts(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	teacherID, ok := idParam(c, "teacherId", "teacher")
	if !ok {
		return
	}
	page, limit := pagination(c)
	payouts, total, err := h.service.ListForTeacher(c.Request.Context(), actor, teacherID, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, payouts, total, page, limit)
}

// RequestPayout handles POST /api/v1/payouts
func (h *PayoutHandler) RequestPayout(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req application.RequestPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	dto, err := h.service.RequestPayout(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto)
}

// CancelPayout handles POST /api/v1/payouts/:id/cancel
func (h *PayoutHandler) CancelPayout(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	payoutID, ok := idParam(c, "id", "payout")
	if !ok {
		return
	}
	dto, err := h.service.CancelWithdrawal(c.Request.Context(), actor, payoutID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}
