package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tutorly/service-learning/internal/application"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/middleware"
	"github.com/tutorly/service-learning/pkg/response"
)

// AdminHandler handles back-office requests: reconciliation, dispute resolution and payouts.
type AdminHandler struct {
	payments *application.PaymentService
	sessions *application.SessionService
	disputes *application.DisputeService
	wallet   *application.WalletService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	payments *application.PaymentService,
	sessions *application.SessionService,
	disputes *application.DisputeService,
	wallet *application.WalletService,
) *AdminHandler {
	return &AdminHandler{payments: payments, sessions: sessions, disputes: disputes, wallet: wallet}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	adminRole := middleware.RequireRole(auth.RoleAdmin)

	admin := r.Group("/admin")
	admin.Use(authMW, adminRole)
	{
		admin.GET("/payments", h.ListPayments)
		admin.GET("/stats/payments", h.PaymentStats)
		admin.POST("/payments/:id/reconcile", h.ReconcilePayment)
		admin.POST("/bookings/:id/materialize", h.MaterializeSessions)
		admin.GET("/disputes", h.ListDisputes)
		admin.POST("/disputes/:id/resolve", h.ResolveDispute)
		admin.GET("/payouts", h.ListPayouts)
		admin.POST("/payouts/:id/sent", h.MarkPayoutSent)
	}
}

// ListPayments handles GET /api/v1/admin/payments.
func (h *AdminHandler) ListPayments(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	page, limit := pagination(c)
	payments, total, err := h.payments.ListAll(c.Request.Context(), actor, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, payments, total, page, limit)
}

// PaymentStats handles GET /api/v1/admin/stats/payments.
func (h *AdminHandler) PaymentStats(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	stats, err := h.payments.Stats(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}

// ReconcilePayment handles POST /api/v1/admin/payments/:id/reconcile.
func (h *AdminHandler) ReconcilePayment(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	paymentID, ok := idParam(c, "id", "payment")
	if !ok {
		return
	}
	dto, err := h.payments.Reconcile(c.Request.Context(), actor, paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// MaterializeSessions handles POST /api/v1/admin/bookings/:id/materialize.
func (h *AdminHandler) MaterializeSessions(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	bookingID, ok := idParam(c, "id", "booking")
	if !ok {
		return
	}
	sessions, err := h.sessions.Materialize(c.Request.Context(), actor, bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sessions)
}

// ListDisputes handles GET /api/v1/admin/disputes?status=.
func (h *AdminHandler) ListDisputes(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	page, limit := pagination(c)
	disputes, total, err := h.disputes.List(c.Request.Context(), actor, c.Query("status"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, disputes, total, page, limit)
}

// ResolveDispute handles POST /api/v1/admin/disputes/:id/resolve.
func (h *AdminHandler) ResolveDispute(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	disputeID, ok := idParam(c, "id", "dispute")
	if !ok {
		return
	}
	var req application.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	dto, err := h.disputes.Resolve(c.Request.Context(), actor, disputeID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// ListPayouts handles GET /api/v1/admin/payouts?status=.
func (h *AdminHandler) ListPayouts(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	page, limit := pagination(c)
	payouts, total, err := h.wallet.ListAll(c.Request.Context(), actor, c.Query("status"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, payouts, total, page, limit)
}

// MarkPayoutSent handles POST /api/v1/admin/payouts/:id/sent.
func (h *AdminHandler) MarkPayoutSent(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	payoutID, ok := idParam(c, "id", "payout")
	if !ok {
		return
	}
	var req application.MarkPayoutSentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	dto, err := h.wallet.MarkSent(c.Request.Context(), actor, payoutID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}
