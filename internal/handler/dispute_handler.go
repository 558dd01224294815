package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tutorly/service-learning/internal/application"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/middleware"
	"github.com/tutorly/service-learning/pkg/response"
)

// DisputeHandler lets booking participants raise and withdraw disputes.
type DisputeHandler struct {
	service *application.DisputeService
}

// NewDisputeHandler creates a new DisputeHandler.
func NewDisputeHandler(service *application.DisputeService) *DisputeHandler {
	return &DisputeHandler{service: service}
}

// RegisterRoutes registers dispute routes.
func (h *DisputeHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	disputes := r.Group("/disputes")
	disputes.Use(middleware.AuthMiddleware(jwtManager))
	{
		disputes.POST("", h.Open)
		disputes.GET("/:id", h.Get)
		disputes.DELETE("/:id", h.Delete)
	}
}

// Open handles POST /api/v1/disputes
func (h *DisputeHandler) Open(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req application.OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	dto, err := h.service.Open(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto)
}

// Get handles GET /api/v1/disputes/:id
func (h *DisputeHandler) Get(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	disputeID, ok := idParam(c, "id", "dispute")
	if !ok {
		return
	}
	dto, err := h.service.Get(c.Request.Context(), actor, disputeID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// Delete handles DELETE /api/v1/disputes/:id
func (h *DisputeHandler) Delete(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	disputeID, ok := idParam(c, "id", "dispute")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, disputeID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
