package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tutorly/service-learning/internal/application"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/middleware"
	"github.com/tutorly/service-learning/pkg/response"
)

type SessionHandler struct {
	service *application.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(service *application.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	sessions := r.Group("/sessions")
	sessions.Use(middleware.AuthMiddleware(jwtManager), middleware.RequireRole(auth.RoleTeacher))
	{
		sessions.POST("/:id/start", h.Start)
		sessions.POST("/:id/end", h.End)
	}
}

// Start handles POST /api/v1/sessions/:id/start
func (h *SessionHandler) Start(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	sessionID, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	dto, err := h.service.Start(c.Request.Context(), actor, sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// End handles POST /api/v1/sessions/:id/end
func (h *SessionHandler) End(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	sessionID, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	dto, err := h.service.End(c.Request.Context(), actor, sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}
