package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tutorly/service-learning/internal/application"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/middleware"
	"github.com/tutorly/service-learning/pkg/response"
)

// CatalogHandler serves teacher rates, availability and courses.
type CatalogHandler struct {
	service *application.CatalogService
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(service *application.CatalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// RegisterRoutes registers catalog routes. Reads are public.
func (h *CatalogHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	catalog := r.Group("/catalog")
	{
		catalog.GET("/teachers/:id/rate", h.GetRate)
		catalog.GET("/teachers/:id/availability", h.ListAvailability)
		catalog.GET("/courses/:id", h.GetCourse)
	}
	manage := catalog.Group("")
	manage.Use(middleware.AuthMiddleware(jwtManager))
	{
		manage.PUT("/rate", h.SetRate)
		manage.POST("/availability", h.AddAvailability)
		manage.POST("/courses", h.CreateCourse)
	}
}

// SetRate handles PUT /api/v1/catalog/rate
func (h *CatalogHandler) SetRate(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req application.SetRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	dto, err := h.service.SetRate(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// GetRate handles GET /api/v1/catalog/teachers/:id/rate
func (h *CatalogHandler) GetRate(c *gin.Context) {
	teacherID, ok := idParam(c, "id", "teacher")
	if !ok {
		return
	}
	dto, err := h.service.GetRate(c.Request.Context(), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// AddAvailability handles POST /api/v1/catalog/availability
func (h *CatalogHandler) AddAvailability(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req application.SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	dto, err := h.service.AddAvailability(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto)
}

// ListAvailability handles GET /api/v1/catalog/teachers/:id/availability
func (h *CatalogHandler) ListAvailability(c *gin.Context) {
	teacherID, ok := idParam(c, "id", "teacher")
	if !ok {
		return
	}
	windows, err := h.service.ListAvailability(c.Request.Context(), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, windows)
}

// CreateCourse handles POST /api/v1/catalog/courses
func (h *CatalogHandler) CreateCourse(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req application.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	dto, err := h.service.CreateCourse(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto)
}

// GetCourse handles GET /api/v1/catalog/courses/:id
func (h *CatalogHandler) GetCourse(c *gin.Context) {
	courseID, ok := idParam(c, "id", "course")
	if !ok {
		return
	}
	dto, err := h.service.GetCourse(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}
