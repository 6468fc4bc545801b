package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docsassist/internal/pkg/response"
	"github.com/xxxsen/docsassist/internal/service"
)

type HealthHandler struct {
	health *service.HealthService
}

func NewHealthHandler(health *service.HealthService) *HealthHandler {
	return &HealthHandler{health: health}
}

func (h *HealthHandler) Check(c *gin.Context) {
	report, err := h.health.Check(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}
