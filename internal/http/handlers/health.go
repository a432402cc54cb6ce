package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/exampaper-backend/internal/observability"
)

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Metrics serves the Prometheus text registry, or 404 when metrics are off.
func (h *HealthHandler) Metrics(c *gin.Context) {
	m := observability.Current()
	if m == nil {
		c.Status(http.StatusNotFound)
		return
	}
	m.WriteHTTP(c.Writer, c.Request)
}
