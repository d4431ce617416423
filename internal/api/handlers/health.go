package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RendererChecker reports whether the renderer binary can be executed.
type RendererChecker interface {
	Available() error
}

type HealthHandler struct {
	renderer RendererChecker
	pending  func() int
}

func NewHealthHandler(renderer RendererChecker, pending func() int) *HealthHandler {
	return &HealthHandler{renderer: renderer, pending: pending}
}

func (h *HealthHandler) Health(c *gin.Context) {
	resp := gin.H{"status": "ok", "renderer": "available"}
	if h.renderer != nil {
		if err := h.renderer.Available(); err != nil {
			resp["renderer"] = "unavailable"
			resp["renderer_error"] = err.Error()
		}
	}
	if h.pending != nil {
		resp["pending_jobs"] = h.pending()
	}
	c.JSON(http.StatusOK, resp)
}
