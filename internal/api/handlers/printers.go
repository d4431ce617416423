package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printd/internal/spooler"
)

type PrintersResponse struct {
	Printers []string `json:"printers"`
	Default  string   `json:"default,omitempty"`
}

type PrinterHandler struct {
	spooler spooler.Spooler
}

func NewPrinterHandler(s spooler.Spooler) *PrinterHandler {
	return &PrinterHandler{spooler: s}
}

func (h *PrinterHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/printers", h.ListPrinters)
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	ctx := c.Request.Context()

	printers, err := h.spooler.Printers(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if printers == nil {
		printers = []string{}
	}

	// A host without a default printer can still list its queues.
	def, err := h.spooler.DefaultPrinter(ctx)
	if err != nil && !errors.Is(err, spooler.ErrNoDefaultPrinter) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, PrintersResponse{Printers: printers, Default: def})
}
