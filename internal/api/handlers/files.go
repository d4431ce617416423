package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printd/internal/sandbox"
)

type FileHandler struct {
	root *sandbox.Root
}

func NewFileHandler(root *sandbox.Root) *FileHandler {
	return &FileHandler{root: root}
}

func (h *FileHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/files", h.ListFiles)
}

func (h *FileHandler) ListFiles(c *gin.Context) {
	entries, err := h.root.List(c.Query("path"))
	switch {
	case errors.Is(err, sandbox.ErrPathTraversal):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
	case errors.Is(err, sandbox.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, entries)
	}
}
