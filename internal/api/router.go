// Package api assembles the HTTP surface of the print service.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printd/internal/api/handlers"
	"github.com/orrn/printd/internal/api/middleware"
	"github.com/orrn/printd/internal/core"
	"github.com/orrn/printd/internal/metrics"
	"github.com/orrn/printd/internal/sandbox"
	"github.com/orrn/printd/internal/spooler"
)

type Dependencies struct {
	Auth     *middleware.AuthMiddleware
	Queue    *core.Queue
	Registry *core.Registry
	Spooler  spooler.Spooler
	Root     *sandbox.Root
	Renderer handlers.RendererChecker
	Webhooks handlers.WebhookTester
	Logger   *slog.Logger
}

func NewRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger.With("component", "http")))

	var pending func() int
	if deps.Queue != nil {
		pending = deps.Queue.Pending
	}
	r.GET("/healthz", handlers.NewHealthHandler(deps.Renderer, pending).Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	v1.POST("/auth/token", deps.Auth.TokenHandler)

	protected := v1.Group("", deps.Auth.RequireAuth())
	handlers.NewJobHandler(deps.Queue, deps.Registry, deps.Root, deps.Spooler).RegisterRoutes(protected)
	handlers.NewPrinterHandler(deps.Spooler).RegisterRoutes(protected)
	handlers.NewFileHandler(deps.Root).RegisterRoutes(protected)
	if deps.Webhooks != nil {
		handlers.NewWebhookHandler(deps.Webhooks).RegisterRoutes(protected)
	}

	return r
}
