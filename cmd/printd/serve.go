package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/orrn/printd/internal/api"
	"github.com/orrn/printd/internal/api/middleware"
	"github.com/orrn/printd/internal/config"
	"github.com/orrn/printd/internal/core"
	"github.com/orrn/printd/internal/logging"
	"github.com/orrn/printd/internal/sandbox"
	"github.com/orrn/printd/internal/spooler"
	"github.com/orrn/printd/internal/webhook"
)

const (
	insecureDefaultToken = "change_this_token"
	shutdownTimeout      = 10 * time.Second
)

var errAlreadyRunning = errors.New("another printd instance is running")

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the print service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(runCtx, cfg, cmd.ErrOrStderr())
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	logger, err := logging.New(logOut, cfg.Logging)
	if err != nil {
		return err
	}

	// Two services polling the same spooler would claim each other's entries.
	lock := flock.New(cfg.Server.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", cfg.Server.LockFile, err)
	}
	if !locked {
		return fmt.Errorf("%w (lock held: %s)", errAlreadyRunning, cfg.Server.LockFile)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", "path", cfg.Server.LockFile, "error", err)
		}
	}()

	if cfg.Auth.APIToken == insecureDefaultToken {
		logger.Warn("using the built-in api token, set PRINT_API_TOKEN")
	}

	if err := os.MkdirAll(cfg.Files.BaseDir, 0o755); err != nil {
		return fmt.Errorf("create print root: %w", err)
	}
	root, err := sandbox.New(cfg.Files.BaseDir)
	if err != nil {
		return err
	}

	sp, err := spooler.New(cfg.Spooler.Backend, cfg.Spooler.LpstatPath)
	if err != nil {
		return err
	}

	renderer := core.NewGhostscriptRenderer(cfg.Renderer)
	if err := renderer.Available(); err != nil {
		logger.Warn("renderer unavailable, print jobs will fail until it is installed", "error", err)
	}

	auth, err := middleware.NewAuthMiddleware(cfg.Auth)
	if err != nil {
		return err
	}

	sender := webhook.NewWebhookSender(cfg.Webhooks, webhook.SenderConfig{}, logger)
	sender.Start()
	defer sender.Stop()

	registry := core.NewRegistry()
	orchestrator := core.NewOrchestrator(core.OrchestratorOptions{
		Registry: registry,
		Spooler:  sp,
		Renderer: renderer,
		Events:   sender,
		Timeouts: core.Timeouts{
			Detect: cfg.Spooler.DetectTimeout.Duration,
			Wait:   cfg.Spooler.WaitTimeout.Duration,
			Poll:   cfg.Spooler.PollInterval.Duration,
		},
		Logger: logger,
	})

	queue := core.NewQueue(registry, orchestrator, &cfg.Queue, logger)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Dependencies{
		Auth:     auth,
		Queue:    queue,
		Registry: registry,
		Spooler:  sp,
		Root:     root,
		Renderer: renderer,
		Webhooks: sender,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	logger.Info("printd listening", "addr", ln.Addr().String(), "print_root", root.Base(), "version", version)

	return runService(ctx, srv, ln, queue, logger)
}

// runService serves until ctx ends. The queue runs on its own context so a
// signal only stops the listener; running jobs are cancelled by queue.Stop
// once the server has drained.
func runService(ctx context.Context, srv *http.Server, ln net.Listener, queue *core.Queue, logger *slog.Logger) error {
	queue.Start(context.Background())
	defer queue.Stop()
	return serveUntilDone(ctx, srv, ln, logger)
}

func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
