package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printd/internal/api/middleware"
	"github.com/orrn/printd/internal/config"
	"github.com/orrn/printd/internal/core"
	"github.com/orrn/printd/internal/logging"
	"github.com/orrn/printd/internal/sandbox"
	"github.com/orrn/printd/internal/spooler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type idleRunner struct{}

func (idleRunner) Run(ctx context.Context, jobID string, req core.PrintRequest) {}

type emptySpooler struct{}

func (emptySpooler) Printers(ctx context.Context) ([]string, error) { return []string{"Office"}, nil }
func (emptySpooler) DefaultPrinter(ctx context.Context) (string, error) {
	return "", spooler.ErrNoDefaultPrinter
}
func (emptySpooler) Entries(ctx context.Context, printer string) ([]spooler.EntryInfo, error) {
	return nil, nil
}

type missingRenderer struct{}

func (missingRenderer) Available() error { return errors.New("gs not found") }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "a.pdf"), []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	root, err := sandbox.New(base)
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	auth, err := middleware.NewAuthMiddleware(config.AuthConfig{APIToken: "tok", JWTSecret: "s"})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	registry := core.NewRegistry()
	queue := core.NewQueue(registry, idleRunner{}, &config.QueueConfig{WorkerCount: 1, QueueSize: 4}, logging.Discard())

	return NewRouter(Dependencies{
		Auth:     auth,
		Queue:    queue,
		Registry: registry,
		Spooler:  emptySpooler{},
		Root:     root,
		Renderer: missingRenderer{},
		Logger:   logging.Discard(),
	})
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthNeedsNoAuth(t *testing.T) {
	r := newTestRouter(t)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["renderer"] != "unavailable" {
		t.Fatalf("unexpected health %v", body)
	}
}

func TestMetricsExposed(t *testing.T) {
	r := newTestRouter(t)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "printd_") {
		t.Fatalf("metrics not served: %d", w.Code)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/printers", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/printers?token=tok", nil)
	if w := serve(r, req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", w.Code)
	}
}

func TestPrintWithExchangedToken(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
	req.Header.Set("X-API-Token", "tok")
	w := serve(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("token exchange: %d %s", w.Code, w.Body.String())
	}
	var tok middleware.TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/print", strings.NewReader(`{"path":"a.pdf"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	w = serve(r, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
}
