package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/orrn/printd/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestAuth(t *testing.T) *AuthMiddleware {
	t.Helper()
	a, err := newAuthMiddleware(config.AuthConfig{
		APIToken:    "secret-token",
		JWTSecret:   "jwt-secret",
		TokenExpiry: config.Duration{Duration: time.Hour},
	}, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("new auth: %v", err)
	}
	return a
}

func newTestRouter(a *AuthMiddleware) *gin.Engine {
	r := gin.New()
	r.POST("/auth/token", a.TokenHandler)
	protected := r.Group("/", a.RequireAuth())
	protected.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true})
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	a := newTestAuth(t)
	r := newTestRouter(a)

	tests := []struct {
		name   string
		mutate func(*http.Request)
		want   int
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized},
		{"header token", func(req *http.Request) { req.Header.Set("X-API-Token", "secret-token") }, http.StatusOK},
		{"wrong header token", func(req *http.Request) { req.Header.Set("X-API-Token", "nope") }, http.StatusUnauthorized},
		{"query token", func(req *http.Request) { req.URL.RawQuery = "token=secret-token" }, http.StatusOK},
		{"garbage bearer", func(req *http.Request) { req.Header.Set("Authorization", "Bearer abc.def.ghi") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			tt.mutate(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("want %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestTokenExchange(t *testing.T) {
	a := newTestAuth(t)
	r := newTestRouter(a)

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"token":"secret-token"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("exchange failed: %d %s", w.Code, w.Body.String())
	}

	var resp TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("bearer rejected: %d", w.Code)
	}
}

func TestTokenExchangeRejectsWrongToken(t *testing.T) {
	r := newTestRouter(newTestAuth(t))

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"token":"guess"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestExpiredBearerRejected(t *testing.T) {
	a := newTestAuth(t)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return issued }
	token, _, err := a.generateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	a.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := a.validateToken(token); err == nil {
		t.Fatal("expired token accepted")
	}

	a.now = func() time.Time { return issued.Add(30 * time.Minute) }
	if _, err := a.validateToken(token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
}

func TestForeignSecretRejected(t *testing.T) {
	a := newTestAuth(t)
	other, err := newAuthMiddleware(config.AuthConfig{APIToken: "secret-token", JWTSecret: "different"}, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("new auth: %v", err)
	}
	token, _, err := other.generateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := a.validateToken(token); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestMissingAPITokenIsAnError(t *testing.T) {
	if _, err := NewAuthMiddleware(config.AuthConfig{}); err != ErrNoAPIToken {
		t.Fatalf("expected ErrNoAPIToken, got %v", err)
	}
}
