package middleware

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/orrn/printd/internal/config"
)

const (
	tokenHeader   = "X-API-Token"
	tokenQuery    = "token"
	tokenIssuer   = "printd"
	defaultExpiry = 24 * time.Hour
)

var ErrNoAPIToken = errors.New("api token is not configured")

type Claims struct {
	jwt.RegisteredClaims
	Authenticated bool `json:"authenticated"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthMiddleware accepts either the shared API token or a bearer JWT issued
// in exchange for it. The API token itself is only kept as a bcrypt hash.
type AuthMiddleware struct {
	tokenHash []byte
	secret    []byte
	expiry    time.Duration
	now       func() time.Time
}

func NewAuthMiddleware(cfg config.AuthConfig) (*AuthMiddleware, error) {
	return newAuthMiddleware(cfg, bcrypt.DefaultCost)
}

func newAuthMiddleware(cfg config.AuthConfig, cost int) (*AuthMiddleware, error) {
	if cfg.APIToken == "" {
		return nil, ErrNoAPIToken
	}

	hash, err := bcrypt.GenerateFromPassword(digest(cfg.APIToken), cost)
	if err != nil {
		return nil, fmt.Errorf("hash api token: %w", err)
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
	}

	expiry := cfg.TokenExpiry.Duration
	if expiry <= 0 {
		expiry = defaultExpiry
	}

	return &AuthMiddleware{
		tokenHash: hash,
		secret:    secret,
		expiry:    expiry,
		now:       time.Now,
	}, nil
}

// bcrypt only looks at the first 72 bytes, so long tokens are digested first.
func digest(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return []byte(fmt.Sprintf("%x", sum))
}

func (a *AuthMiddleware) checkAPIToken(token string) bool {
	if token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.tokenHash, digest(token)) == nil
}

func (a *AuthMiddleware) generateToken() (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.expiry)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    tokenIssuer,
		},
		Authenticated: true,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	return signed, expires, err
}

func (a *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(a.now))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

func apiTokenFromRequest(c *gin.Context) string {
	if token := c.GetHeader(tokenHeader); token != "" {
		return token
	}
	return c.Query(tokenQuery)
}

func bearerFromRequest(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// TokenHandler exchanges the API token for a bearer JWT.
func (a *AuthMiddleware) TokenHandler(c *gin.Context) {
	token := apiTokenFromRequest(c)
	if token == "" {
		var req TokenRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			token = req.Token
		}
	}

	if !a.checkAPIToken(token) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	signed, expires, err := a.generateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: signed, ExpiresAt: expires})
}

func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearer := bearerFromRequest(c); bearer != "" {
			claims, err := a.validateToken(bearer)
			if err != nil || !claims.Authenticated {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
				return
			}
			c.Set("claims", claims)
			c.Set("authenticated", true)
			c.Next()
			return
		}

		if !a.checkAPIToken(apiTokenFromRequest(c)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set("authenticated", true)
		c.Next()
	}
}
