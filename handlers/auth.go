package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finboard/finboard/backend/gateway/internal/auth"
	"github.com/finboard/finboard/backend/gateway/internal/tokens"
	"github.com/finboard/finboard/backend/gateway/pkg/logger"
	"github.com/finboard/finboard/backend/gateway/pkg/metrics"
	"github.com/finboard/finboard/backend/gateway/pkg/middleware"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgInvalidToken       = "Invalid or expired token"
	msgInternal           = "Internal server error"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// TokenResponse is returned by login and refresh. ExpiresIn is in seconds.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// Authenticator is the verifier the handlers call.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*tokens.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (*tokens.Pair, error)
	Me(claims *tokens.Claims) (*auth.Identity, error)
}

// AuthHandler holds dependencies
type AuthHandler struct {
	svc          Authenticator
	verifier     middleware.Verifier
	cookieSecure bool
}

func NewAuthHandler(svc Authenticator, verifier middleware.Verifier, cookieSecure bool) *AuthHandler {
	return &AuthHandler{svc: svc, verifier: verifier, cookieSecure: cookieSecure}
}

// Register routes under /auth. loginMW runs before the login handler only
// (rate limiting).
func (h *AuthHandler) Register(rg *gin.RouterGroup, loginMW ...gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/login", append(loginMW, h.Login)...)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
	a.GET("/me", middleware.AuthMiddleware(h.verifier), h.Me)
}

// Login exchanges email and password for a token pair. Every credential
// failure, including an unreadable body, gets the same 400.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.LoginAttempts.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidCredentials})
		return
	}
	pair, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			metrics.LoginAttempts.WithLabelValues("invalid").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidCredentials})
			return
		}
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		logger.Errorf("login failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": msgInternal})
		return
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	h.respondPair(c, pair)
}

// Refresh accepts a refresh token and returns a new pair
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		metrics.RefreshAttempts.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"message": msgInvalidToken})
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			metrics.RefreshAttempts.WithLabelValues("invalid").Inc()
			logger.Debugf("refresh rejected: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"message": msgInvalidToken})
			return
		}
		metrics.RefreshAttempts.WithLabelValues("error").Inc()
		logger.Errorf("refresh failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": msgInternal})
		return
	}
	metrics.RefreshAttempts.WithLabelValues("success").Inc()
	h.respondPair(c, pair)
}

// Logout is stateless on the server: tokens stay valid until they expire.
// It only drops the browser's mirrored access cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	middleware.ClearAccessCookie(c, h.cookieSecure)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	id, err := h.svc.Me(claims)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, id)
}

func (h *AuthHandler) respondPair(c *gin.Context, pair *tokens.Pair) {
	expiresIn := int(pair.ExpiresIn.Seconds())
	middleware.SetAccessCookie(c, pair.AccessToken, expiresIn, h.cookieSecure)
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    expiresIn,
	})
}
