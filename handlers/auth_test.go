package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/finboard/finboard/backend/gateway/internal/auth"
	"github.com/finboard/finboard/backend/gateway/internal/config"
	"github.com/finboard/finboard/backend/gateway/internal/models"
	"github.com/finboard/finboard/backend/gateway/internal/tokens"
	"github.com/finboard/finboard/backend/gateway/pkg/middleware"
)

func init() { gin.SetMode(gin.TestMode) }

// fake credential store
type fakeCreds struct {
	byEmail map[string]*models.Credential
	err     error
}

func (f *fakeCreds) GetByEmail(_ context.Context, email string) (*models.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byEmail[email], nil
}

type testEnv struct {
	router *gin.Engine
	issuer *tokens.Issuer
	creds  *fakeCreds
}

func newEnv(t *testing.T, loginMW ...gin.HandlerFunc) *testEnv {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	creds := &fakeCreds{byEmail: map[string]*models.Credential{
		"ana@finboard.example": {ID: "user-42", Email: "ana@finboard.example", PasswordHash: string(hash)},
	}}
	iss, err := tokens.NewIssuer(config.JWTConfig{
		Secret:          "handler-access-secret",
		RefreshSecret:   "handler-refresh-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)

	h := NewAuthHandler(auth.NewService(creds, iss, bcrypt.MinCost), iss, false)
	r := gin.New()
	h.Register(r.Group("/"), loginMW...)
	return &testEnv{router: r, issuer: iss, creds: creds}
}

func (e *testEnv) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeTokens(t *testing.T, w *httptest.ResponseRecorder) TokenResponse {
	t.Helper()
	var got TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	return got
}

func TestLogin_Success(t *testing.T) {
	e := newEnv(t)

	w := e.post("/auth/login", `{"email":"Ana@Finboard.example","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, w.Code)

	got := decodeTokens(t, w)
	assert.NotEmpty(t, got.AccessToken)
	assert.NotEmpty(t, got.RefreshToken)
	assert.Equal(t, 900, got.ExpiresIn)

	claims, err := e.issuer.VerifyAccess(got.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)

	cookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, cookie, middleware.AccessCookie+"="+got.AccessToken)
	assert.Contains(t, cookie, "HttpOnly")
}

func TestLogin_InvalidCredentialsAreUniform(t *testing.T) {
	e := newEnv(t)

	for _, body := range []string{
		`{"email":"ana@finboard.example","password":"wrong"}`,
		`{"email":"nobody@finboard.example","password":"hunter22"}`,
		`{"email":"","password":""}`,
		`{not json`,
		``,
	} {
		w := e.post("/auth/login", body)
		require.Equal(t, http.StatusBadRequest, w.Code, "body=%q", body)
		require.JSONEq(t, `{"message":"Invalid email or password"}`, w.Body.String())
		require.Empty(t, w.Header().Get("Set-Cookie"))
	}
}

func TestLogin_StoreFailure(t *testing.T) {
	e := newEnv(t)
	e.creds.err = errors.New("db error: connection refused")

	w := e.post("/auth/login", `{"email":"ana@finboard.example","password":"hunter22"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "connection refused")
}

func TestRefresh_Success(t *testing.T) {
	e := newEnv(t)
	login := decodeTokens(t, e.post("/auth/login", `{"email":"ana@finboard.example","password":"hunter22"}`))

	w := e.post("/auth/refresh", `{"refreshToken":"`+login.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeTokens(t, w)
	assert.NotEmpty(t, got.AccessToken)
	assert.NotEmpty(t, got.RefreshToken)
	assert.Equal(t, 900, got.ExpiresIn)
}

func TestRefresh_Invalid(t *testing.T) {
	e := newEnv(t)
	login := decodeTokens(t, e.post("/auth/login", `{"email":"ana@finboard.example","password":"hunter22"}`))

	for _, body := range []string{
		`{"refreshToken":"` + login.AccessToken + `"}`,
		`{"refreshToken":"garbage"}`,
		`{"refreshToken":""}`,
		`{}`,
		`nope`,
	} {
		w := e.post("/auth/refresh", body)
		require.Equal(t, http.StatusUnauthorized, w.Code, "body=%q", body)
		require.JSONEq(t, `{"message":"Invalid or expired token"}`, w.Body.String())
	}
}

func TestRefresh_Expired(t *testing.T) {
	e := newEnv(t)
	login := decodeTokens(t, e.post("/auth/login", `{"email":"ana@finboard.example","password":"hunter22"}`))

	e.issuer.WithClock(func() time.Time { return time.Now().Add(25 * time.Hour) })
	w := e.post("/auth/refresh", `{"refreshToken":"`+login.RefreshToken+`"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_ClearsCookie(t *testing.T) {
	e := newEnv(t)

	w := e.post("/auth/logout", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"message":"logged out"}`, w.Body.String())
	require.Contains(t, w.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestMe(t *testing.T) {
	e := newEnv(t)
	login := decodeTokens(t, e.post("/auth/login", `{"email":"ana@finboard.example","password":"hunter22"}`))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"userId":"user-42","email":"ana@finboard.example"}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_RateLimitedWithRedis(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})

	e := newEnv(t, middleware.RedisRateLimitMiddleware(client, 0, 2, time.Hour))
	body := `{"email":"ana@finboard.example","password":"wrong"}`

	require.Equal(t, http.StatusBadRequest, e.post("/auth/login", body).Code)
	require.Equal(t, http.StatusBadRequest, e.post("/auth/login", body).Code)
	w := e.post("/auth/login", body)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	// refresh is not behind the login limiter
	require.Equal(t, http.StatusUnauthorized, e.post("/auth/refresh", `{"refreshToken":"x"}`).Code)
}
