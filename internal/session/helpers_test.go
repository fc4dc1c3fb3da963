package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/finboard/finboard/backend/gateway/internal/client"
	"github.com/finboard/finboard/backend/gateway/internal/common"
)

type fakeAPI struct {
	mu           sync.Mutex
	loginCalls   int
	refreshCalls int
	logoutCalls  int

	loginResp   *client.TokenResponse
	loginErr    error
	refreshResp *client.TokenResponse
	refreshErr  error
	logoutErr   error

	// when set, calls block until the gate is closed; started fires on entry
	loginGate      chan struct{}
	refreshGate    chan struct{}
	loginStarted   chan struct{}
	refreshStarted chan struct{}
}

func (f *fakeAPI) Login(_ context.Context, email, password string) (*client.TokenResponse, error) {
	f.mu.Lock()
	f.loginCalls++
	gate, started := f.loginGate, f.loginStarted
	resp, err := f.loginResp, f.loginErr
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if password != "right" {
		return nil, common.ErrInvalidCredentials
	}
	return resp, err
}

func (f *fakeAPI) Refresh(_ context.Context, _ string) (*client.TokenResponse, error) {
	f.mu.Lock()
	f.refreshCalls++
	gate, started := f.refreshGate, f.refreshStarted
	resp, err := f.refreshResp, f.refreshErr
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return resp, err
}

func (f *fakeAPI) Logout(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeAPI) calls() (login, refresh, logout int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.refreshCalls, f.logoutCalls
}

func intp(v int) *int { return &v }

func tokens(access, refresh string, expiresIn *int) *client.TokenResponse {
	return &client.TokenResponse{AccessToken: access, RefreshToken: refresh, ExpiresIn: expiresIn}
}

// signedWithExp builds a JWT whose only interesting claim is exp. The guard
// never verifies it, so the key is irrelevant.
func signedWithExp(exp time.Time) string {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("irrelevant"))
	if err != nil {
		panic(err)
	}
	return s
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
