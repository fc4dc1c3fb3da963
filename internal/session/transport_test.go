package session

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/finboard/backend/gateway/internal/common"
)

func mustRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://example.invalid"+path, nil)
	require.NoError(t, err)
	return req
}

// apiServer accepts only the given bearer and echoes request bodies.
func apiServer(t *testing.T, accept *atomic.Value, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+accept.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
			return
		}
		b, _ := io.ReadAll(r.Body)
		_, _ = w.Write(append([]byte("ok:"), b...))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTransport_RefreshesAndRetriesOnce(t *testing.T) {
	api := &fakeAPI{loginResp: tokens("a1", "r1", intp(900)), refreshResp: tokens("a2", "r2", intp(900))}
	g, _, nav, _ := newTestGuard(api, "/reports")
	ctx := context.Background()
	require.NoError(t, g.Login(ctx, "u@example.com", "right"))

	var accept atomic.Value
	accept.Store("a2")
	var hits atomic.Int32
	srv := apiServer(t, &accept, &hits)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/reports", bytes.NewReader([]byte("payload")))
	require.NoError(t, err)
	resp, err := g.Client(nil).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok:payload", string(body))
	require.EqualValues(t, 2, hits.Load())
	_, refreshCalls, _ := api.calls()
	require.Equal(t, 1, refreshCalls)
	require.Empty(t, nav.History())
	require.Equal(t, "a2", g.Current(ctx).AccessToken)
}

func TestTransport_RefreshFailureRedirectsToLogin(t *testing.T) {
	api := &fakeAPI{loginResp: tokens("a1", "r1", intp(900)), refreshErr: common.ErrInvalidToken}
	g, _, nav, _ := newTestGuard(api, "/reports")
	ctx := context.Background()
	require.NoError(t, g.Login(ctx, "u@example.com", "right"))

	var accept atomic.Value
	accept.Store("never")
	var hits atomic.Int32
	srv := apiServer(t, &accept, &hits)

	resp, err := g.Client(nil).Get(srv.URL + "/reports")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 1, hits.Load())
	require.Equal(t, []string{"/login"}, nav.History())
	require.Equal(t, NoSession, g.State(ctx))
}

func TestTransport_RetryStillUnauthorized(t *testing.T) {
	api := &fakeAPI{loginResp: tokens("a1", "r1", intp(900)), refreshResp: tokens("a2", "r2", intp(900))}
	g, _, nav, _ := newTestGuard(api, "/jobs")
	ctx := context.Background()
	require.NoError(t, g.Login(ctx, "u@example.com", "right"))

	var accept atomic.Value
	accept.Store("nobody")
	var hits atomic.Int32
	srv := apiServer(t, &accept, &hits)

	resp, err := g.Client(nil).Get(srv.URL + "/jobs")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 2, hits.Load())
	_, refreshCalls, _ := api.calls()
	require.Equal(t, 1, refreshCalls)
	require.Equal(t, []string{"/login"}, nav.History())
}

func TestTransport_NoSessionSendsNoBearer(t *testing.T) {
	g, _, nav, _ := newTestGuard(&fakeAPI{}, "/login")

	var seen atomic.Value
	seen.Store("unset")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer leftover")
	resp, err := g.Client(nil).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "", seen.Load())
	// already on the login view: no redirect
	require.Empty(t, nav.History())
	// the caller's request is not mutated
	require.Equal(t, "Bearer leftover", req.Header.Get("Authorization"))
}

func TestTransport_UnreplayableBody(t *testing.T) {
	api := &fakeAPI{loginResp: tokens("a1", "r1", intp(900)), refreshResp: tokens("a2", "r2", intp(900))}
	g, _, nav, _ := newTestGuard(api, "/settings")
	require.NoError(t, g.Login(context.Background(), "u@example.com", "right"))

	var accept atomic.Value
	accept.Store("a2")
	var hits atomic.Int32
	srv := apiServer(t, &accept, &hits)

	req, err := http.NewRequest(http.MethodPost, srv.URL, io.NopCloser(strings.NewReader("x")))
	require.NoError(t, err)
	req.GetBody = nil
	resp, err := g.Client(nil).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_, refreshCalls, _ := api.calls()
	require.Equal(t, 0, refreshCalls)
	require.Equal(t, []string{"/login"}, nav.History())
}

// rotatedServer accepts only a2 and reports each request that still carried a1.
func rotatedServer(t *testing.T, staleHits chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer a2":
			_, _ = w.Write([]byte("ok:" + r.URL.Path))
		case "Bearer a1":
			staleHits <- r.URL.Path
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type result struct {
	status int
	body   string
	err    error
}

func get(ctx context.Context, c *http.Client, url string) result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return result{err: err}
	}
	resp, err := c.Do(req)
	if err != nil {
		return result{err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return result{status: resp.StatusCode, body: string(b)}
}

func TestTransport_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	api := &fakeAPI{
		loginResp:      tokens("a1", "r1", intp(900)),
		refreshResp:    tokens("a2", "r2", intp(900)),
		refreshGate:    make(chan struct{}),
		refreshStarted: make(chan struct{}, 4),
	}
	g, _, nav, _ := newTestGuard(api, "/reports")
	ctx := context.Background()
	require.NoError(t, g.Login(ctx, "u@example.com", "right"))

	staleHits := make(chan string, 4)
	srv := rotatedServer(t, staleHits)
	c := g.Client(nil)

	results := make([]result, 2)
	var wg sync.WaitGroup
	for i, path := range []string{"/reports", "/jobs"} {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			results[i] = get(ctx, c, srv.URL+path)
		}(i, path)
	}
	<-staleHits
	<-staleHits
	<-api.refreshStarted
	close(api.refreshGate)
	wg.Wait()

	for _, r := range results {
		require.NoError(t, r.err)
		assert.Equal(t, http.StatusOK, r.status)
	}
	_, refreshCalls, _ := api.calls()
	require.Equal(t, 1, refreshCalls)
	p := g.Current(ctx)
	require.NotNil(t, p)
	require.Equal(t, "a2", p.AccessToken)
	require.Equal(t, "r2", p.RefreshToken)
	require.Empty(t, nav.History())
}

func TestTransport_LateUnauthorizedForReplacedTokenSkipsRefresh(t *testing.T) {
	api := &fakeAPI{loginResp: tokens("a1", "r1", intp(900)), refreshResp: tokens("a2", "r2", intp(900))}
	g, _, nav, _ := newTestGuard(api, "/reports")
	ctx := context.Background()
	require.NoError(t, g.Login(ctx, "u@example.com", "right"))

	slowHit := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "Bearer a1" && r.URL.Path == "/slow" {
			close(slowHit)
			<-release
		}
		if auth != "Bearer a2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()
	c := g.Client(nil)

	slow := make(chan result, 1)
	go func() { slow <- get(ctx, c, srv.URL+"/slow") }()
	<-slowHit

	// the fast request refreshes while the slow one still holds a1
	fast := get(ctx, c, srv.URL+"/fast")
	require.NoError(t, fast.err)
	require.Equal(t, http.StatusOK, fast.status)

	close(release)
	late := <-slow
	require.NoError(t, late.err)
	require.Equal(t, http.StatusOK, late.status)

	_, refreshCalls, _ := api.calls()
	require.Equal(t, 1, refreshCalls)
	require.Equal(t, "a2", g.Current(ctx).AccessToken)
	require.Empty(t, nav.History())
}

func TestTransport_CancelledCallerLeavesSharedRefreshIntact(t *testing.T) {
	api := &fakeAPI{
		loginResp:      tokens("a1", "r1", intp(900)),
		refreshResp:    tokens("a2", "r2", intp(900)),
		refreshGate:    make(chan struct{}),
		refreshStarted: make(chan struct{}, 4),
	}
	g, _, nav, _ := newTestGuard(api, "/reports")
	ctx := context.Background()
	require.NoError(t, g.Login(ctx, "u@example.com", "right"))

	staleHits := make(chan string, 4)
	srv := rotatedServer(t, staleHits)
	c := g.Client(nil)

	leaving, leave := context.WithCancel(ctx)
	defer leave()
	left := make(chan result, 1)
	stayed := make(chan result, 1)
	go func() { left <- get(leaving, c, srv.URL+"/reports") }()
	go func() { stayed <- get(ctx, c, srv.URL+"/jobs") }()
	<-staleHits
	<-staleHits
	<-api.refreshStarted

	// navigating away mid-refresh
	leave()
	a := <-left
	require.ErrorIs(t, a.err, context.Canceled)
	require.Empty(t, nav.History())

	close(api.refreshGate)
	b := <-stayed
	require.NoError(t, b.err)
	require.Equal(t, http.StatusOK, b.status)
	require.Equal(t, "ok:/jobs", b.body)

	p := g.Current(ctx)
	require.NotNil(t, p)
	require.Equal(t, "a2", p.AccessToken)
	require.Equal(t, ValidSession, g.State(ctx))
	require.Empty(t, nav.History())
	_, refreshCalls, _ := api.calls()
	require.Equal(t, 1, refreshCalls)
}
