// Package session is the client side of the gateway's auth: it holds the
// token pair, attaches it to requests, refreshes it and guards navigation.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/finboard/finboard/backend/gateway/internal/client"
	"github.com/finboard/finboard/backend/gateway/pkg/logger"
)

var (
	// ErrNoSession is returned by Refresh when there is no refresh token.
	ErrNoSession = errors.New("no session")
	// ErrSuperseded is returned when a logout landed while a login or
	// refresh was in flight; its result is discarded.
	ErrSuperseded = errors.New("session changed while request was in flight")
)

// API is the part of the gateway the guard calls.
type API interface {
	Login(ctx context.Context, email, password string) (*client.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*client.TokenResponse, error)
	Logout(ctx context.Context, accessToken string) error
}

// Navigator is the view layer: the path currently shown and a way to move.
type Navigator interface {
	Current() string
	Redirect(path string)
}

type Guard struct {
	api    API
	store  Store
	nav    Navigator
	policy Policy
	now    func() time.Time

	mu sync.Mutex
	// epoch increases on logout and on an auth failure; results of requests
	// started under an older epoch are dropped.
	epoch uint64
	// unauthorized is set once an auth failure has been handled and reset
	// by the next successful login or refresh.
	unauthorized bool

	sf singleflight.Group
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option { return func(g *Guard) { g.now = now } }
func WithPolicy(p Policy) Option            { return func(g *Guard) { g.policy = p } }
func WithNavigator(n Navigator) Option      { return func(g *Guard) { g.nav = n } }

func NewGuard(api API, store Store, opts ...Option) *Guard {
	g := &Guard{api: api, store: store, policy: DefaultPolicy(), now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Login authenticates and stores the new pair. Failures leave the stored
// state untouched.
func (g *Guard) Login(ctx context.Context, email, password string) error {
	epoch := g.currentEpoch()

	resp, err := g.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return g.commit(ctx, epoch, resp)
}

// State derives the session state from the stored pair and the clock.
func (g *Guard) State(ctx context.Context) State {
	p, err := g.store.Load(ctx)
	if err != nil {
		logger.Warnf("session: load failed: %v", err)
		return NoSession
	}
	return g.stateOf(p)
}

func (g *Guard) IsValid(ctx context.Context) bool {
	return g.State(ctx) == ValidSession
}

// Current returns a copy of the stored pair, or nil.
func (g *Guard) Current(ctx context.Context) *Pair {
	p, err := g.store.Load(ctx)
	if err != nil || !p.complete() {
		return nil
	}
	return p
}

// Logout clears the session and tells the gateway, ignoring its answer.
func (g *Guard) Logout(ctx context.Context) error {
	g.mu.Lock()
	g.epoch++
	p, _ := g.store.Load(ctx)
	err := g.store.Clear(ctx)
	g.mu.Unlock()
	g.sf.Forget(refreshKey)

	if p.complete() {
		if lerr := g.api.Logout(ctx, p.AccessToken); lerr != nil {
			logger.Debugf("session: logout call failed: %v", lerr)
		}
	}
	return err
}

const refreshKey = "refresh"

// Refresh exchanges the stored refresh token for a new pair. Concurrent
// callers share one request and one result. Any failure clears the session.
// Cancelling ctx only stops this caller from waiting.
func (g *Guard) Refresh(ctx context.Context) (*Pair, error) {
	return g.refresh(ctx, "")
}

// refresh with a non-empty stale is for a request rejected while carrying that
// access token. When the stored token has already moved on, the stored pair is
// returned and no new refresh is made.
func (g *Guard) refresh(ctx context.Context, stale string) (*Pair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := g.sf.DoChan(refreshKey, func() (any, error) {
		return g.doRefresh(context.WithoutCancel(ctx), stale)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Pair).clone(), nil
	}
}

func (g *Guard) doRefresh(ctx context.Context, stale string) (*Pair, error) {
	g.mu.Lock()
	epoch := g.epoch
	p, err := g.store.Load(ctx)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !p.complete() {
		g.clearIf(ctx, epoch)
		return nil, ErrNoSession
	}
	if stale != "" && p.AccessToken != stale && g.stateOf(p) == ValidSession {
		return p, nil
	}

	resp, err := g.api.Refresh(ctx, p.RefreshToken)
	if err != nil {
		logger.Infof("session: refresh failed, clearing session: %v", err)
		g.clearIf(ctx, epoch)
		return nil, err
	}
	if err := g.commit(ctx, epoch, resp); err != nil {
		return nil, err
	}
	return g.pairFrom(resp), nil
}

// Attach sets the bearer header from the stored access token, if any.
func (g *Guard) Attach(req *http.Request) {
	g.attach(req)
}

// attach returns the access token it set, or "".
func (g *Guard) attach(req *http.Request) string {
	if p := g.Current(req.Context()); p != nil {
		req.Header.Set("Authorization", "Bearer "+p.AccessToken)
		return p.AccessToken
	}
	req.Header.Del("Authorization")
	return ""
}

// HandleUnauthorized reacts to an auth failure: the session is cleared and
// the navigator sent to the login view, once per failure.
func (g *Guard) HandleUnauthorized(ctx context.Context) {
	g.mu.Lock()
	g.epoch++
	if err := g.store.Clear(ctx); err != nil {
		logger.Warnf("session: clear failed: %v", err)
	}
	handled := g.unauthorized
	g.unauthorized = true
	g.mu.Unlock()
	g.sf.Forget(refreshKey)

	if handled || g.nav == nil || g.onLoginView() {
		return
	}
	g.nav.Redirect(g.policy.LoginPath)
}

// Navigate applies the route policy to path and follows a redirect through
// the navigator when one is configured.
func (g *Guard) Navigate(ctx context.Context, path string) Decision {
	d := g.policy.Decide(g.State(ctx), path)
	if d.Clear {
		// a refresh may have committed since the state was read
		g.mu.Lock()
		state := ExpiredSession
		if p, err := g.store.Load(ctx); err == nil {
			state = g.stateOf(p)
		}
		if state == ExpiredSession {
			if err := g.store.Clear(ctx); err != nil {
				logger.Warnf("session: clear failed: %v", err)
			}
		} else {
			d = g.policy.Decide(state, path)
		}
		g.mu.Unlock()
	}
	if g.nav != nil {
		if d.Allowed() {
			g.nav.Redirect(path)
		} else {
			g.nav.Redirect(d.Redirect)
		}
	}
	return d
}

func (g *Guard) onLoginView() bool {
	cur := g.nav.Current()
	if i := strings.IndexAny(cur, "?#"); i >= 0 {
		cur = cur[:i]
	}
	login := g.policy.LoginPath
	return cur == login || strings.HasPrefix(cur, login+"/")
}

func (g *Guard) currentEpoch() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

func (g *Guard) commit(ctx context.Context, epoch uint64, resp *client.TokenResponse) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != epoch {
		return ErrSuperseded
	}
	if err := g.store.Save(ctx, g.pairFrom(resp)); err != nil {
		return err
	}
	g.unauthorized = false
	return nil
}

func (g *Guard) clearIf(ctx context.Context, epoch uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != epoch {
		return
	}
	if err := g.store.Clear(ctx); err != nil {
		logger.Warnf("session: clear failed: %v", err)
	}
}

// pairFrom sets the expiry from the declared lifetime, else from the access
// token's exp claim, else leaves it unset.
func (g *Guard) pairFrom(resp *client.TokenResponse) *Pair {
	p := &Pair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	if resp.ExpiresIn != nil && *resp.ExpiresIn > 0 {
		t := g.now().Add(time.Duration(*resp.ExpiresIn) * time.Second)
		p.ExpiresAt = &t
	} else if exp, ok := tokenExpiry(resp.AccessToken); ok {
		p.ExpiresAt = &exp
	}
	return p
}

func (g *Guard) stateOf(p *Pair) State {
	if !p.complete() {
		return NoSession
	}
	if p.ExpiresAt != nil && !g.now().Before(*p.ExpiresAt) {
		return ExpiredSession
	}
	return ValidSession
}
