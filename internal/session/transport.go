package session

import (
	"io"
	"net/http"
)

// Transport attaches the session's bearer token. On a 401 it refreshes once
// (shared with concurrent callers) and replays the request; when that is not
// possible it hands the failure to Guard.HandleUnauthorized. A 401 for a token
// that has since been replaced is replayed without another refresh. A caller
// whose context ends while waiting gets ctx.Err() and leaves the session alone.
type Transport struct {
	Guard *Guard
	Base  http.RoundTripper
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	first := req.Clone(ctx)
	sent := t.Guard.attach(first)

	resp, err := t.base().RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// a consumed body without GetBody cannot be replayed
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		t.Guard.HandleUnauthorized(ctx)
		return resp, nil
	}
	if _, rerr := t.Guard.refresh(ctx, sent); rerr != nil {
		if cerr := ctx.Err(); cerr != nil {
			drain(resp)
			return nil, cerr
		}
		t.Guard.HandleUnauthorized(ctx)
		return resp, nil
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, berr := req.GetBody()
		if berr != nil {
			t.Guard.HandleUnauthorized(ctx)
			return resp, nil
		}
		retry.Body = body
	}
	drain(resp)
	t.Guard.attach(retry)

	resp, err = t.base().RoundTrip(retry)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		t.Guard.HandleUnauthorized(ctx)
	}
	return resp, err
}

// Client returns an http.Client that routes through the guard.
func (g *Guard) Client(base http.RoundTripper) *http.Client {
	return &http.Client{Transport: &Transport{Guard: g, Base: base}}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
