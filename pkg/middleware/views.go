package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finboard/finboard/backend/gateway/internal/session"
	"github.com/finboard/finboard/backend/gateway/pkg/logger"
)

// AccessCookie mirrors the access token for browser navigations.
const AccessCookie = "access_token"

// ViewGuard applies the navigation policy to GET/HEAD page requests using
// the access_token cookie. A cookie that no longer verifies counts as an
// expired session and is cleared.
func ViewGuard(ver Verifier, policy session.Policy, secureCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Next()
			return
		}
		if policy.Classify(c.Request.URL.Path) == session.RouteOther {
			c.Next()
			return
		}

		state := session.NoSession
		if raw, err := c.Cookie(AccessCookie); err == nil && raw != "" {
			state = session.ExpiredSession
			if claims, err := ver.VerifyAccess(raw); err == nil {
				state = session.ValidSession
				c.Set(ClaimsKey, claims)
			}
		}

		d := policy.Decide(state, c.Request.URL.Path)
		if d.Clear {
			ClearAccessCookie(c, secureCookie)
		}
		if !d.Allowed() {
			logger.Debugf("view guard: %s %s (%s) -> %s", state, c.Request.URL.Path, d.Class, d.Redirect)
			c.Redirect(http.StatusFound, d.Redirect)
			c.Abort()
			return
		}
		c.Next()
	}
}

// SetAccessCookie mirrors an access token into an HttpOnly cookie.
func SetAccessCookie(c *gin.Context, token string, maxAge int, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessCookie, token, maxAge, "/", "", secure, true)
}

func ClearAccessCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessCookie, "", -1, "/", "", secure, true)
}
