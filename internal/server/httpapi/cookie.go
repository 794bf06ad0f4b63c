package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	DefaultCookieName = "refresh_token"
	// CookiePath scopes the refresh cookie to the auth routes.
	CookiePath = "/api/auth"
)

type CookieOptions struct {
	Name   string
	Domain string
	Secure bool
}

// setRefreshCookie writes the refresh token. Without remember-me the cookie
// has no expiry and dies with the browser session.
func (h *Handler) setRefreshCookie(c *gin.Context, value string, expiresAt time.Time, rememberMe bool) {
	ck := &http.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Path:     CookiePath,
		Domain:   h.cookie.Domain,
		Secure:   h.cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	if rememberMe {
		ck.Expires = expiresAt
		ck.MaxAge = int(expiresAt.Sub(h.clock.Now()).Seconds())
		if ck.MaxAge <= 0 {
			ck.MaxAge = -1
		}
	}
	http.SetCookie(c.Writer, ck)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     CookiePath,
		Domain:   h.cookie.Domain,
		Secure:   h.cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
