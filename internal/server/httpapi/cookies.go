package httpapi

import (
	"net/http"
	"time"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/auth"
)

type cookieJar struct {
	secure bool
	maxAge time.Duration
}

func (c cookieJar) setRefresh(w http.ResponseWriter, value string) {
	http.SetCookie(w, c.cookie(value, int(c.maxAge.Seconds())))
}

func (c cookieJar) clearRefresh(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1))
}

func (c cookieJar) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     refreshCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func refreshCookieValue(r *http.Request) string {
	c, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
