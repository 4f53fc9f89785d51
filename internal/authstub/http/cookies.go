package http

import (
	"net/http"
	"time"
)

const (
	accessCookieName  = "sw_access"
	refreshCookieName = "sw_refresh"
)

// setSessionCookies writes the HTTP-only session cookies. With rememberMe the
// refresh cookie persists for its full TTL; otherwise both are session
// cookies that die with the browser.
func setSessionCookies(w http.ResponseWriter, access, refresh string, accessTTL, refreshTTL time.Duration, rememberMe bool) {
	accessMaxAge, refreshMaxAge := 0, 0
	if rememberMe {
		accessMaxAge = int(accessTTL.Seconds())
		refreshMaxAge = int(refreshTTL.Seconds())
	}

	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    access,
		Path:     "/",
		MaxAge:   accessMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refresh,
		Path:     "/",
		MaxAge:   refreshMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookies expires both session cookies.
func clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
