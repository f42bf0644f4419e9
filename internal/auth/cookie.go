package auth

import (
	"net/http"
	"time"
)

// SessionCookie builds the session cookie carrying a signed token.
func SessionCookie(token string, maxAge int, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}

// ClearedCookie builds a cookie that makes the browser drop the session.
// Path and flags match SessionCookie so the browser replaces it.
func ClearedCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		// A negative MaxAge is sent as "Max-Age=0".
		MaxAge:  -1,
		Expires: time.Unix(0, 0).UTC(),
	}
}
