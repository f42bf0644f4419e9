// Package auth implements the admin gate: credential validation, signed
// session tokens carried in a cookie, and the request gate that protects
// the CMS admin surface.
package auth

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "AuthToken"

	// DefaultExpiration is the token validity window when none is configured.
	DefaultExpiration = 2 * time.Hour

	// fallbackMaxAge is the cookie Max-Age used when the window cannot be
	// expressed as a positive number of seconds.
	fallbackMaxAge = 2 * 60 * 60
)

// Config holds the admin credentials and signing policy.
// It is built once at startup and never mutated.
type Config struct {
	// Username and Password are the single admin credential pair.
	Username string
	Password string
	// PasswordHash is an optional bcrypt hash. When set it is used
	// instead of Password.
	PasswordHash string

	// Secret signs and verifies session tokens. Empty means fail closed.
	Secret string

	// Expiration is the token and cookie validity window.
	Expiration time.Duration

	// SecureCookie sets the Secure attribute (production mode only).
	SecureCookie bool
}

// HasCredentials reports whether both a username and a password (or hash)
// are configured.
func (c Config) HasCredentials() bool {
	return c.Username != "" && (c.Password != "" || c.PasswordHash != "")
}

// HasSecret reports whether a signing secret is configured.
func (c Config) HasSecret() bool {
	return c.Secret != ""
}

func (c Config) expiration() time.Duration {
	if c.Expiration <= 0 {
		return DefaultExpiration
	}
	return c.Expiration
}

// ParseExpiration parses a token lifetime. Bare integers are seconds;
// otherwise Go duration syntax is accepted, extended with "d" (days) and
// "w" (weeks) suffixes. An empty string yields DefaultExpiration.
func ParseExpiration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultExpiration, nil
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs <= 0 || secs > maxExpirationSeconds {
			return 0, fmt.Errorf("expiration out of range: %q", s)
		}
		return time.Duration(secs) * time.Second, nil
	}

	unit := time.Duration(0)
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		unit = 7 * 24 * time.Hour
	}
	if unit != 0 {
		n, err := strconv.ParseFloat(strings.TrimSpace(s[:len(s)-1]), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("invalid expiration %q", s)
		}
		v := n * float64(unit)
		if v >= math.MaxInt64 {
			return 0, fmt.Errorf("expiration out of range: %q", s)
		}
		return checkWindow(s, time.Duration(v))
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid expiration %q: %w", s, err)
	}
	return checkWindow(s, d)
}

const maxExpirationSeconds = math.MaxInt64 / int64(time.Second)

// checkWindow rejects windows a cookie Max-Age cannot represent.
func checkWindow(s string, d time.Duration) (time.Duration, error) {
	if d <= 0 {
		return 0, fmt.Errorf("expiration must be positive: %q", s)
	}
	if d < time.Second {
		return 0, fmt.Errorf("expiration must be at least one second: %q", s)
	}
	return d, nil
}

// MaxAgeSeconds converts a validity window to a cookie Max-Age.
func MaxAgeSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if secs <= 0 {
		return fallbackMaxAge
	}
	return secs
}
