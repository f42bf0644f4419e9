package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/M-Creative-ltd/TanteBeauty/internal/logging"
)

const (
	DefaultLoginPath    = "/keystatic-login"
	DefaultLoginAPIPath = "/api/keystatic-login"
	DefaultLogoutPath   = "/keystatic-logout"
	DefaultReturnPath   = "/keystatic"
)

// DefaultProtectedPrefixes are the admin UI and its API.
var DefaultProtectedPrefixes = []string{"/keystatic", "/api/keystatic"}

// State is the gate's classification of a request.
type State int

const (
	PublicPath State = iota
	LoginOrLogoutPath
	ProtectedAuthorized
	ProtectedUnauthorized
)

func (s State) String() string {
	switch s {
	case PublicPath:
		return "public"
	case LoginOrLogoutPath:
		return "login_or_logout"
	case ProtectedAuthorized:
		return "protected_authorized"
	case ProtectedUnauthorized:
		return "protected_unauthorized"
	default:
		return "unknown"
	}
}

// Decision is what the gate does with a request.
type Decision struct {
	State State
	// Allow forwards the request unchanged.
	Allow bool
	// RedirectToLogin answers with a redirect to the login page.
	RedirectToLogin bool
	// ClearCookie drops a stale session cookie alongside the redirect.
	ClearCookie bool
}

// GateConfig names the paths the gate treats specially.
type GateConfig struct {
	LoginPath         string
	LoginAPIPath      string
	LogoutPath        string
	ProtectedPrefixes []string
}

// DefaultGateConfig returns the standard admin paths.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		LoginPath:         DefaultLoginPath,
		LoginAPIPath:      DefaultLoginAPIPath,
		LogoutPath:        DefaultLogoutPath,
		ProtectedPrefixes: append([]string(nil), DefaultProtectedPrefixes...),
	}
}

// TokenVerifier verifies session tokens.
type TokenVerifier interface {
	Verify(token string) Result
}

// Gate protects admin paths behind a valid session cookie.
type Gate struct {
	cfg      GateConfig
	verifier TokenVerifier
	secure   bool
}

// NewGate creates a gate. secure controls the flags on cleared cookies.
func NewGate(cfg GateConfig, verifier TokenVerifier, secure bool) *Gate {
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	return &Gate{cfg: cfg, verifier: verifier, secure: secure}
}

// matchPrefix reports whether path equals prefix or lies beneath it.
// "/keystatic" matches "/keystatic/x" but not "/keystatic-login".
func matchPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}

func (g *Gate) isAuthPath(path string) bool {
	for _, p := range []string{g.cfg.LoginPath, g.cfg.LoginAPIPath, g.cfg.LogoutPath} {
		if matchPrefix(path, p) {
			return true
		}
	}
	return false
}

// IsProtected reports whether path requires a session.
func (g *Gate) IsProtected(path string) bool {
	if g.isAuthPath(path) {
		return false
	}
	for _, p := range g.cfg.ProtectedPrefixes {
		if matchPrefix(path, p) {
			return true
		}
	}
	return false
}

// Classify decides a request from its path and cookie status.
// cookieValid is ignored when no cookie is present.
func (g *Gate) Classify(path string, cookiePresent, cookieValid bool) Decision {
	switch {
	case g.isAuthPath(path):
		return Decision{State: LoginOrLogoutPath, Allow: true}
	case !g.IsProtected(path):
		return Decision{State: PublicPath, Allow: true}
	case cookiePresent && cookieValid:
		return Decision{State: ProtectedAuthorized, Allow: true}
	default:
		return Decision{
			State:           ProtectedUnauthorized,
			RedirectToLogin: true,
			ClearCookie:     cookiePresent,
		}
	}
}

// LoginURL returns the login page address that returns to u after sign-in.
func (g *Gate) LoginURL(u *url.URL) string {
	from := u.Path
	if u.RawQuery != "" {
		from += "?" + u.RawQuery
	}
	// Slashes are legal in a query value and keep the URL readable.
	return g.cfg.LoginPath + "?from=" + strings.ReplaceAll(url.QueryEscape(from), "%2F", "/")
}

// Middleware applies the gate in front of next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if !g.IsProtected(path) {
			next.ServeHTTP(w, r)
			return
		}

		var res Result
		cookie, err := r.Cookie(CookieName)
		present := err == nil
		if present {
			res = g.verifier.Verify(cookie.Value)
		} else {
			res = Result{Reason: ReasonMissingToken}
		}

		d := g.Classify(path, present, res.Valid)
		diag := DiagnosticFrom(r.Context())

		if d.Allow {
			if diag != nil {
				diag.Username = res.Username
			}
			next.ServeHTTP(w, r.WithContext(WithUsername(r.Context(), res.Username)))
			return
		}

		if diag != nil {
			diag.Reason = res.Reason
		}
		logging.Auth().Debug("Gate denied request",
			"path", path,
			"reason", string(res.Reason),
			"cookie_present", present)

		if d.ClearCookie {
			http.SetCookie(w, ClearedCookie(g.secure))
		}
		http.Redirect(w, r, g.LoginURL(r.URL), http.StatusFound)
	})
}

type contextKey int

const (
	usernameKey contextKey = iota
	diagnosticKey
)

// WithUsername stores the authenticated admin username in ctx.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// UsernameFromContext returns the admin username set by the gate.
func UsernameFromContext(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(usernameKey).(string)
	return u, ok && u != ""
}

// Diagnostic collects per-request auth details for the access log.
// Reasons are never sent to the client.
type Diagnostic struct {
	Username string
	Reason   Reason
}

// WithDiagnostic attaches an empty Diagnostic to ctx and returns it.
func WithDiagnostic(ctx context.Context) (context.Context, *Diagnostic) {
	d := &Diagnostic{}
	return context.WithValue(ctx, diagnosticKey, d), d
}

// DiagnosticFrom returns the request's Diagnostic, or nil.
func DiagnosticFrom(ctx context.Context) *Diagnostic {
	d, _ := ctx.Value(diagnosticKey).(*Diagnostic)
	return d
}
