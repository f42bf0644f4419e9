package web

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/M-Creative-ltd/TanteBeauty/internal/auth"
	"github.com/M-Creative-ltd/TanteBeauty/internal/logging"
)

const maxLoginFormMemory = 32 << 10

// AuthHandlers serves the login page, the login API and logout.
type AuthHandlers struct {
	cfg       auth.Config
	paths     auth.GateConfig
	validator *auth.Validator
	issuer    *auth.Issuer
	throttle  *LoginThrottle
	clientIP  func(*http.Request) string
	page      *template.Template
	logger    *slog.Logger
}

// NewAuthHandlers wires the credential validator and token issuer.
// throttle may be nil to disable lockouts.
func NewAuthHandlers(cfg auth.Config, paths auth.GateConfig, throttle *LoginThrottle, clientIP func(*http.Request) string) (*AuthHandlers, error) {
	page, err := template.ParseFS(assetFS, "templates/login.html")
	if err != nil {
		return nil, err
	}
	if clientIP == nil {
		clientIP = func(r *http.Request) string { return hostOnly(r.RemoteAddr) }
	}
	return &AuthHandlers{
		cfg:       cfg,
		paths:     paths,
		validator: auth.NewValidator(cfg),
		issuer:    auth.NewIssuer(cfg),
		throttle:  throttle,
		clientIP:  clientIP,
		page:      page,
		logger:    logging.Auth(),
	}, nil
}

// Register adds the login and logout routes to mux.
func (h *AuthHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc(h.paths.LoginPath, h.HandleLoginPage)
	mux.HandleFunc(h.scriptPath(), h.handleLoginScript)
	mux.HandleFunc(h.paths.LoginAPIPath, h.HandleLogin)
	mux.HandleFunc(h.paths.LogoutPath, h.HandleLogout)
}

func (h *AuthHandlers) scriptPath() string {
	return strings.TrimSuffix(h.paths.LoginPath, "/") + "/login.js"
}

// sanitizeReturnPath keeps only same-site absolute paths. Anything else,
// including protocol-relative URLs, falls back to the admin root.
func sanitizeReturnPath(from string) string {
	from = strings.TrimSpace(from)
	if from == "" || from[0] != '/' || strings.HasPrefix(from, "//") || strings.HasPrefix(from, `/\`) {
		return auth.DefaultReturnPath
	}
	if strings.ContainsFunc(from, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return auth.DefaultReturnPath
	}
	return from
}

// HandleLoginPage renders the login form.
func (h *AuthHandlers) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, "GET, HEAD")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err := h.page.Execute(w, struct {
		Action string
		From   string
		Script string
	}{
		Action: h.paths.LoginAPIPath,
		From:   sanitizeReturnPath(r.URL.Query().Get("from")),
		Script: h.scriptPath(),
	})
	if err != nil {
		h.logger.Error("Failed to render login page", "error", err)
	}
}

func (h *AuthHandlers) handleLoginScript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, "GET, HEAD")
		return
	}
	http.ServeFileFS(w, r, assetFS, "static/login.js")
}

// parseLoginForm reads username, password and from. Malformed bodies
// yield empty strings, which never match the configured credentials.
func parseLoginForm(r *http.Request) (username, password, from string) {
	err := r.ParseMultipartForm(maxLoginFormMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		return "", "", ""
	}
	return r.PostFormValue("username"), r.PostFormValue("password"), r.PostFormValue("from")
}

// HandleLogin validates the submitted credentials and issues a session
// cookie.
func (h *AuthHandlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ip := h.clientIP(r)
	if h.throttle != nil {
		if locked, left := h.throttle.Locked(ip); locked {
			h.logger.Warn("Login rejected: client locked out", "client_ip", ip, "retry_after", left)
			w.Header().Set("Retry-After", retryAfterSeconds(left))
			writeErrorJSON(w, http.StatusTooManyRequests, msgTooManyAttempts)
			return
		}
	}

	// Never issue a token without a signing secret, whatever the
	// credentials are.
	if !h.cfg.HasSecret() {
		h.logger.Error("Login rejected: signing secret is not configured")
		writeErrorJSON(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	username, password, from := parseLoginForm(r)
	if diag := auth.DiagnosticFrom(r.Context()); diag != nil {
		diag.Username = username
	}

	if !h.validator.Validate(username, password) {
		if h.throttle != nil {
			if locked, lockout := h.throttle.Fail(ip); locked {
				h.logger.Warn("Client locked out after repeated login failures",
					"client_ip", ip, "lockout", lockout)
			}
		}
		h.logger.Info("Login failed", "client_ip", ip)
		writeErrorJSON(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	issued, err := h.issuer.Issue(username)
	if err != nil {
		h.logger.Error("Failed to issue session token", "error", err)
		writeErrorJSON(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	if h.throttle != nil {
		h.throttle.Reset(ip)
	}

	h.logger.Info("Login succeeded", "user", username, "client_ip", ip, "expires_at", issued.ExpiresAt)
	w.Header().Set("Cache-Control", "no-store")
	http.SetCookie(w, issued.Cookie)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"redirect": sanitizeReturnPath(from),
	})
}

// HandleLogout clears the session cookie and redirects home. It is
// idempotent and needs no valid session.
func (h *AuthHandlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, "GET, POST")
		return
	}
	http.SetCookie(w, auth.ClearedCookie(h.cfg.SecureCookie))
	w.Header().Set("Cache-Control", "no-store")
	h.logger.Debug("Logout", "client_ip", h.clientIP(r))
	http.Redirect(w, r, "/", http.StatusFound)
}

// retryAfterSeconds rounds d up to whole seconds, minimum 1.
func retryAfterSeconds(d time.Duration) string {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}
