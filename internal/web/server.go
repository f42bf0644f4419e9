// Package web provides the HTTP server: the public site, the gated CMS
// admin surface and the middleware chain in front of both.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/M-Creative-ltd/TanteBeauty/internal/auth"
	"github.com/M-Creative-ltd/TanteBeauty/internal/config"
	"github.com/M-Creative-ltd/TanteBeauty/internal/content"
	"github.com/M-Creative-ltd/TanteBeauty/internal/logging"
	"github.com/M-Creative-ltd/TanteBeauty/internal/markdown"
	"github.com/M-Creative-ltd/TanteBeauty/internal/site"
)

// Server is the site server.
type Server struct {
	cfg        *config.Config
	store      *content.Store
	watcher    *content.Watcher
	throttle   *LoginThrottle
	limiter    *RateLimiter
	accessLog  *AccessLogger
	httpServer *http.Server
	logger     *slog.Logger

	mu       sync.Mutex
	shutdown bool
}

// NewServer builds the handlers and middleware chain for cfg.
// Nothing listens until Serve or ListenAndServe is called.
func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.Web()

	proxies, err := NewProxyResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}
	clientIP := proxies.ClientIP

	authCfg := cfg.AuthSettings()
	gateCfg := cfg.GateSettings()

	s := &Server{
		cfg:    cfg,
		store:  content.NewStore(cfg.Content.Dir, logging.Content()),
		logger: logger,
		throttle: NewLoginThrottle(
			cfg.Auth.MaxLoginFailures, cfg.Auth.FailureWindow, cfg.Auth.Lockout),
		limiter: NewRateLimiter(RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}, clientIP),
		accessLog: NewAccessLogger(AccessLogConfig{
			Path:       cfg.AccessLog.Path,
			MaxSizeMB:  cfg.AccessLog.MaxSizeMB,
			MaxBackups: cfg.AccessLog.MaxBackups,
		}, gateCfg, clientIP),
	}

	renderer := markdown.New()
	pages, err := site.New(s.store, renderer, cfg.Site.BaseURL, logger)
	if err != nil {
		s.closeResources()
		return nil, fmt.Errorf("failed to build site: %w", err)
	}
	authHandlers, err := NewAuthHandlers(authCfg, gateCfg, s.throttle, clientIP)
	if err != nil {
		s.closeResources()
		return nil, fmt.Errorf("failed to build login handlers: %w", err)
	}
	admin, err := NewAdmin(s.store, renderer, gateCfg.LogoutPath)
	if err != nil {
		s.closeResources()
		return nil, fmt.Errorf("failed to build admin surface: %w", err)
	}

	mux := http.NewServeMux()
	pages.Register(mux)
	authHandlers.Register(mux)
	admin.Register(mux)
	NewGitHubDebug(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret).Register(mux)
	mux.HandleFunc("/api/health", s.handleHealthCheck)

	gate := auth.NewGate(gateCfg, auth.NewVerifier(authCfg), authCfg.SecureCookie)

	// Innermost first.
	var handler http.Handler = gate.Middleware(mux)
	handler = requestTimeoutMiddleware(cfg.Server.RequestTimeout)(handler)
	handler = requestSizeLimitMiddleware(cfg.Server.MaxBodyBytes)(handler)
	handler = s.limiter.Middleware(handler)
	handler = corsMiddleware(cfg.IsProduction(), cfg.CORS.AllowedOrigin)(handler)
	handler = securityHeadersMiddleware(SecurityConfig{
		EnableHSTS: cfg.IsProduction(),
		HSTSMaxAge: DefaultSecurityConfig().HSTSMaxAge,
	})(handler)
	handler = hideServerInfoMiddleware(handler)
	handler = loggingMiddleware(clientIP)(handler)
	handler = requestIDMiddleware(handler)
	handler = s.accessLog.Middleware(handler)
	handler = diagnosticMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	for _, w := range cfg.Warnings {
		logger.Warn("Configuration warning", "warning", w)
	}
	logger.Info("Web server initialized",
		"addr", s.httpServer.Addr,
		"environment", cfg.Environment,
		"content_dir", s.store.Root(),
		"login_path", gateCfg.LoginPath)

	return s, nil
}

// Handler returns the full middleware chain. Used with httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Store returns the content store backing the site.
func (s *Server) Store() *content.Store {
	return s.store
}

// startWatcher begins invalidating the content cache on file changes.
func (s *Server) startWatcher() error {
	if !s.cfg.Content.Watch {
		return nil
	}
	w, err := content.NewWatcher(s.store.Root(), logging.Content())
	if err != nil {
		return fmt.Errorf("failed to create content watcher: %w", err)
	}
	w.Subscribe(s.store)
	if err := w.Start(); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to start content watcher: %w", err)
	}

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return nil
}

// Serve starts the content watcher and serves on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	if err := s.startWatcher(); err != nil {
		// Serving stale content beats not serving at all.
		s.logger.Warn("Content watcher disabled", "error", err)
	}
	s.logger.Info("Listening", "addr", listener.Addr().String())
	err := s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx
// expires and releases background resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)
	s.closeResources()
	return err
}

// IsShutdown reports whether Shutdown has been called.
func (s *Server) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) closeResources() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if w != nil {
		if err := w.Close(); err != nil {
			s.logger.Warn("Failed to close content watcher", "error", err)
		}
	}
	if s.throttle != nil {
		s.throttle.Close()
	}
	if s.limiter != nil {
		s.limiter.Close()
		s.limiter = nil
	}
	if err := s.accessLog.Close(); err != nil {
		s.logger.Warn("Failed to close access log", "error", err)
	}
}

// handleHealthCheck reports liveness. It is public.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, "GET, HEAD")
		return
	}
	if s.IsShutdown() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"reason": "server_shutting_down",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
