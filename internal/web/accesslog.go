package web

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/M-Creative-ltd/TanteBeauty/internal/auth"
)

// AccessLogConfig configures the security access log.
type AccessLogConfig struct {
	// Path is the log file. Empty disables access logging.
	Path string
	// MaxSizeMB is the size before rotation. Default: 10.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept. Default: 3.
	MaxBackups int
}

// Security events written to the access log.
const (
	EventLoginSuccess = "login_success"
	EventLoginFailed  = "login_failed"
	EventLoginLocked  = "login_locked"
	EventLoginError   = "login_error"
	EventLogout       = "logout"
	EventGateRedirect = "gate_redirect"
	EventRateLimited  = "rate_limited"
)

// AccessLogger writes one line per security-relevant request.
// A nil *AccessLogger is valid and logs nothing.
type AccessLogger struct {
	mu       sync.Mutex
	writer   io.WriteCloser
	clientIP func(*http.Request) string
	paths    auth.GateConfig
}

// NewAccessLogger opens a rotating access log. It returns nil when
// cfg.Path is empty.
func NewAccessLogger(cfg AccessLogConfig, paths auth.GateConfig, clientIP func(*http.Request) string) *AccessLogger {
	if cfg.Path == "" {
		return nil
	}
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := cfg.MaxBackups
	if maxBackups < 0 {
		maxBackups = 3
	}
	return newAccessLogger(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}, paths, clientIP)
}

func newAccessLogger(w io.WriteCloser, paths auth.GateConfig, clientIP func(*http.Request) string) *AccessLogger {
	if clientIP == nil {
		clientIP = func(r *http.Request) string { return hostOnly(r.RemoteAddr) }
	}
	return &AccessLogger{writer: w, clientIP: clientIP, paths: paths}
}

// Close closes the underlying file.
func (a *AccessLogger) Close() error {
	if a == nil {
		return nil
	}
	return a.writer.Close()
}

// AccessEntry is a single access log line.
type AccessEntry struct {
	Time      time.Time
	ClientIP  string
	Method    string
	Path      string
	Status    int
	Bytes     int64
	Duration  time.Duration
	UserAgent string
	Event     string
	Username  string
	Reason    string
	RequestID string
}

// Write appends e to the log.
// Format: time ip "method path" status bytes duration "user-agent" event [user=] [reason=] [request_id=]
func (a *AccessLogger) Write(e AccessEntry) {
	if a == nil {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s \"%s %s\" %d %d %dms \"%s\" %s",
		e.Time.UTC().Format(time.RFC3339),
		e.ClientIP,
		e.Method,
		escapeQuotes(e.Path),
		e.Status,
		e.Bytes,
		e.Duration.Milliseconds(),
		escapeQuotes(e.UserAgent),
		e.Event)
	if e.Username != "" {
		fmt.Fprintf(&b, " user=%q", e.Username)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " reason=%s", e.Reason)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " request_id=%s", e.RequestID)
	}
	b.WriteByte('\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = io.WriteString(a.writer, b.String())
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}

// classify maps a finished request to a security event, or "" when the
// request is not worth logging.
func (a *AccessLogger) classify(r *http.Request, status int, diag *auth.Diagnostic) string {
	path := r.URL.Path
	switch {
	case path == a.paths.LoginAPIPath && r.Method == http.MethodPost:
		switch status {
		case http.StatusOK:
			return EventLoginSuccess
		case http.StatusUnauthorized:
			return EventLoginFailed
		case http.StatusTooManyRequests:
			return EventLoginLocked
		default:
			return EventLoginError
		}
	case path == a.paths.LogoutPath:
		return EventLogout
	case status == http.StatusFound && diag.Reason != auth.ReasonNone:
		return EventGateRedirect
	case status == http.StatusTooManyRequests:
		return EventRateLimited
	}
	return ""
}

// Middleware logs the security events each request produces. It reads
// the request's auth.Diagnostic, attaching one if none is present.
func (a *AccessLogger) Middleware(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		diag := auth.DiagnosticFrom(r.Context())
		if diag == nil {
			var ctx context.Context
			ctx, diag = auth.WithDiagnostic(r.Context())
			r = r.WithContext(ctx)
		}
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		event := a.classify(r, rec.status(), diag)
		if event == "" {
			return
		}
		a.Write(AccessEntry{
			Time:      start,
			ClientIP:  a.clientIP(r),
			Method:    r.Method,
			Path:      r.URL.Path,
			Status:    rec.status(),
			Bytes:     rec.bytes,
			Duration:  time.Since(start),
			UserAgent: r.UserAgent(),
			Event:     event,
			Username:  diag.Username,
			Reason:    string(diag.Reason),
			RequestID: w.Header().Get(RequestIDHeader),
		})
	})
}

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	code        int
	bytes       int64
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *statusRecorder) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
