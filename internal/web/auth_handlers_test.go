package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/M-Creative-ltd/TanteBeauty/internal/auth"
)

var testAuthConfig = auth.Config{
	Username:   "admin",
	Password:   "pw",
	Secret:     "k1",
	Expiration: 2 * time.Hour,
}

func newTestAuthHandlers(t *testing.T, cfg auth.Config, throttle *LoginThrottle) *http.ServeMux {
	t.Helper()
	h, err := NewAuthHandlers(cfg, auth.DefaultGateConfig(), throttle, nil)
	if err != nil {
		t.Fatalf("NewAuthHandlers: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func postLogin(t *testing.T, h http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, auth.DefaultLoginAPIPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%q)", err, rec.Body.String())
	}
	return body
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

func TestHandleLogin_Success(t *testing.T) {
	mux := newTestAuthHandlers(t, testAuthConfig, nil)
	rec := postLogin(t, mux, url.Values{"username": {"admin"}, "password": {"pw"}})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["redirect"] != auth.DefaultReturnPath {
		t.Errorf("redirect = %v, want %s", body["redirect"], auth.DefaultReturnPath)
	}

	c := sessionCookie(rec)
	if c == nil {
		t.Fatal("no session cookie set")
	}
	if !c.HttpOnly || c.Path != "/" || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie attributes = %+v", c)
	}
	if c.MaxAge != 7200 {
		t.Errorf("MaxAge = %d, want 7200", c.MaxAge)
	}

	res := auth.NewVerifier(testAuthConfig).Verify(c.Value)
	if !res.Valid || res.Username != "admin" {
		t.Errorf("issued token does not verify: %+v", res)
	}
}

func TestHandleLogin_Multipart(t *testing.T) {
	mux := newTestAuthHandlers(t, testAuthConfig, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("username", "admin")
	_ = mw.WriteField("password", "pw")
	_ = mw.WriteField("from", "/keystatic/collections/products")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, auth.DefaultLoginAPIPath, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["redirect"]; got != "/keystatic/collections/products" {
		t.Errorf("redirect = %v", got)
	}
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	mux := newTestAuthHandlers(t, testAuthConfig, nil)
	rec := postLogin(t, mux, url.Values{"username": {"admin"}, "password": {"nope"}})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Invalid username or password" {
		t.Errorf("error = %v", got)
	}
	if sessionCookie(rec) != nil {
		t.Error("failed login must not set a cookie")
	}
}

func TestHandleLogin_MissingFields(t *testing.T) {
	mux := newTestAuthHandlers(t, testAuthConfig, nil)

	req := httptest.NewRequest(http.MethodPost, auth.DefaultLoginAPIPath, strings.NewReader("%%%"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("malformed body status = %d, want 401", rec.Code)
	}
}

func TestHandleLogin_MissingSecret(t *testing.T) {
	cfg := testAuthConfig
	cfg.Secret = ""
	mux := newTestAuthHandlers(t, cfg, nil)

	for _, pw := range []string{"pw", "wrong"} {
		rec := postLogin(t, mux, url.Values{"username": {"admin"}, "password": {pw}})
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("password %q: status = %d, want 500", pw, rec.Code)
		}
		if got := decodeBody(t, rec)["error"]; got != "Internal server error. Please try again later." {
			t.Errorf("error = %v", got)
		}
		if sessionCookie(rec) != nil {
			t.Error("no cookie may be issued without a secret")
		}
	}
}

func TestHandleLogin_MissingCredentials(t *testing.T) {
	cfg := testAuthConfig
	cfg.Username, cfg.Password = "", ""
	mux := newTestAuthHandlers(t, cfg, nil)

	rec := postLogin(t, mux, url.Values{"username": {""}, "password": {""}})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleLogin_MethodNotAllowed(t *testing.T) {
	mux := newTestAuthHandlers(t, testAuthConfig, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, auth.DefaultLoginAPIPath, nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("Allow = %q", rec.Header().Get("Allow"))
	}
}

func TestHandleLogin_Lockout(t *testing.T) {
	throttle := NewLoginThrottle(3, time.Minute, 10*time.Minute)
	defer throttle.Close()
	mux := newTestAuthHandlers(t, testAuthConfig, throttle)

	bad := url.Values{"username": {"admin"}, "password": {"nope"}}
	for i := 0; i < 3; i++ {
		if rec := postLogin(t, mux, bad); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, rec.Code)
		}
	}

	// Even the right password is refused while locked out.
	rec := postLogin(t, mux, url.Values{"username": {"admin"}, "password": {"pw"}})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if ra := rec.Header().Get("Retry-After"); ra != "600" {
		t.Errorf("Retry-After = %q, want 600", ra)
	}
}

func TestHandleLogin_SuccessResetsFailures(t *testing.T) {
	throttle := NewLoginThrottle(3, time.Minute, 10*time.Minute)
	defer throttle.Close()
	mux := newTestAuthHandlers(t, testAuthConfig, throttle)

	bad := url.Values{"username": {"admin"}, "password": {"nope"}}
	postLogin(t, mux, bad)
	postLogin(t, mux, bad)
	if rec := postLogin(t, mux, url.Values{"username": {"admin"}, "password": {"pw"}}); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := throttle.Remaining("203.0.113.7"); got != 3 {
		t.Errorf("Remaining = %d, want 3 after a successful login", got)
	}
}

func TestHandleLogout(t *testing.T) {
	mux := newTestAuthHandlers(t, testAuthConfig, nil)

	tests := []struct {
		name   string
		method string
		cookie bool
	}{
		{"get with session", http.MethodGet, true},
		{"get without session", http.MethodGet, false},
		{"post with session", http.MethodPost, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, auth.DefaultLogoutPath, nil)
			if tt.cookie {
				req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "whatever"})
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != "/" {
				t.Errorf("Location = %q, want /", loc)
			}
			c := sessionCookie(rec)
			if c == nil || c.Value != "" || c.MaxAge >= 0 {
				t.Errorf("cookie not cleared: %+v", c)
			}
			if !strings.Contains(rec.Header().Get("Set-Cookie"), "Max-Age=0") {
				t.Errorf("Set-Cookie = %q", rec.Header().Get("Set-Cookie"))
			}
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, auth.DefaultLogoutPath, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d, want 405", rec.Code)
	}
}

func TestHandleLoginPage(t *testing.T) {
	mux := newTestAuthHandlers(t, testAuthConfig, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, auth.DefaultLoginPath+"?from=/keystatic/branch", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`action="/api/keystatic-login"`,
		`name="from" value="/keystatic/branch"`,
		`src="/keystatic-login/login.js"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("login page missing %q", want)
		}
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/keystatic-login/login.js", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "FormData") {
		t.Errorf("login script status = %d", rec.Code)
	}
}

func TestSanitizeReturnPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/keystatic"},
		{"  ", "/keystatic"},
		{"/keystatic/x?y=1", "/keystatic/x?y=1"},
		{" /keystatic ", "/keystatic"},
		{"https://evil.example", "/keystatic"},
		{"//evil.example/x", "/keystatic"},
		{`/\evil.example`, "/keystatic"},
		{"keystatic", "/keystatic"},
		{"/a\r\nSet-Cookie: x", "/keystatic"},
	}
	for _, tt := range tests {
		if got := sanitizeReturnPath(tt.in); got != tt.want {
			t.Errorf("sanitizeReturnPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "1"},
		{300 * time.Millisecond, "1"},
		{time.Second, "1"},
		{1500 * time.Millisecond, "2"},
		{15 * time.Minute, "900"},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.in); got != tt.want {
			t.Errorf("retryAfterSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
