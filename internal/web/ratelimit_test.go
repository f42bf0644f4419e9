package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 3}, nil)
	defer rl.Close()

	for i := 0; i < 3; i++ {
		if !rl.Allow("192.0.2.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("192.0.2.1") {
		t.Error("request over the burst should be denied")
	}
	if !rl.Allow("192.0.2.2") {
		t.Error("other IPs have their own bucket")
	}
	if rl.Len() != 2 {
		t.Errorf("Len = %d, want 2", rl.Len())
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1},
		func(r *http.Request) string { return r.Header.Get("X-Test-IP") })
	defer rl.Close()
	h := rl.Middleware(okHandler)

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Test-IP", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("a"); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec := do("a")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimitConfig(), nil)
	defer rl.Close()

	rl.Allow("192.0.2.1")
	rl.evictIdle(time.Now().Add(-time.Hour))
	if rl.Len() != 1 {
		t.Error("recent entry must survive")
	}
	rl.evictIdle(time.Now().Add(time.Second))
	if rl.Len() != 0 {
		t.Error("idle entry should be evicted")
	}
}
