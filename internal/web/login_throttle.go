package web

import (
	"sync"
	"time"
)

// Login throttle defaults.
const (
	DefaultMaxLoginFailures = 5
	DefaultFailureWindow    = 5 * time.Minute
	DefaultLockout          = 15 * time.Minute

	throttleSweepInterval = time.Minute
)

// LoginThrottle locks out client IPs after repeated failed logins.
// Failures are counted over a sliding window; reaching the limit locks
// the IP for the lockout duration. A successful login clears the record.
type LoginThrottle struct {
	mu      sync.Mutex
	clients map[string]*loginRecord

	maxFailures int
	window      time.Duration
	lockout     time.Duration

	now       func() time.Time
	stop      chan struct{}
	closeOnce sync.Once
}

type loginRecord struct {
	failures    []time.Time
	lockedUntil time.Time
}

// NewLoginThrottle creates a throttle and starts its sweeper.
// Zero or negative arguments fall back to the defaults.
func NewLoginThrottle(maxFailures int, window, lockout time.Duration) *LoginThrottle {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxLoginFailures
	}
	if window <= 0 {
		window = DefaultFailureWindow
	}
	if lockout <= 0 {
		lockout = DefaultLockout
	}
	t := &LoginThrottle{
		clients:     make(map[string]*loginRecord),
		maxFailures: maxFailures,
		window:      window,
		lockout:     lockout,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Locked reports whether ip is locked out and for how much longer.
func (t *LoginThrottle) Locked(ip string) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.clients[ip]
	if !ok {
		return false, 0
	}
	if left := rec.lockedUntil.Sub(t.now()); left > 0 {
		return true, left
	}
	return false, 0
}

// Fail records a failed login from ip. It reports whether the failure
// triggered a lockout and its duration.
func (t *LoginThrottle) Fail(ip string) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, ok := t.clients[ip]
	if !ok {
		rec = &loginRecord{}
		t.clients[ip] = rec
	}
	if left := rec.lockedUntil.Sub(now); left > 0 {
		return true, left
	}

	rec.failures = append(recent(rec.failures, now.Add(-t.window)), now)
	if len(rec.failures) >= t.maxFailures {
		rec.lockedUntil = now.Add(t.lockout)
		rec.failures = nil
		return true, t.lockout
	}
	return false, 0
}

// Reset forgets every failure recorded for ip.
func (t *LoginThrottle) Reset(ip string) {
	t.mu.Lock()
	delete(t.clients, ip)
	t.mu.Unlock()
}

// Remaining returns how many more failures ip may make before lockout.
func (t *LoginThrottle) Remaining(ip string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.clients[ip]
	if !ok {
		return t.maxFailures
	}
	now := t.now()
	if rec.lockedUntil.After(now) {
		return 0
	}
	return t.maxFailures - len(recent(rec.failures, now.Add(-t.window)))
}

// Close stops the sweeper. It is safe to call more than once.
func (t *LoginThrottle) Close() {
	t.closeOnce.Do(func() { close(t.stop) })
}

func (t *LoginThrottle) sweepLoop() {
	ticker := time.NewTicker(throttleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-t.stop:
			return
		}
	}
}

// sweep drops records with no live lockout and no failures in the window.
func (t *LoginThrottle) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for ip, rec := range t.clients {
		rec.failures = recent(rec.failures, now.Add(-t.window))
		if len(rec.failures) == 0 && !rec.lockedUntil.After(now) {
			delete(t.clients, ip)
		}
	}
}

// recent returns the timestamps after cutoff, reusing the slice.
func recent(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, ts := range times {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
