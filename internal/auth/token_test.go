package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testEpoch = time.Unix(1_700_000_000, 0)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testConfig() Config {
	return Config{
		Username:   "admin",
		Password:   "pw",
		Secret:     "k1",
		Expiration: 2 * time.Hour,
	}
}

func TestIssueAndVerify_RoundTrip(t *testing.T) {
	cfg := testConfig()
	issued, err := NewIssuer(cfg).WithClock(fixedClock(testEpoch)).Issue("admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if got := strings.Count(issued.Token, "."); got != 2 {
		t.Fatalf("token should have 3 segments, got %d dots", got)
	}
	if want := testEpoch.Add(2 * time.Hour); !issued.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", issued.ExpiresAt, want)
	}

	res := NewVerifier(cfg).WithClock(fixedClock(testEpoch.Add(time.Minute))).Verify(issued.Token)
	if !res.Valid {
		t.Fatalf("Verify rejected fresh token: %s", res.Reason)
	}
	if res.Username != "admin" {
		t.Errorf("Username = %q, want admin", res.Username)
	}
}

func TestIssue_Cookie(t *testing.T) {
	cfg := testConfig()
	cfg.SecureCookie = true
	issued, err := NewIssuer(cfg).Issue("admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	c := issued.Cookie
	if c.Name != CookieName || c.Value != issued.Token {
		t.Errorf("cookie = %s=%s, want %s=<token>", c.Name, c.Value, CookieName)
	}
	if c.MaxAge != 7200 {
		t.Errorf("MaxAge = %d, want 7200", c.MaxAge)
	}
	if !c.HttpOnly || !c.Secure || c.Path != "/" {
		t.Errorf("unexpected cookie flags: %+v", c)
	}
}

func TestIssue_MissingSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Secret = ""
	_, err := NewIssuer(cfg).Issue("admin")
	if !errors.Is(err, ErrSigningSecretMissing) {
		t.Fatalf("Issue error = %v, want ErrSigningSecretMissing", err)
	}
}

func TestVerify_Reasons(t *testing.T) {
	cfg := testConfig()
	token, err := NewIssuer(cfg).WithClock(fixedClock(testEpoch)).Issue("admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	strangerToken, err := NewIssuer(cfg).WithClock(fixedClock(testEpoch)).Issue("someone-else")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	noSecret := cfg
	noSecret.Secret = ""
	otherSecret := cfg
	otherSecret.Secret = "k2"

	tests := []struct {
		name  string
		cfg   Config
		token string
		want  Reason
	}{
		{"empty token", cfg, "", ReasonMissingToken},
		{"no secret configured", noSecret, token.Token, ReasonMissingSecret},
		{"wrong secret", otherSecret, token.Token, ReasonBadSignature},
		{"garbage", cfg, "not-a-token", ReasonBadSignature},
		{"username mismatch", cfg, strangerToken.Token, ReasonUsernameMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewVerifier(tt.cfg).WithClock(fixedClock(testEpoch)).Verify(tt.token)
			if res.Valid {
				t.Fatal("expected invalid result")
			}
			if res.Reason != tt.want {
				t.Errorf("Reason = %q, want %q", res.Reason, tt.want)
			}
		})
	}
}

func TestVerify_Expiry(t *testing.T) {
	cfg := testConfig()
	cfg.Expiration = time.Second
	issued, err := NewIssuer(cfg).WithClock(fixedClock(testEpoch)).Issue("admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	before := NewVerifier(cfg).WithClock(fixedClock(testEpoch.Add(500 * time.Millisecond))).Verify(issued.Token)
	if !before.Valid {
		t.Errorf("token should be valid before expiry, got %s", before.Reason)
	}

	after := NewVerifier(cfg).WithClock(fixedClock(testEpoch.Add(2 * time.Second))).Verify(issued.Token)
	if after.Valid || after.Reason != ReasonExpired {
		t.Errorf("after expiry: Valid=%v Reason=%q, want expired", after.Valid, after.Reason)
	}
}

func TestVerify_TamperEveryCharacter(t *testing.T) {
	cfg := testConfig()
	issued, err := NewIssuer(cfg).WithClock(fixedClock(testEpoch)).Issue("admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	v := NewVerifier(cfg).WithClock(fixedClock(testEpoch))

	tok := []byte(issued.Token)
	for i := range tok {
		tampered := append([]byte(nil), tok...)
		if tampered[i] == 'A' {
			tampered[i] = 'B'
		} else {
			tampered[i] = 'A'
		}

		res := v.Verify(string(tampered))
		if res.Valid {
			t.Fatalf("tampered token accepted (index %d)", i)
		}
		if res.Reason != ReasonBadSignature {
			t.Errorf("index %d: Reason = %q, want %q", i, res.Reason, ReasonBadSignature)
		}
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	// Header {"alg":"none","typ":"JWT"} with an admin payload and no signature.
	const unsigned = "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJ1c2VybmFtZSI6ImFkbWluIiwiZXhwIjo0MTAyNDQ0ODAwfQ."
	res := NewVerifier(testConfig()).Verify(unsigned)
	if res.Valid || res.Reason != ReasonBadSignature {
		t.Errorf("alg none: Valid=%v Reason=%q", res.Valid, res.Reason)
	}
}
