package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrSigningSecretMissing is returned when a token is requested but no
// signing secret is configured.
var ErrSigningSecretMissing = errors.New("auth: signing secret is not configured")

// Claims is the session token payload.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Issued is a freshly signed session token and the cookie that carries it.
type Issued struct {
	Token     string
	ExpiresAt time.Time
	Cookie    *http.Cookie
}

// Issuer signs session tokens for authenticated admins.
type Issuer struct {
	secret     []byte
	expiration time.Duration
	secure     bool
	now        func() time.Time
}

// NewIssuer creates an issuer. The clock defaults to time.Now.
func NewIssuer(cfg Config) *Issuer {
	return &Issuer{
		secret:     []byte(cfg.Secret),
		expiration: cfg.expiration(),
		secure:     cfg.SecureCookie,
		now:        time.Now,
	}
}

// WithClock replaces the issuer's clock. Used by tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue signs a token for username that expires after the configured window.
func (i *Issuer) Issue(username string) (*Issued, error) {
	if len(i.secret) == 0 {
		return nil, ErrSigningSecretMissing
	}

	now := i.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiration)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &Issued{
		Token:     signed,
		ExpiresAt: claims.ExpiresAt.Time,
		Cookie:    SessionCookie(signed, MaxAgeSeconds(i.expiration), i.secure),
	}, nil
}

// Reason explains why a token was rejected.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonMissingToken     Reason = "missing_token"
	ReasonMissingSecret    Reason = "missing_secret"
	ReasonBadSignature     Reason = "bad_signature"
	ReasonExpired          Reason = "expired"
	ReasonUsernameMismatch Reason = "username_mismatch"
)

// Result is the outcome of verifying a token.
type Result struct {
	Valid    bool
	Username string
	Reason   Reason
}

// Verifier checks session tokens.
type Verifier struct {
	secret   []byte
	username string
	now      func() time.Time
	parser   *jwt.Parser
}

// NewVerifier creates a verifier. Tokens are accepted only for the
// configured admin username.
func NewVerifier(cfg Config) *Verifier {
	v := &Verifier{
		secret:   []byte(cfg.Secret),
		username: cfg.Username,
		now:      time.Now,
	}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	)
	return v
}

// WithClock replaces the verifier's clock. Used by tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify never returns an error; every failure becomes an invalid Result.
func (v *Verifier) Verify(token string) Result {
	if token == "" {
		return Result{Reason: ReasonMissingToken}
	}
	if len(v.secret) == 0 {
		return Result{Reason: ReasonMissingSecret}
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Result{Reason: ReasonExpired}
	default:
		return Result{Reason: ReasonBadSignature}
	}

	if v.username == "" || claims.Username != v.username {
		return Result{Reason: ReasonUsernameMismatch}
	}

	return Result{Valid: true, Username: claims.Username}
}
