// Package config handles configuration loading for the site server.
//
// Configuration comes from an optional YAML file, then environment
// variables override individual fields. The resulting Config is built
// once at startup and treated as read-only afterwards.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/M-Creative-ltd/TanteBeauty/internal/auth"
)

// ConfigPathEnv names the environment variable holding the config file path.
const ConfigPathEnv = "TANTE_CONFIG"

// Environment variables read by ApplyEnv.
const (
	EnvAdminUsername     = "KEYSTATIC_ADMIN_USERNAME"
	EnvAdminPassword     = "KEYSTATIC_ADMIN_PASSWORD"
	EnvAdminPasswordHash = "KEYSTATIC_ADMIN_PASSWORD_HASH"
	EnvJWTSecret         = "JWT_SECRET"
	EnvJWTExpiration     = "JWT_EXPIRATION"
	EnvAppEnv            = "APP_ENV"
	EnvNodeEnv           = "NODE_ENV"
	EnvGitHubClientID    = "KEYSTATIC_GITHUB_CLIENT_ID"
	EnvGitHubSecret      = "KEYSTATIC_GITHUB_CLIENT_SECRET"
	EnvAllowedOrigin     = "ALLOWED_ORIGIN"
)

const redacted = "[redacted]"

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RequestTimeout bounds handler execution (default: 30s).
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxBodyBytes caps request bodies (default: 1 MiB).
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// TrustedProxies lists IPs or CIDRs whose X-Forwarded-For is honoured.
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig configures the admin gate.
type AuthConfig struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty"`
	Secret       string `yaml:"jwt_secret,omitempty"`
	// Expiration is the raw token lifetime ("7200", "2h", "1d").
	Expiration string `yaml:"jwt_expiration"`

	LoginPath         string   `yaml:"login_path"`
	ProtectedPrefixes []string `yaml:"protected_prefixes"`

	// MaxLoginFailures within FailureWindow lock a client IP for Lockout.
	MaxLoginFailures int           `yaml:"max_login_failures"`
	FailureWindow    time.Duration `yaml:"failure_window"`
	Lockout          time.Duration `yaml:"lockout"`

	window time.Duration
}

// Window returns the parsed token lifetime.
func (a AuthConfig) Window() time.Duration {
	if a.window <= 0 {
		return auth.DefaultExpiration
	}
	return a.window
}

// ContentConfig locates the CMS content tree.
type ContentConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// LoggingConfig configures the application log.
type LoggingConfig struct {
	Level      string   `yaml:"level"`
	File       string   `yaml:"file,omitempty"`
	JSON       bool     `yaml:"json"`
	Components []string `yaml:"components,omitempty"`
}

// AccessLogConfig configures the security access log.
type AccessLogConfig struct {
	Path       string `yaml:"path,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// CORSConfig configures CORS for /api routes in production.
type CORSConfig struct {
	AllowedOrigin string `yaml:"allowed_origin"`
}

// RateLimitConfig configures the general per-IP request limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// GitHubConfig holds the OAuth app used by the debug exchange.
type GitHubConfig struct {
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`
}

// SiteConfig holds public site defaults.
type SiteConfig struct {
	// BaseURL is used when the seo singleton has no siteUrl.
	BaseURL string `yaml:"base_url"`
}

// Config is the complete server configuration.
type Config struct {
	// Environment is "production" or "development".
	Environment string `yaml:"environment"`

	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Content   ContentConfig   `yaml:"content"`
	Logging   LoggingConfig   `yaml:"logging"`
	AccessLog AccessLogConfig `yaml:"access_log"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	GitHub    GitHubConfig    `yaml:"github"`
	Site      SiteConfig      `yaml:"site"`

	// Warnings collects non-fatal problems found while loading.
	Warnings []string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           3000,
			RequestTimeout: 30 * time.Second,
			MaxBodyBytes:   1 << 20,
		},
		Auth: AuthConfig{
			Expiration:        "2h",
			LoginPath:         auth.DefaultLoginPath,
			ProtectedPrefixes: append([]string(nil), auth.DefaultProtectedPrefixes...),
			MaxLoginFailures:  5,
			FailureWindow:     5 * time.Minute,
			Lockout:           15 * time.Minute,
		},
		Content: ContentConfig{
			Dir:   "./content",
			Watch: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		AccessLog: AccessLogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		CORS: CORSConfig{
			AllowedOrigin: "https://tantebeauty.com",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Site: SiteConfig{
			BaseURL: "https://tantebeauty.com",
		},
	}
}

// DefaultConfigPath returns the config file path from TANTE_CONFIG, or
// "tantebeauty.yaml" in the working directory.
func DefaultConfigPath() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p
	}
	return "tantebeauty.yaml"
}

// Load reads the YAML file at path (a missing file is not an error when
// optional is true), applies environment overrides and validates.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case optional && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	ApplyEnv(cfg, os.LookupEnv)

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses YAML configuration data on top of the defaults.
// Environment variables are not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set(EnvAdminUsername, &cfg.Auth.Username)
	set(EnvAdminPassword, &cfg.Auth.Password)
	set(EnvAdminPasswordHash, &cfg.Auth.PasswordHash)
	set(EnvJWTSecret, &cfg.Auth.Secret)
	set(EnvJWTExpiration, &cfg.Auth.Expiration)
	set(EnvGitHubClientID, &cfg.GitHub.ClientID)
	set(EnvGitHubSecret, &cfg.GitHub.ClientSecret)
	set(EnvAllowedOrigin, &cfg.CORS.AllowedOrigin)

	if v, ok := lookup(EnvAppEnv); ok && v != "" {
		cfg.Environment = v
	} else if v, ok := lookup(EnvNodeEnv); ok && v != "" {
		cfg.Environment = v
	}
}

// finalize validates the configuration and derives parsed values.
// Missing credentials or secret are not errors: the gate fails closed.
func (c *Config) finalize() error {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Content.Dir == "" {
		return errors.New("content dir must not be empty")
	}
	if c.Auth.LoginPath == "" || !strings.HasPrefix(c.Auth.LoginPath, "/") {
		return fmt.Errorf("login path must be absolute: %q", c.Auth.LoginPath)
	}
	for _, p := range c.Auth.ProtectedPrefixes {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("protected prefix must be absolute: %q", p)
		}
	}

	window, err := auth.ParseExpiration(c.Auth.Expiration)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%v; using %s", err, auth.DefaultExpiration))
		window = auth.DefaultExpiration
	}
	c.Auth.window = window

	if !c.Auth.hasUsername() || !c.Auth.hasPassword() {
		c.Warnings = append(c.Warnings, "admin credentials are not configured; all logins will be rejected")
	}
	if c.Auth.Secret == "" {
		c.Warnings = append(c.Warnings, "JWT secret is not configured; the admin surface is locked")
	}
	return nil
}

func (a AuthConfig) hasUsername() bool { return a.Username != "" }
func (a AuthConfig) hasPassword() bool { return a.Password != "" || a.PasswordHash != "" }

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AuthSettings returns the auth package configuration.
func (c *Config) AuthSettings() auth.Config {
	return auth.Config{
		Username:     c.Auth.Username,
		Password:     c.Auth.Password,
		PasswordHash: c.Auth.PasswordHash,
		Secret:       c.Auth.Secret,
		Expiration:   c.Auth.Window(),
		SecureCookie: c.IsProduction(),
	}
}

// GateSettings returns the request gate configuration.
func (c *Config) GateSettings() auth.GateConfig {
	g := auth.DefaultGateConfig()
	g.LoginPath = c.Auth.LoginPath
	if len(c.Auth.ProtectedPrefixes) > 0 {
		g.ProtectedPrefixes = append([]string(nil), c.Auth.ProtectedPrefixes...)
	}
	return g
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	out.Auth.Password = mask(c.Auth.Password)
	out.Auth.PasswordHash = mask(c.Auth.PasswordHash)
	out.Auth.Secret = mask(c.Auth.Secret)
	out.GitHub.ClientSecret = mask(c.GitHub.ClientSecret)
	out.Auth.ProtectedPrefixes = append([]string(nil), c.Auth.ProtectedPrefixes...)
	out.Warnings = append([]string(nil), c.Warnings...)
	return &out
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ExpirationSeconds returns the token lifetime in seconds as a string,
// for display.
func (c *Config) ExpirationSeconds() string {
	return strconv.Itoa(auth.MaxAgeSeconds(c.Auth.Window()))
}
