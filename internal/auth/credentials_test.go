package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestValidator_Validate(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		username string
		password string
		want     bool
	}{
		{"exact match", Config{Username: "admin", Password: "pw"}, "admin", "pw", true},
		{"wrong password", Config{Username: "admin", Password: "pw"}, "admin", "nope", false},
		{"wrong username", Config{Username: "admin", Password: "pw"}, "root", "pw", false},
		{"case sensitive", Config{Username: "admin", Password: "pw"}, "Admin", "pw", false},
		{"missing fields", Config{Username: "admin", Password: "pw"}, "", "", false},
		{"username unset", Config{Password: "pw"}, "", "pw", false},
		{"password unset", Config{Username: "admin"}, "admin", "", false},
		{"nothing configured", Config{}, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewValidator(tt.cfg).Validate(tt.username, tt.password); got != tt.want {
				t.Errorf("Validate(%q, %q) = %v, want %v", tt.username, tt.password, got, tt.want)
			}
		})
	}
}

func TestValidator_PasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	// The hash takes precedence over a plaintext password.
	v := NewValidator(Config{Username: "admin", Password: "ignored", PasswordHash: string(hash)})

	if !v.Validate("admin", "s3cret") {
		t.Error("hash should accept the matching password")
	}
	if v.Validate("admin", "ignored") {
		t.Error("plaintext password should not be used when a hash is set")
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("unexpected hash format: %s", hash)
	}
	if !NewValidator(Config{Username: "admin", PasswordHash: hash}).Validate("admin", "pw") {
		t.Error("hash produced by HashPassword should validate")
	}
}
