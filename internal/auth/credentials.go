package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHashCost is the bcrypt cost used by HashPassword.
const PasswordHashCost = 12

// Validator checks submitted credentials against the configured admin pair.
type Validator struct {
	username     string
	password     string
	passwordHash string
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg Config) *Validator {
	return &Validator{
		username:     cfg.Username,
		password:     cfg.Password,
		passwordHash: cfg.PasswordHash,
	}
}

// Validate returns true only when admin credentials are configured and both
// submitted values match. Absent form fields should be passed as "".
func (v *Validator) Validate(username, password string) bool {
	if v.username == "" || (v.password == "" && v.passwordHash == "") {
		return false
	}

	// Evaluate both sides so timing does not reveal which one failed.
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(v.username)) == 1

	var passwordMatch bool
	if v.passwordHash != "" {
		passwordMatch = bcrypt.CompareHashAndPassword([]byte(v.passwordHash), []byte(password)) == nil
	} else {
		passwordMatch = subtle.ConstantTimeCompare([]byte(password), []byte(v.password)) == 1
	}

	return usernameMatch && passwordMatch
}

// HashPassword returns a bcrypt hash suitable for Config.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
