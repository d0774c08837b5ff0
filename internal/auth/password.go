package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores bytes past 72
	maxUsernameLength = 32
	maxEmailLength    = 254
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9._-]*[a-z0-9])?$`)

// NormalizeUsername returns canonical lowercase username and validates allowed characters.
func NormalizeUsername(raw string) (string, error) {
	username := strings.TrimSpace(strings.ToLower(raw))
	if username == "" {
		return "", fmt.Errorf("username is required")
	}
	if len(username) > maxUsernameLength {
		return "", fmt.Errorf("username too long")
	}
	if !usernamePattern.MatchString(username) {
		return "", fmt.Errorf("invalid username")
	}
	return username, nil
}

// NormalizeEmail returns the lowercase bare address. Empty input is allowed
// and returns an empty string.
func NormalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if len(raw) > maxEmailLength {
		return "", fmt.Errorf("email too long")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", fmt.Errorf("invalid email")
	}
	return strings.ToLower(addr.Address), nil
}

// LooksLikeEmail reports whether a login identifier should be matched against emails.
func LooksLikeEmail(identifier string) bool {
	return strings.Contains(identifier, "@")
}

// ValidatePassword checks minimal password requirements.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("password must be at most %d bytes", maxPasswordLength)
	}
	return nil
}

// HashPassword hashes one plaintext password for persistent storage.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// NeedsRehash reports whether a stored hash was made with a different cost than
// HashPassword uses today.
func NeedsRehash(passwordHash string) bool {
	cost, err := bcrypt.Cost([]byte(passwordHash))
	return err != nil || cost != bcrypt.DefaultCost
}

// VerifyPassword verifies plaintext password against a bcrypt hash.
func VerifyPassword(passwordHash, candidate string) bool {
	if strings.TrimSpace(passwordHash) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(candidate)) == nil
}
