package users

import (
	"errors"
	"strings"
	"time"
)

// Principal is a directory user as the rest of the service sees it.
// PasswordHash never leaves this package's implementations in JSON.
type Principal struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	Active      bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	PasswordHash string `json:"-"`
}

// NewUser is the profile supplied at registration.
type NewUser struct {
	Email     string
	FirstName string
	LastName  string
}

var (
	ErrNotFound       = errors.New("users: not found")
	ErrDuplicateEmail = errors.New("users: email already registered")
	ErrUnknownRole    = errors.New("users: unknown role")
	ErrValidation     = errors.New("users: validation failed")
)

// ValidationError lists every problem found with a registration.
// errors.Is(err, ErrValidation) holds for it.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "users: validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NormalizeEmail is the lookup key for emails: trimmed and lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
