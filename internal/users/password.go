package users

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength counts characters (runes), not bytes. It is the only
// password rule enforced; no character classes.
const MinPasswordLength = 6

// Hasher wraps bcrypt with a configurable cost.
type Hasher struct {
	cost int
}

func NewHasher(cost int) Hasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

func (h Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether password matches hash. A mismatch is not an error.
func (h Hasher) Verify(hash, password string) (bool, error) {
	if hash == "" || password == "" {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("failed to compare passwords: %w", err)
	}
	return true, nil
}

var validate = validator.New()

// ValidateRegistration returns a *ValidationError or nil.
func ValidateRegistration(u NewUser, password string) error {
	var problems []string
	if err := validate.Var(NormalizeEmail(u.Email), "required,email,max=256"); err != nil {
		problems = append(problems, "email must be a valid address")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	// bcrypt ignores everything past 72 bytes; refuse rather than truncate silently.
	if len(password) > 72 {
		problems = append(problems, "password must be at most 72 bytes")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
