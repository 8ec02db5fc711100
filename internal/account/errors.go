package account

import "errors"

var (
	ErrConflict       = errors.New("account: email already registered")
	ErrValidation     = errors.New("account: validation failed")
	ErrUnauthorized   = errors.New("account: invalid credentials")
	ErrInactive       = errors.New("account: user is inactive")
	ErrNotFound       = errors.New("account: user not found")
	ErrInvalidRole    = errors.New("account: unknown role")
	ErrForbidden      = errors.New("account: not allowed")
	ErrLastAdmin      = errors.New("account: cannot remove the last Admin")
	ErrRoleAssignment = errors.New("account: user created but assigning roles failed")
	ErrRateLimited    = errors.New("account: too many login attempts")
)

// RateLimitError carries how long the caller should wait.
// errors.Is(err, ErrRateLimited) holds for it.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string { return ErrRateLimited.Error() }

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
