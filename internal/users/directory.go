package users

import (
	"context"
	"time"
)

// Directory is the user store the account service orchestrates.
// Implementations serialise their own writes; callers hold no locks.
type Directory interface {
	// FindByEmail matches case-insensitively. ok is false when absent.
	FindByEmail(ctx context.Context, email string) (p Principal, ok bool, err error)
	FindByID(ctx context.Context, id string) (p Principal, ok bool, err error)

	// Create validates, hashes the password and stores a new active user.
	// It returns ErrDuplicateEmail or a *ValidationError.
	Create(ctx context.Context, u NewUser, password string) (Principal, error)
	VerifyPassword(ctx context.Context, p Principal, password string) (bool, error)

	// RolesOf returns the roles sorted by name, an empty non-nil slice for a
	// user without roles, and ErrNotFound for an unknown user.
	RolesOf(ctx context.Context, p Principal) ([]string, error)
	// SetRoles replaces the whole role set. Unknown roles fail with ErrUnknownRole
	// and leave the previous set in place.
	SetRoles(ctx context.Context, p Principal, roles []string) error

	// SetActive, RecordLogin and Delete return ErrNotFound for an unknown user.
	SetActive(ctx context.Context, p Principal, active bool) error
	RecordLogin(ctx context.Context, p Principal, at time.Time) error
	Delete(ctx context.Context, p Principal) error
	ListAll(ctx context.Context) ([]Principal, error)
}
