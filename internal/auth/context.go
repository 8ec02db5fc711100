package auth

import (
	"context"
	"errors"
)

type ctxKey int

const ctxIdentity ctxKey = iota

// Identity is the authenticated caller as seen by handlers.
type Identity struct {
	UserID  string
	Email   string
	Roles   []string
	TokenID string
}

var ErrNoIdentity = errors.New("auth: identity not in context")

func IdentityFromClaims(c Claims) Identity {
	return Identity{
		UserID:  c.Subject,
		Email:   c.Email,
		Roles:   append([]string(nil), c.Roles...),
		TokenID: c.ID,
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

func IdentityFrom(ctx context.Context) (Identity, error) {
	if id, ok := ctx.Value(ctxIdentity).(Identity); ok && id.UserID != "" {
		return id, nil
	}
	return Identity{}, ErrNoIdentity
}

func UserID(ctx context.Context) (string, error) {
	id, err := IdentityFrom(ctx)
	if err != nil {
		return "", err
	}
	return id.UserID, nil
}

func Roles(ctx context.Context) ([]string, error) {
	id, err := IdentityFrom(ctx)
	if err != nil {
		return nil, err
	}
	return id.Roles, nil
}
