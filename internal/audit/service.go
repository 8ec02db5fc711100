package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only: there is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records security events.
//
// Audit records are internal. Callers treat Append as best-effort and
// must not fail a user-facing request because of it.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if !e.Type.Valid() {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LoginFailed records a rejected sign-in. reason is a short machine label
// such as "bad_password" or "inactive".
func (s *Service) LoginFailed(ctx context.Context, email, userID, ip, reason string) error {
	return s.Append(ctx, Event{
		Type:          EventLoginFailed,
		SubjectUserID: userID,
		Email:         email,
		IPAddress:     ip,
		Message:       reason,
	})
}

func (s *Service) LoginSucceeded(ctx context.Context, email, userID, ip string) error {
	return s.Append(ctx, Event{
		Type:          EventLoginSucceeded,
		ActorUserID:   userID,
		SubjectUserID: userID,
		Email:         email,
		IPAddress:     ip,
	})
}

func (s *Service) UserRegistered(ctx context.Context, email, userID, ip, metadata string) error {
	return s.Append(ctx, Event{
		Type:          EventUserRegistered,
		SubjectUserID: userID,
		Email:         email,
		IPAddress:     ip,
		Message:       "user registered",
		Metadata:      metadata,
	})
}

func (s *Service) RoleChanged(ctx context.Context, actorUserID, subjectUserID, ip, metadata string) error {
	return s.Append(ctx, Event{
		Type:          EventRoleChanged,
		ActorUserID:   actorUserID,
		SubjectUserID: subjectUserID,
		IPAddress:     ip,
		Message:       "roles replaced",
		Metadata:      metadata,
	})
}

func (s *Service) UserRemoved(ctx context.Context, actorUserID, subjectUserID, email, ip string) error {
	return s.Append(ctx, Event{
		Type:          EventUserRemoved,
		ActorUserID:   actorUserID,
		SubjectUserID: subjectUserID,
		Email:         email,
		IPAddress:     ip,
		Message:       "user removed",
	})
}
