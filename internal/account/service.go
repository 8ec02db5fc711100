package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"identity-api/internal/audit"
	"identity-api/internal/auth"
	"identity-api/internal/metrics"
	"identity-api/internal/rbac"
	"identity-api/internal/users"
	"identity-api/pkg/logger"
	"identity-api/pkg/utils"
)

// Limiter throttles login attempts. *utils.LoginLimiter implements it.
type Limiter interface {
	Allow(ctx context.Context, key string) (utils.LimitDecision, error)
	Reset(ctx context.Context, key string) error
}

// Deps are the collaborators of Service. Directory and Tokens are required;
// the rest may be nil.
type Deps struct {
	Directory users.Directory
	Tokens    *auth.TokenRepository
	Limiter   Limiter
	Audit     *audit.Service
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Service orchestrates registration, sign-in and user administration.
// All state lives in the directory; Service itself is stateless.
type Service struct {
	dir     users.Directory
	tokens  *auth.TokenRepository
	limiter Limiter
	audit   *audit.Service
	metrics *metrics.Metrics
	log     *slog.Logger
	clock   func() time.Time
}

func NewService(d Deps) (*Service, error) {
	if d.Directory == nil || d.Tokens == nil {
		return nil, errors.New("account: directory and token repository are required")
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		dir:     d.Directory,
		tokens:  d.Tokens,
		limiter: d.Limiter,
		audit:   d.Audit,
		metrics: d.Metrics,
		log:     log,
		clock:   time.Now,
	}, nil
}

type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Roles     []string
}

// Profile is the public view of a user returned by login and listings.
type Profile struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Active      bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func profileOf(p users.Principal) Profile {
	return Profile{
		ID:          p.ID,
		Email:       p.Email,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Active:      p.Active,
		LastLoginAt: p.LastLoginAt,
		CreatedAt:   p.CreatedAt,
	}
}

type UserWithRoles struct {
	Profile
	Roles []string `json:"roles"`
}

type LoginResult struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
	Roles     []string
	Profile   Profile
}

/* ===================== REGISTER ===================== */

// Register is the public, unauthenticated sign-up. The new user always gets
// the User role; asking for anything else is ErrForbidden. Elevated roles
// are granted afterwards through ChangeRole.
//
// When role assignment fails the user stays created and the returned error
// wraps ErrRoleAssignment together with the created profile.
func (s *Service) Register(ctx context.Context, req RegisterRequest, clientIP string) (Profile, error) {
	for _, r := range req.Roles {
		if !rbac.IsKnownRole(r) {
			return Profile{}, fmt.Errorf("%w: %q", ErrInvalidRole, r)
		}
		if r != rbac.RoleUser {
			return Profile{}, fmt.Errorf("%w: self-registration cannot request %s", ErrForbidden, r)
		}
	}
	return s.createWithRoles(ctx, req, []string{rbac.RoleUser}, clientIP)
}

func (s *Service) createWithRoles(ctx context.Context, req RegisterRequest, roles []string, clientIP string) (Profile, error) {
	if _, exists, err := s.dir.FindByEmail(ctx, req.Email); err != nil {
		return Profile{}, err
	} else if exists {
		return Profile{}, ErrConflict
	}

	p, err := s.dir.Create(ctx, users.NewUser{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, req.Password)
	switch {
	case errors.Is(err, users.ErrValidation):
		return Profile{}, fmt.Errorf("%w: %w", ErrValidation, err)
	case errors.Is(err, users.ErrDuplicateEmail):
		// Lost a race with a concurrent registration.
		return Profile{}, ErrConflict
	case err != nil:
		return Profile{}, err
	}

	log := s.logFor(ctx).With("user_id", p.ID)
	assigned := []string{}
	var assignErr error
	if err := s.dir.SetRoles(ctx, p, roles); err != nil {
		log.Warn("role assignment after registration failed", "err", err)
		assignErr = fmt.Errorf("%w: %v", ErrRoleAssignment, err)
	} else {
		assigned = append(assigned, roles...)
	}

	s.appendAudit(ctx, func() error {
		return s.audit.UserRegistered(ctx, p.Email, p.ID, clientIP, metadataJSON(map[string]any{"roles": assigned}))
	})
	if assignErr != nil {
		return profileOf(p), assignErr
	}
	log.Info("user registered", "roles", assigned)
	return profileOf(p), nil
}

/* ===================== LOGIN ===================== */

// Login verifies credentials and mints an access token.
//
// Unknown email and wrong password are indistinguishable (ErrUnauthorized).
// The inactive check runs only after the password matched, so account
// state is never disclosed to someone without the password.
func (s *Service) Login(ctx context.Context, email, password, clientIP string) (LoginResult, error) {
	email = users.NormalizeEmail(email)
	limitKey := email + "|" + clientIP

	if s.limiter != nil {
		d, err := s.limiter.Allow(ctx, limitKey)
		if err != nil {
			// Redis being down must not lock everyone out.
			s.logFor(ctx).Warn("login limiter unavailable", "err", err)
		} else if !d.Allowed {
			s.metrics.RecordLogin(metrics.LoginRateLimited)
			s.loginFailed(ctx, email, "", clientIP, "rate_limited")
			return LoginResult{}, &RateLimitError{RetryAfterSeconds: int(math.Ceil(d.RetryAfter.Seconds()))}
		}
	}

	p, ok, err := s.dir.FindByEmail(ctx, email)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginError)
		return LoginResult{}, err
	}
	if !ok {
		s.metrics.RecordLogin(metrics.LoginUnauthorized)
		s.loginFailed(ctx, email, "", clientIP, "unknown_user")
		return LoginResult{}, ErrUnauthorized
	}

	match, err := s.dir.VerifyPassword(ctx, p, password)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginError)
		return LoginResult{}, err
	}
	if !match {
		s.metrics.RecordLogin(metrics.LoginUnauthorized)
		s.loginFailed(ctx, email, p.ID, clientIP, "bad_password")
		return LoginResult{}, ErrUnauthorized
	}
	if !p.Active {
		s.metrics.RecordLogin(metrics.LoginInactive)
		s.loginFailed(ctx, email, p.ID, clientIP, "inactive")
		return LoginResult{}, ErrInactive
	}

	roles, err := s.dir.RolesOf(ctx, p)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginError)
		return LoginResult{}, err
	}

	tok, err := s.tokens.IssueAccessToken(auth.Subject{ID: p.ID, Email: p.Email}, roles)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginError)
		return LoginResult{}, err
	}
	s.metrics.RecordTokenIssued()

	now := s.clock().UTC()
	if err := s.dir.RecordLogin(ctx, p, now); err != nil {
		s.logFor(ctx).Warn("record last login failed", "user_id", p.ID, "err", err)
	} else {
		p.LastLoginAt = &now
	}
	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, limitKey); err != nil {
			s.logFor(ctx).Warn("login limiter reset failed", "err", err)
		}
	}

	s.metrics.RecordLogin(metrics.LoginSuccess)
	s.appendAudit(ctx, func() error { return s.audit.LoginSucceeded(ctx, email, p.ID, clientIP) })
	s.logFor(ctx).Info("login succeeded", "user_id", p.ID)

	return LoginResult{
		Token:     tok.Token,
		TokenID:   tok.ID,
		ExpiresAt: tok.ExpiresAt,
		Roles:     roles,
		Profile:   profileOf(p),
	}, nil
}

func (s *Service) loginFailed(ctx context.Context, email, userID, ip, reason string) {
	s.logFor(ctx).Info("login failed", "email", email, "user_id", userID, "reason", reason)
	s.appendAudit(ctx, func() error { return s.audit.LoginFailed(ctx, email, userID, ip, reason) })
}

/* ===================== ADMINISTRATION ===================== */

// ChangeRole replaces every role of userID with newRole.
//
// Only an Admin may grant Admin or touch a user who holds Admin, and the
// last remaining Admin cannot be demoted, not even by themselves.
func (s *Service) ChangeRole(ctx context.Context, actor auth.Identity, userID, newRole, clientIP string) error {
	if !rbac.IsKnownRole(newRole) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, newRole)
	}
	actorIsAdmin := rbac.HasRole(actor.Roles, rbac.RoleAdmin)
	if newRole == rbac.RoleAdmin && !actorIsAdmin {
		return fmt.Errorf("%w: only an Admin can grant %s", ErrForbidden, rbac.RoleAdmin)
	}

	p, ok, err := s.dir.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	current, err := s.dir.RolesOf(ctx, p)
	if errors.Is(err, users.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("account: change role: %w", err)
	}

	if rbac.HasRole(current, rbac.RoleAdmin) {
		if !actorIsAdmin {
			return fmt.Errorf("%w: only an Admin can change the role of an %s", ErrForbidden, rbac.RoleAdmin)
		}
		if newRole != rbac.RoleAdmin {
			admins, err := s.countAdmins(ctx)
			if err != nil {
				return fmt.Errorf("account: change role: %w", err)
			}
			if admins <= 1 {
				return ErrLastAdmin
			}
		}
	}

	if err := s.dir.SetRoles(ctx, p, []string{newRole}); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("account: change role: %w", err)
	}

	s.logFor(ctx).Info("role changed", "user_id", p.ID, "actor_user_id", actor.UserID, "role", newRole, "previous_roles", current)
	s.appendAudit(ctx, func() error {
		return s.audit.RoleChanged(ctx, actor.UserID, p.ID, clientIP, metadataJSON(map[string]any{"role": newRole, "previous_roles": current}))
	})
	return nil
}

func (s *Service) countAdmins(ctx context.Context) (int, error) {
	all, err := s.dir.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range all {
		roles, err := s.dir.RolesOf(ctx, p)
		if errors.Is(err, users.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if rbac.HasRole(roles, rbac.RoleAdmin) {
			n++
		}
	}
	return n, nil
}

// SetActive enables or disables sign-in for userID.
func (s *Service) SetActive(ctx context.Context, userID string, active bool) error {
	p, ok, err := s.dir.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if err := s.dir.SetActive(ctx, p, active); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("account: set active: %w", err)
	}
	s.logFor(ctx).Info("user active flag changed", "user_id", p.ID, "active", active)
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]Profile, error) {
	all, err := s.dir.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(all))
	for _, p := range all {
		out = append(out, profileOf(p))
	}
	return out, nil
}

func (s *Service) ListUsersWithRoles(ctx context.Context) ([]UserWithRoles, error) {
	all, err := s.dir.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserWithRoles, 0, len(all))
	for _, p := range all {
		roles, err := s.dir.RolesOf(ctx, p)
		if errors.Is(err, users.ErrNotFound) {
			// Deleted between ListAll and RolesOf.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, UserWithRoles{Profile: profileOf(p), Roles: roles})
	}
	return out, nil
}

// RemoveAllUsers deletes every user except the caller and returns how many
// were removed. A caller without Admin leaves Admin holders in place.
// It stops at the first failure.
func (s *Service) RemoveAllUsers(ctx context.Context, actor auth.Identity, clientIP string) (int, error) {
	all, err := s.dir.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	actorIsAdmin := rbac.HasRole(actor.Roles, rbac.RoleAdmin)
	removed := 0
	for _, p := range all {
		if p.ID == actor.UserID {
			continue
		}
		if !actorIsAdmin {
			roles, err := s.dir.RolesOf(ctx, p)
			if errors.Is(err, users.ErrNotFound) {
				continue
			}
			if err != nil {
				return removed, fmt.Errorf("account: remove %s: %w", p.Email, err)
			}
			if rbac.HasRole(roles, rbac.RoleAdmin) {
				continue
			}
		}
		if err := s.dir.Delete(ctx, p); err != nil {
			if errors.Is(err, users.ErrNotFound) {
				continue
			}
			return removed, fmt.Errorf("account: remove %s: %w", p.Email, err)
		}
		removed++
		s.appendAudit(ctx, func() error { return s.audit.UserRemoved(ctx, actor.UserID, p.ID, p.Email, clientIP) })
	}
	s.logFor(ctx).Warn("users removed", "actor_user_id", actor.UserID, "count", removed)
	return removed, nil
}

// EnsureAdmin creates the bootstrap Admin when the email is not registered yet.
// An existing account is left untouched.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	_, exists, err := s.dir.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.createWithRoles(ctx, RegisterRequest{Email: email, Password: password}, []string{rbac.RoleAdmin}, "")
	if errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}

/* ===================== HELPERS ===================== */

func (s *Service) appendAudit(ctx context.Context, fn func() error) {
	if s.audit == nil {
		return
	}
	if err := fn(); err != nil {
		s.logFor(ctx).Error("audit append failed", "err", err)
	}
}

// logFor prefers the request-scoped logger (request_id attached) over the service logger.
func (s *Service) logFor(ctx context.Context) *slog.Logger {
	return logger.From(ctx, s.log)
}

func metadataJSON(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
