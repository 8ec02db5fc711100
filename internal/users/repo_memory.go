package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"identity-api/internal/rbac"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-process Directory for tests and STORE=memory runs.
// It is not intended for production use.
type MemoryDirectory struct {
	mu      sync.RWMutex
	hasher  Hasher
	byID    map[string]*Principal
	byEmail map[string]string
	roles   map[string]map[string]struct{}
	clock   func() time.Time
}

func NewMemoryDirectory(h Hasher) *MemoryDirectory {
	return &MemoryDirectory{
		hasher:  h,
		byID:    map[string]*Principal{},
		byEmail: map[string]string{},
		roles:   map[string]map[string]struct{}{},
		clock:   time.Now,
	}
}

func (d *MemoryDirectory) FindByEmail(_ context.Context, email string) (Principal, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[NormalizeEmail(email)]
	if !ok {
		return Principal{}, false, nil
	}
	return *d.byID[id], true, nil
}

func (d *MemoryDirectory) FindByID(_ context.Context, id string) (Principal, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.byID[id]
	if !ok {
		return Principal{}, false, nil
	}
	return *p, true, nil
}

func (d *MemoryDirectory) Create(_ context.Context, u NewUser, password string) (Principal, error) {
	if err := ValidateRegistration(u, password); err != nil {
		return Principal{}, err
	}
	hash, err := d.hasher.Hash(password)
	if err != nil {
		return Principal{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	email := NormalizeEmail(u.Email)
	if _, exists := d.byEmail[email]; exists {
		return Principal{}, ErrDuplicateEmail
	}
	p := &Principal{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Active:       true,
		CreatedAt:    d.clock().UTC(),
		PasswordHash: hash,
	}
	d.byID[p.ID] = p
	d.byEmail[email] = p.ID
	d.roles[p.ID] = map[string]struct{}{}
	return *p, nil
}

func (d *MemoryDirectory) VerifyPassword(_ context.Context, p Principal, password string) (bool, error) {
	d.mu.RLock()
	stored, ok := d.byID[p.ID]
	var hash string
	if ok {
		hash = stored.PasswordHash
	}
	d.mu.RUnlock()
	if !ok {
		return false, ErrNotFound
	}
	return d.hasher.Verify(hash, password)
}

func (d *MemoryDirectory) RolesOf(_ context.Context, p Principal) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	set, ok := d.roles[p.ID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

func (d *MemoryDirectory) SetRoles(_ context.Context, p Principal, roles []string) error {
	next := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if !rbac.IsKnownRole(r) {
			return ErrUnknownRole
		}
		next[r] = struct{}{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[p.ID]; !ok {
		return ErrNotFound
	}
	d.roles[p.ID] = next
	return nil
}

func (d *MemoryDirectory) SetActive(_ context.Context, p Principal, active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	stored, ok := d.byID[p.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Active = active
	return nil
}

func (d *MemoryDirectory) RecordLogin(_ context.Context, p Principal, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	stored, ok := d.byID[p.ID]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	stored.LastLoginAt = &at
	return nil
}

func (d *MemoryDirectory) Delete(_ context.Context, p Principal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	stored, ok := d.byID[p.ID]
	if !ok {
		return ErrNotFound
	}
	delete(d.byEmail, stored.Email)
	delete(d.byID, p.ID)
	delete(d.roles, p.ID)
	return nil
}

func (d *MemoryDirectory) ListAll(_ context.Context) ([]Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Principal, 0, len(d.byID))
	for _, p := range d.byID {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var _ Directory = (*MemoryDirectory)(nil)
