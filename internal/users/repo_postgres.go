package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"identity-api/internal/rbac"
	"identity-api/pkg/utils"

	"github.com/google/uuid"
)

// Schema is applied by EnsureSchema. Both statements are idempotent;
// versioned migrations are owned by the deployment tooling.
var Schema = []string{`
CREATE TABLE IF NOT EXISTS users (
  id             TEXT PRIMARY KEY,
  email          TEXT NOT NULL UNIQUE,
  password_hash  TEXT NOT NULL,
  first_name     TEXT NOT NULL DEFAULT '',
  last_name      TEXT NOT NULL DEFAULT '',
  is_active      BOOLEAN NOT NULL DEFAULT TRUE,
  last_login_at  TIMESTAMPTZ NULL,
  created_at     TIMESTAMPTZ NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS user_roles (
  user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  role     TEXT NOT NULL,
  PRIMARY KEY (user_id, role)
)`,
}

// PostgresDirectory stores users in Postgres through database/sql (pgx stdlib driver).
type PostgresDirectory struct {
	db     *sql.DB
	hasher Hasher
	clock  func() time.Time
}

func NewPostgresDirectory(db *sql.DB, h Hasher) *PostgresDirectory {
	return &PostgresDirectory{db: db, hasher: h, clock: time.Now}
}

func (d *PostgresDirectory) EnsureSchema(ctx context.Context) error {
	if err := utils.ApplySchema(ctx, d.db, Schema...); err != nil {
		return fmt.Errorf("users: ensure schema: %w", err)
	}
	return nil
}

const selectUser = `
SELECT id, email, password_hash, first_name, last_name, is_active, last_login_at, created_at
FROM users
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (Principal, error) {
	var p Principal
	var lastLogin sql.NullTime
	if err := row.Scan(
		&p.ID,
		&p.Email,
		&p.PasswordHash,
		&p.FirstName,
		&p.LastName,
		&p.Active,
		&lastLogin,
		&p.CreatedAt,
	); err != nil {
		return Principal{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		p.LastLoginAt = &t
	}
	return p, nil
}

func (d *PostgresDirectory) findOne(ctx context.Context, where string, arg string) (Principal, bool, error) {
	p, err := scanPrincipal(d.db.QueryRowContext(ctx, selectUser+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Principal{}, false, nil
		}
		return Principal{}, false, fmt.Errorf("users: find: %w", err)
	}
	return p, true, nil
}

func (d *PostgresDirectory) FindByEmail(ctx context.Context, email string) (Principal, bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return Principal{}, false, nil
	}
	return d.findOne(ctx, "WHERE email = $1", email)
}

func (d *PostgresDirectory) FindByID(ctx context.Context, id string) (Principal, bool, error) {
	if id == "" {
		return Principal{}, false, nil
	}
	return d.findOne(ctx, "WHERE id = $1", id)
}

func (d *PostgresDirectory) Create(ctx context.Context, u NewUser, password string) (Principal, error) {
	if err := ValidateRegistration(u, password); err != nil {
		return Principal{}, err
	}
	hash, err := d.hasher.Hash(password)
	if err != nil {
		return Principal{}, err
	}

	p := Principal{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(u.Email),
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Active:       true,
		CreatedAt:    d.clock().UTC(),
		PasswordHash: hash,
	}

	const q = `
INSERT INTO users (id, email, password_hash, first_name, last_name, is_active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err = d.db.ExecContext(ctx, q,
		p.ID,
		p.Email,
		p.PasswordHash,
		p.FirstName,
		p.LastName,
		p.Active,
		p.CreatedAt,
	)
	if err != nil {
		if utils.IsUniqueViolation(err) {
			return Principal{}, ErrDuplicateEmail
		}
		return Principal{}, fmt.Errorf("users: create: %w", err)
	}
	return p, nil
}

func (d *PostgresDirectory) VerifyPassword(ctx context.Context, p Principal, password string) (bool, error) {
	hash := p.PasswordHash
	if hash == "" {
		stored, ok, err := d.FindByID(ctx, p.ID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, ErrNotFound
		}
		hash = stored.PasswordHash
	}
	return d.hasher.Verify(hash, password)
}

func (d *PostgresDirectory) RolesOf(ctx context.Context, p Principal) ([]string, error) {
	// LEFT JOIN yields one NULL-role row for a user without roles and no
	// rows at all for an unknown user.
	const q = `
SELECT r.role
FROM users u
LEFT JOIN user_roles r ON r.user_id = u.id
WHERE u.id = $1
ORDER BY r.role
`
	rows, err := d.db.QueryContext(ctx, q, p.ID)
	if err != nil {
		return nil, fmt.Errorf("users: roles: %w", err)
	}
	defer rows.Close()

	found := false
	out := []string{}
	for rows.Next() {
		found = true
		var r sql.NullString
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("users: roles: %w", err)
		}
		if r.Valid {
			out = append(out, r.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: roles: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return out, nil
}

// SetRoles swaps the role set inside one transaction so readers never see a
// user with the old roles removed and the new ones missing.
func (d *PostgresDirectory) SetRoles(ctx context.Context, p Principal, roles []string) error {
	for _, r := range roles {
		if !rbac.IsKnownRole(r) {
			return ErrUnknownRole
		}
	}

	return utils.WithTx(ctx, d.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		var locked string
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, p.ID).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("users: lock user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, p.ID); err != nil {
			return fmt.Errorf("users: clear roles: %w", err)
		}
		for _, r := range roles {
			const q = `INSERT INTO user_roles (user_id, role) VALUES ($1,$2) ON CONFLICT DO NOTHING`
			if _, err := tx.ExecContext(ctx, q, p.ID, r); err != nil {
				return fmt.Errorf("users: add role: %w", err)
			}
		}
		return nil
	})
}

func (d *PostgresDirectory) exec(ctx context.Context, op, q string, args ...any) error {
	res, err := d.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("users: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("users: %s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *PostgresDirectory) SetActive(ctx context.Context, p Principal, active bool) error {
	return d.exec(ctx, "set active", `UPDATE users SET is_active = $2 WHERE id = $1`, p.ID, active)
}

func (d *PostgresDirectory) RecordLogin(ctx context.Context, p Principal, at time.Time) error {
	return d.exec(ctx, "record login", `UPDATE users SET last_login_at = $2 WHERE id = $1`, p.ID, at.UTC())
}

func (d *PostgresDirectory) Delete(ctx context.Context, p Principal) error {
	return d.exec(ctx, "delete", `DELETE FROM users WHERE id = $1`, p.ID)
}

func (d *PostgresDirectory) ListAll(ctx context.Context) ([]Principal, error) {
	rows, err := d.db.QueryContext(ctx, selectUser+"ORDER BY created_at, email")
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	out := []Principal{}
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("users: list: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var _ Directory = (*PostgresDirectory)(nil)
