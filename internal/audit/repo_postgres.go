package audit

import (
	"context"
	"database/sql"
	"fmt"

	"identity-api/pkg/utils"
)

// Schema creates the audit table. UPDATE/DELETE should additionally be
// revoked from the application role in production.
var Schema = []string{`
CREATE TABLE IF NOT EXISTS audit_events (
  id               TEXT PRIMARY KEY,
  type             TEXT NOT NULL,
  actor_user_id    TEXT NOT NULL DEFAULT '',
  subject_user_id  TEXT NOT NULL DEFAULT '',
  email            TEXT NOT NULL DEFAULT '',
  ip_address       TEXT NOT NULL DEFAULT '',
  message          TEXT NOT NULL DEFAULT '',
  metadata         TEXT NOT NULL DEFAULT '',
  created_at       TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS audit_events_subject_idx ON audit_events (subject_user_id, created_at)`,
}

// PostgresRepo is INSERT-only.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if err := utils.ApplySchema(ctx, r.db, Schema...); err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, actor_user_id, subject_user_id, email, ip_address, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		e.ActorUserID,
		e.SubjectUserID,
		e.Email,
		e.IPAddress,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

var _ Repository = (*PostgresRepo)(nil)
