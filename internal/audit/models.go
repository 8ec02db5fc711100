package audit

import "time"

// Event is an immutable, append-only security record.
//
// Invariants:
// - Events are never updated or deleted.
// - Type is required; everything else is best-effort context.
// - Never store passwords, tokens or hashes in Message or Metadata.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated caller, empty for anonymous flows (login, register).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	// SubjectUserID is the account the event is about.
	SubjectUserID string `json:"subject_user_id,omitempty" db:"subject_user_id"`
	Email         string `json:"email,omitempty" db:"email"`

	// IPAddress is the client IP as resolved by gin (trusted proxies applied).
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	Message string `json:"message,omitempty" db:"message"`
	// Metadata is optional JSON.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventLoginSucceeded EventType = "login_succeeded"
	EventLoginFailed    EventType = "login_failed"
	EventUserRegistered EventType = "user_registered"
	EventRoleChanged    EventType = "role_changed"
	EventUserRemoved    EventType = "user_removed"
)

func (t EventType) Valid() bool {
	switch t {
	case EventLoginSucceeded, EventLoginFailed, EventUserRegistered, EventRoleChanged, EventUserRemoved:
		return true
	default:
		return false
	}
}
