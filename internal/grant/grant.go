package grant

import (
	"context"
	"errors"
	"time"

	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/ownership"
)

var (
	// ErrInvalidShape means the grant does not name exactly one subject:
	// either both user_id and group_id were set, or neither.
	ErrInvalidShape = errors.New("grant: exactly one of user_id or group_id is required")

	// ErrInvalidExpiration means expires_at is not strictly after granted_at.
	// A grant born expired is rejected, not silently inert.
	ErrInvalidExpiration = errors.New("grant: expires_at must be after granted_at")

	ErrInvalidLevel = errors.New("grant: invalid access level")
	ErrNotFound     = errors.New("grant: not found")
)

// Grant is an explicit, record-scoped access exception issued to a user or a
// group, independent of ownership. Grants are never mutated in place: they are
// created, optionally expire, and are deleted on revoke.
type Grant struct {
	ID         string               `json:"id"`
	RecordType ownership.RecordType `json:"record_type"`
	RecordID   string               `json:"record_id"`
	UserID     string               `json:"user_id,omitempty"`
	GroupID    string               `json:"group_id,omitempty"`
	Level      authz.AccessLevel    `json:"access_level"`
	GrantedBy  string               `json:"granted_by"`
	GrantedAt  time.Time            `json:"granted_at"`
	ExpiresAt  *time.Time           `json:"expires_at,omitempty"`
}

// Expired reports whether the grant no longer contributes to the effective
// access level. Expired rows may persist in storage indefinitely.
func (g Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Store persists grants. Delete on a missing id must be a no-op success so
// concurrent revokes stay race-free.
type Store interface {
	Insert(ctx context.Context, g Grant) error
	Get(ctx context.Context, id string) (Grant, error)
	ListFor(ctx context.Context, recordType ownership.RecordType, recordID string) ([]Grant, error)
	Delete(ctx context.Context, id string) error
}
