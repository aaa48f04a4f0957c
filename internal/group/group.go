package group

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("group: not found")
	ErrConflict     = errors.New("group: already exists")
	ErrInvalidInput = errors.New("group: invalid input")
)

// Group is a flat set of users. Groups do not nest; only record ownership is
// hierarchical.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Membership links one user to one group.
type Membership struct {
	GroupID string    `json:"group_id"`
	UserID  string    `json:"user_id"`
	AddedBy string    `json:"added_by"`
	AddedAt time.Time `json:"added_at"`
}

// Store persists groups and memberships.
type Store interface {
	Create(ctx context.Context, g Group) error
	Get(ctx context.Context, id string) (Group, error)
	List(ctx context.Context) ([]Group, error)
	Delete(ctx context.Context, id string) error

	AddMember(ctx context.Context, m Membership) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	Members(ctx context.Context, groupID string) ([]Membership, error)
	GroupsForUser(ctx context.Context, userID string) ([]string, error)
}
