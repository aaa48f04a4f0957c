package record

import (
	"context"
	"errors"
	"time"

	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/ownership"
)

var (
	ErrNotFound     = errors.New("record: not found")
	ErrInvalidInput = errors.New("record: invalid input")
)

// Record is one owned entity in the spend chain. OwnerGroupID is stamped
// exactly once at creation and immutable thereafter; Fields holds the
// type-specific domain payload (codes, amounts, status).
type Record struct {
	Type         ownership.RecordType `json:"record_type"`
	ID           string               `json:"id"`
	ParentID     string               `json:"parent_id,omitempty"`
	OwnerGroupID string               `json:"owner_group_id"`
	CreatedBy    string               `json:"created_by"`
	UpdatedBy    string               `json:"updated_by,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	Fields       map[string]any       `json:"fields"`
}

// Resource is the authorization view of the record.
func (r Record) Resource() authz.Resource {
	return authz.Resource{
		Type:         string(r.Type),
		ID:           r.ID,
		OwnerGroupID: r.OwnerGroupID,
	}
}

// Store persists records. Update may change Fields, UpdatedBy and UpdatedAt
// only; OwnerGroupID never changes after Insert.
type Store interface {
	Insert(ctx context.Context, r Record) error
	Get(ctx context.Context, t ownership.RecordType, id string) (Record, error)
	ListByType(ctx context.Context, t ownership.RecordType) ([]Record, error)
	Update(ctx context.Context, r Record) error
	Delete(ctx context.Context, t ownership.RecordType, id string) error
}

// lookup adapts a Store to the resolver's RecordLookup.
type lookup struct {
	store Store
}

func (l lookup) OwnerGroup(ctx context.Context, ref ownership.RecordRef) (string, error) {
	r, err := l.store.Get(ctx, ref.Type, ref.ID)
	if errors.Is(err, ErrNotFound) {
		return "", ownership.ErrMissingParent
	}
	if err != nil {
		return "", err
	}
	return r.OwnerGroupID, nil
}

// Lookup exposes the store as an ownership.RecordLookup.
func Lookup(store Store) ownership.RecordLookup {
	return lookup{store: store}
}
