package grant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/ids"
	"spendtrack.org/internal/ownership"
)

// Service validates grant lifecycle operations before they reach the store.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service over the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and persists a new grant. The server assigns the id and
// granted_at; caller-supplied values for either are ignored.
func (s *Service) Create(ctx context.Context, g Grant) (Grant, error) {
	if _, err := ownership.ParseRecordType(string(g.RecordType)); err != nil {
		return Grant{}, err
	}
	if strings.TrimSpace(g.RecordID) == "" {
		return Grant{}, fmt.Errorf("%w: record_id is required", ErrNotFound)
	}
	g.UserID = strings.TrimSpace(g.UserID)
	g.GroupID = strings.TrimSpace(g.GroupID)
	if (g.UserID == "") == (g.GroupID == "") {
		return Grant{}, ErrInvalidShape
	}
	if !g.Level.Valid() {
		return Grant{}, fmt.Errorf("%w: %q", ErrInvalidLevel, g.Level)
	}

	g.ID = ids.New()
	g.GrantedAt = s.now().UTC()
	if g.ExpiresAt != nil && !g.ExpiresAt.After(g.GrantedAt) {
		return Grant{}, ErrInvalidExpiration
	}
	if err := s.store.Insert(ctx, g); err != nil {
		return Grant{}, err
	}
	return g, nil
}

// Get returns one grant by id. Callers use it to locate the record a revoke
// targets before checking the revoker's rights on it.
func (s *Service) Get(ctx context.Context, id string) (Grant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Grant{}, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// ListFor returns every grant for a record, expired ones included. Filtering
// by validity is the authorization engine's job; display is the caller's.
func (s *Service) ListFor(ctx context.Context, recordType ownership.RecordType, recordID string) ([]Grant, error) {
	if !recordType.Valid() {
		return nil, fmt.Errorf("%w: %q", ownership.ErrUnknownType, recordType)
	}
	return s.store.ListFor(ctx, recordType, recordID)
}

// Revoke deletes a grant. Revoking a nonexistent grant is a no-op success to
// tolerate races between concurrent revokes.
func (s *Service) Revoke(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return s.store.Delete(ctx, id)
}

var _ authz.GrantSource = (*Service)(nil)

// GrantsFor adapts stored grants to the engine's view. All rows are returned;
// the engine applies lazy expiration itself.
func (s *Service) GrantsFor(ctx context.Context, recordType, recordID string) ([]authz.GrantView, error) {
	all, err := s.store.ListFor(ctx, ownership.RecordType(recordType), recordID)
	if err != nil {
		return nil, err
	}
	views := make([]authz.GrantView, 0, len(all))
	for _, g := range all {
		views = append(views, authz.GrantView{
			UserID:    g.UserID,
			GroupID:   g.GroupID,
			Level:     g.Level,
			ExpiresAt: g.ExpiresAt,
		})
	}
	return views, nil
}
