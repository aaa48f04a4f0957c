package group

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spendtrack.org/internal/ids"
)

// Service validates group administration operations. Role enforcement (only
// Manager and Admin may mutate groups) happens at the transport layer.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Create persists a new group with a server-assigned id.
func (s *Service) Create(ctx context.Context, name, description, createdBy string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	g := Group{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   createdBy,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, g); err != nil {
		return Group{}, err
	}
	return g, nil
}

// Get returns one group.
func (s *Service) Get(ctx context.Context, id string) (Group, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Group{}, fmt.Errorf("%w: group_id is required", ErrInvalidInput)
	}
	return s.store.Get(ctx, id)
}

// List returns all groups.
func (s *Service) List(ctx context.Context) ([]Group, error) {
	return s.store.List(ctx)
}

// Delete removes a group.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: group_id is required", ErrInvalidInput)
	}
	return s.store.Delete(ctx, id)
}

// AddMember enrolls a user into a group.
func (s *Service) AddMember(ctx context.Context, groupID, userID, addedBy string) (Membership, error) {
	groupID = strings.TrimSpace(groupID)
	userID = strings.TrimSpace(userID)
	if groupID == "" || userID == "" {
		return Membership{}, fmt.Errorf("%w: group_id and user_id are required", ErrInvalidInput)
	}
	if _, err := s.store.Get(ctx, groupID); err != nil {
		return Membership{}, err
	}
	m := Membership{
		GroupID: groupID,
		UserID:  userID,
		AddedBy: addedBy,
		AddedAt: s.now().UTC(),
	}
	if err := s.store.AddMember(ctx, m); err != nil {
		return Membership{}, err
	}
	return m, nil
}

// RemoveMember withdraws a user from a group.
func (s *Service) RemoveMember(ctx context.Context, groupID, userID string) error {
	groupID = strings.TrimSpace(groupID)
	userID = strings.TrimSpace(userID)
	if groupID == "" || userID == "" {
		return fmt.Errorf("%w: group_id and user_id are required", ErrInvalidInput)
	}
	return s.store.RemoveMember(ctx, groupID, userID)
}

// Members lists the memberships of a group.
func (s *Service) Members(ctx context.Context, groupID string) ([]Membership, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, fmt.Errorf("%w: group_id is required", ErrInvalidInput)
	}
	return s.store.Members(ctx, groupID)
}

// GroupsForUser resolves the flat set of group ids a user belongs to. The
// authentication layer uses it to build the CurrentUser for every request.
func (s *Service) GroupsForUser(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.GroupsForUser(ctx, userID)
}
