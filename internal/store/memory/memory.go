// Package memory provides in-process store implementations used by tests and
// by the API in development mode when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"spendtrack.org/internal/audit"
	"spendtrack.org/internal/auth"
	"spendtrack.org/internal/grant"
	"spendtrack.org/internal/group"
	"spendtrack.org/internal/ownership"
	"spendtrack.org/internal/record"
)

// GrantStore implements grant.Store with in-process concurrency safety.
type GrantStore struct {
	mu     sync.RWMutex
	grants map[string]grant.Grant
}

var _ grant.Store = (*GrantStore)(nil)

// NewGrantStore creates an empty grant store.
func NewGrantStore() *GrantStore {
	return &GrantStore{grants: make(map[string]grant.Grant)}
}

func (s *GrantStore) Insert(ctx context.Context, g grant.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[g.ID] = g
	return nil
}

func (s *GrantStore) Get(ctx context.Context, id string) (grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[id]
	if !ok {
		return grant.Grant{}, grant.ErrNotFound
	}
	return g, nil
}

func (s *GrantStore) ListFor(ctx context.Context, recordType ownership.RecordType, recordID string) ([]grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []grant.Grant
	for _, g := range s.grants {
		if g.RecordType == recordType && g.RecordID == recordID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *GrantStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, id)
	return nil
}

// AuditStore implements audit.Store over an append-only slice.
type AuditStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

var _ audit.Store = (*AuditStore)(nil)

// NewAuditStore creates an empty audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Append(ctx context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *AuditStore) List(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Start != nil && e.Timestamp.Before(*f.Start) {
			continue
		}
		if f.End != nil && e.Timestamp.After(*f.End) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		// Match the pg backend's "order by ts desc, id desc": entry IDs are
		// ULIDs assigned at append time, so ID order is insertion order.
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// GroupStore implements group.Store.
type GroupStore struct {
	mu      sync.RWMutex
	groups  map[string]group.Group
	members map[string]map[string]group.Membership // groupID -> userID -> membership
}

var _ group.Store = (*GroupStore)(nil)

// NewGroupStore creates an empty group store.
func NewGroupStore() *GroupStore {
	return &GroupStore{
		groups:  make(map[string]group.Group),
		members: make(map[string]map[string]group.Membership),
	}
}

func (s *GroupStore) Create(ctx context.Context, g group.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.groups {
		if existing.Name == g.Name {
			return group.ErrConflict
		}
	}
	s.groups[g.ID] = g
	return nil
}

func (s *GroupStore) Get(ctx context.Context, id string) (group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return group.Group{}, group.ErrNotFound
	}
	return g, nil
}

func (s *GroupStore) List(ctx context.Context) ([]group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]group.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *GroupStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return group.ErrNotFound
	}
	delete(s.groups, id)
	delete(s.members, id)
	return nil
}

func (s *GroupStore) AddMember(ctx context.Context, m group.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[m.GroupID]; !ok {
		return group.ErrNotFound
	}
	byUser, ok := s.members[m.GroupID]
	if !ok {
		byUser = make(map[string]group.Membership)
		s.members[m.GroupID] = byUser
	}
	if _, exists := byUser[m.UserID]; exists {
		return group.ErrConflict
	}
	byUser[m.UserID] = m
	return nil
}

func (s *GroupStore) RemoveMember(ctx context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.members[groupID]
	if !ok {
		return group.ErrNotFound
	}
	if _, exists := byUser[userID]; !exists {
		return group.ErrNotFound
	}
	delete(byUser, userID)
	return nil
}

func (s *GroupStore) Members(ctx context.Context, groupID string) ([]group.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.groups[groupID]; !ok {
		return nil, group.ErrNotFound
	}
	var out []group.Membership
	for _, m := range s.members[groupID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *GroupStore) GroupsForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for groupID, byUser := range s.members {
		if _, ok := byUser[userID]; ok {
			out = append(out, groupID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// RecordStore implements record.Store keyed by (type, id).
type RecordStore struct {
	mu      sync.RWMutex
	records map[recordKey]record.Record
}

type recordKey struct {
	t  ownership.RecordType
	id string
}

var _ record.Store = (*RecordStore)(nil)

// NewRecordStore creates an empty record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[recordKey]record.Record)}
}

func (s *RecordStore) Insert(ctx context.Context, r record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{r.Type, r.ID}] = cloneRecord(r)
	return nil
}

func (s *RecordStore) Get(ctx context.Context, t ownership.RecordType, id string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordKey{t, id}]
	if !ok {
		return record.Record{}, record.ErrNotFound
	}
	return cloneRecord(r), nil
}

func (s *RecordStore) ListByType(ctx context.Context, t ownership.RecordType) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []record.Record
	for key, r := range s.records {
		if key.t == t {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RecordStore) Update(ctx context.Context, r record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey{r.Type, r.ID}
	existing, ok := s.records[key]
	if !ok {
		return record.ErrNotFound
	}
	existing.Fields = cloneRecord(r).Fields
	existing.UpdatedBy = r.UpdatedBy
	existing.UpdatedAt = r.UpdatedAt
	s.records[key] = existing
	return nil
}

func (s *RecordStore) Delete(ctx context.Context, t ownership.RecordType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey{t, id}
	if _, ok := s.records[key]; !ok {
		return record.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

func cloneRecord(r record.Record) record.Record {
	out := r
	out.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}

// UserStore implements auth.Store.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]auth.User
}

var _ auth.Store = (*UserStore)(nil)

// NewUserStore creates an empty user store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]auth.User)}
}

func (s *UserStore) Create(ctx context.Context, u auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return auth.ErrConflict
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *UserStore) Get(ctx context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (s *UserStore) List(ctx context.Context) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *UserStore) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.LastLogin = &at
	s.users[id] = u
	return nil
}
