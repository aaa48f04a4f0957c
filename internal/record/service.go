package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spendtrack.org/internal/audit"
	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/ids"
	"spendtrack.org/internal/ownership"
)

// Service is the record CRUD layer. Every mutation asks the authorization
// engine first, stamps the owner group at creation, and writes one audit
// entry after the mutation is committed.
type Service struct {
	store    Store
	engine   *authz.Engine
	resolver *ownership.Resolver
	trail    *audit.Logger
	now      func() time.Time
}

// NewService constructs a Service. The resolver is built over the same store
// the service mutates, so parent lookups always see committed records.
func NewService(store Store, engine *authz.Engine, trail *audit.Logger) *Service {
	return &Service{
		store:    store,
		engine:   engine,
		resolver: ownership.NewResolver(Lookup(store)),
		trail:    trail,
		now:      time.Now,
	}
}

// CreateInput describes a new record. OwnerGroupID applies to root types only;
// children always inherit the parent's owner group.
type CreateInput struct {
	Type         ownership.RecordType
	ParentID     string
	OwnerGroupID string
	Fields       map[string]any
}

// Create authorizes, stamps the owner group and persists a new record.
func (s *Service) Create(ctx context.Context, user authz.CurrentUser, in CreateInput) (Record, error) {
	if !in.Type.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ownership.ErrUnknownType, in.Type)
	}

	var ownerGroup string
	if ownership.IsRoot(in.Type) {
		ownerGroup = strings.TrimSpace(in.OwnerGroupID)
		if ownerGroup == "" {
			return Record{}, fmt.Errorf("%w: owner_group_id is required for %s", ErrInvalidInput, in.Type)
		}
	} else {
		parentType, _ := ownership.ParentType(in.Type)
		parentID := strings.TrimSpace(in.ParentID)
		if parentID == "" {
			return Record{}, fmt.Errorf("%w: parent_id is required for %s", ErrInvalidInput, in.Type)
		}
		var err error
		ownerGroup, err = s.resolver.ResolveOwnerGroup(ctx, ownership.RecordRef{Type: parentType, ID: parentID})
		if err != nil {
			return Record{}, err
		}
		in.ParentID = parentID
	}

	d, err := s.engine.Authorize(ctx, user, authz.ActionCreate, authz.Resource{
		Type:         string(in.Type),
		OwnerGroupID: ownerGroup,
	})
	if err != nil {
		return Record{}, err
	}
	if !d.Allowed() {
		return Record{}, authz.ErrPermissionDenied
	}

	now := s.now().UTC()
	r := Record{
		Type:         in.Type,
		ID:           ids.New(),
		ParentID:     in.ParentID,
		OwnerGroupID: ownerGroup,
		CreatedBy:    user.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Fields:       cloneFields(in.Fields),
	}
	if err := s.store.Insert(ctx, r); err != nil {
		return Record{}, err
	}
	// The insert is committed; an audit failure is surfaced by the trail
	// itself, never to the caller.
	_ = s.trail.Record(ctx, audit.ActionCreate, string(r.Type), r.ID, user.ID, nil, snapshot(r))
	return r, nil
}

// Get returns one record if the user may read it.
func (s *Service) Get(ctx context.Context, user authz.CurrentUser, t ownership.RecordType, id string) (Record, error) {
	r, err := s.store.Get(ctx, t, id)
	if err != nil {
		return Record{}, err
	}
	d, err := s.engine.Authorize(ctx, user, authz.ActionRead, r.Resource())
	if err != nil {
		return Record{}, err
	}
	if !d.Allowed() {
		return Record{}, authz.ErrPermissionDenied
	}
	return r, nil
}

// List returns the records of one type the user may read. Denied records are
// silently omitted; a list never fails on access grounds.
func (s *Service) List(ctx context.Context, user authz.CurrentUser, t ownership.RecordType) ([]Record, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ownership.ErrUnknownType, t)
	}
	all, err := s.store.ListByType(ctx, t)
	if err != nil {
		return nil, err
	}
	return authz.FilterReadable(ctx, s.engine, user, all, Record.Resource)
}

// Update merges the given fields into the record. The owner group and parent
// linkage are immutable; only the domain payload changes.
func (s *Service) Update(ctx context.Context, user authz.CurrentUser, t ownership.RecordType, id string, fields map[string]any) (Record, error) {
	if len(fields) == 0 {
		return Record{}, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	r, err := s.store.Get(ctx, t, id)
	if err != nil {
		return Record{}, err
	}
	d, err := s.engine.Authorize(ctx, user, authz.ActionUpdate, r.Resource())
	if err != nil {
		return Record{}, err
	}
	if !d.Allowed() {
		return Record{}, authz.ErrPermissionDenied
	}

	oldFields := cloneFields(r.Fields)
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	for k, v := range fields {
		r.Fields[k] = v
	}
	r.UpdatedBy = user.ID
	r.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, r); err != nil {
		return Record{}, err
	}
	oldChanged, newChanged := audit.Diff(oldFields, r.Fields)
	_ = s.trail.Record(ctx, audit.ActionUpdate, string(t), id, user.ID, oldChanged, newChanged)
	return r, nil
}

// Delete removes the record.
func (s *Service) Delete(ctx context.Context, user authz.CurrentUser, t ownership.RecordType, id string) error {
	r, err := s.store.Get(ctx, t, id)
	if err != nil {
		return err
	}
	d, err := s.engine.Authorize(ctx, user, authz.ActionDelete, r.Resource())
	if err != nil {
		return err
	}
	if !d.Allowed() {
		return authz.ErrPermissionDenied
	}
	if err := s.store.Delete(ctx, t, id); err != nil {
		return err
	}
	_ = s.trail.Record(ctx, audit.ActionDelete, string(t), id, user.ID, snapshot(r), nil)
	return nil
}

func snapshot(r Record) map[string]any {
	snap := map[string]any{
		"owner_group_id": r.OwnerGroupID,
	}
	if r.ParentID != "" {
		snap["parent_id"] = r.ParentID
	}
	for k, v := range r.Fields {
		snap[k] = v
	}
	return snap
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
