package authz

import (
	"context"
	"time"

	"spendtrack.org/internal/obs"
)

// GrantView is the slice of a record access grant the engine needs: who it
// applies to, how strong it is, and when it stops applying. Exactly one of
// UserID/GroupID is set.
type GrantView struct {
	UserID    string
	GroupID   string
	Level     AccessLevel
	ExpiresAt *time.Time
}

// GrantSource supplies all grants for a record, expired ones included. The
// engine filters by validity itself; expiration is evaluated lazily at
// decision time, never swept.
type GrantSource interface {
	GrantsFor(ctx context.Context, recordType, recordID string) ([]GrantView, error)
}

// Engine reconciles the role matrix, group ownership and explicit grants into
// a single allow/deny answer. It is stateless and safe for concurrent use;
// every decision is a pure read.
type Engine struct {
	grants GrantSource
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for grant expiration checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs an Engine over the given grant source.
func NewEngine(grants GrantSource, opts ...Option) *Engine {
	e := &Engine{grants: grants, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authorize decides whether user may perform action on the resource. The
// algorithm short-circuits on the first allow:
//
//  1. bypass roles (Admin always, Manager for CRUD) pass immediately;
//  2. a role without the baseline capability is denied, grants notwithstanding;
//  3. membership in the record's owner group allows;
//  4. otherwise the strongest non-expired applicable grant must meet the
//     action's required level.
//
// A non-nil error always accompanies a Deny caused by a grant lookup failure.
func (e *Engine) Authorize(ctx context.Context, user CurrentUser, action Action, res Resource) (Decision, error) {
	d, err := e.decide(ctx, user, action, res)
	obs.ObserveAuthzDecision(string(action), d.String())
	return d, err
}

func (e *Engine) decide(ctx context.Context, user CurrentUser, action Action, res Resource) (Decision, error) {
	if !Baseline(user.Role, action) {
		return Deny, nil
	}
	if BypassesOwnership(user.Role, action) {
		return Allow, nil
	}
	if user.InGroup(res.OwnerGroupID) {
		return Allow, nil
	}

	required, ok := RequiredLevel(action)
	if !ok {
		return Deny, nil
	}
	best, err := e.effectiveGrant(ctx, user, res)
	if err != nil {
		return Deny, err
	}
	if best.Satisfies(required) {
		return Allow, nil
	}
	return Deny, nil
}

// effectiveGrant returns the highest access level among all non-expired grants
// applicable to the user, either directly or through any group membership.
// Multiple matches combine by maximum.
func (e *Engine) effectiveGrant(ctx context.Context, user CurrentUser, res Resource) (AccessLevel, error) {
	all, err := e.grants.GrantsFor(ctx, res.Type, res.ID)
	if err != nil {
		return "", err
	}
	now := e.now()
	var best AccessLevel
	for _, g := range all {
		if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
			continue
		}
		applies := (g.UserID != "" && g.UserID == user.ID) ||
			(g.GroupID != "" && user.InGroup(g.GroupID))
		if !applies {
			continue
		}
		if g.Level.rank() > best.rank() {
			best = g.Level
		}
	}
	return best, nil
}

// CanAdministerGrants reports whether user may issue or revoke grants on the
// resource: bypass roles, owner-group members, and holders of a non-expired
// Full grant qualify. Viewers never do, since they lack the update baseline.
func (e *Engine) CanAdministerGrants(ctx context.Context, user CurrentUser, res Resource) (bool, error) {
	if !Baseline(user.Role, ActionUpdate) {
		return false, nil
	}
	if BypassesOwnership(user.Role, ActionUpdate) {
		return true, nil
	}
	if user.InGroup(res.OwnerGroupID) {
		return true, nil
	}
	best, err := e.effectiveGrant(ctx, user, res)
	if err != nil {
		return false, err
	}
	return best.Satisfies(LevelFull), nil
}

// Readable reports whether user may read the resource. List endpoints use it
// to silently omit denied records; absence from a list is the "no access"
// signal, an explicit deny is reserved for direct access and writes.
func (e *Engine) Readable(ctx context.Context, user CurrentUser, res Resource) (bool, error) {
	d, err := e.Authorize(ctx, user, ActionRead, res)
	if err != nil {
		return false, err
	}
	return d.Allowed(), nil
}

// FilterReadable returns the subset of items the user may read, preserving
// order. res extracts the authorization view of each item.
func FilterReadable[T any](ctx context.Context, e *Engine, user CurrentUser, items []T, res func(T) Resource) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		ok, err := e.Readable(ctx, user, res(item))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}
