package authz

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPermissionDenied is returned for any denied action. The message is
	// deliberately uniform so callers never leak why access was refused.
	ErrPermissionDenied = errors.New("insufficient permissions")

	ErrUnknownRole   = errors.New("authz: unknown role")
	ErrUnknownAction = errors.New("authz: unknown action")
	ErrUnknownLevel  = errors.New("authz: unknown access level")
)

// Role is the global role held by a user. A user has exactly one role at a time.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleManager Role = "Manager"
	RoleUser    Role = "User"
	RoleViewer  Role = "Viewer"
)

// ParseRole normalizes a role name. Unknown names fail closed.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "manager":
		return RoleManager, nil
	case "user":
		return RoleUser, nil
	case "viewer":
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Action identifies an operation a caller wants to perform on a record.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionAdmin  Action = "admin"
)

// AccessLevel is the strength of a record access grant. Levels form a total
// order: Read < Write < Full.
type AccessLevel string

const (
	LevelRead  AccessLevel = "Read"
	LevelWrite AccessLevel = "Write"
	LevelFull  AccessLevel = "Full"
)

func (l AccessLevel) rank() int {
	switch l {
	case LevelRead:
		return 1
	case LevelWrite:
		return 2
	case LevelFull:
		return 3
	default:
		return 0
	}
}

// Valid reports whether the level belongs to the closed enumeration.
func (l AccessLevel) Valid() bool { return l.rank() > 0 }

// Satisfies reports whether the level is at least min.
func (l AccessLevel) Satisfies(min AccessLevel) bool {
	return l.rank() >= min.rank()
}

// ParseAccessLevel normalizes a level name.
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return LevelRead, nil
	case "write":
		return LevelWrite, nil
	case "full":
		return LevelFull, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) Allowed() bool { return d == Allow }

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// CurrentUser is the verified identity every check is evaluated against. It is
// threaded explicitly through each call so the engine stays a pure function
// usable from request handlers, batch jobs and tests alike.
type CurrentUser struct {
	ID       string
	Role     Role
	GroupIDs []string
}

// InGroup reports whether the user is a member of the given group.
func (u CurrentUser) InGroup(groupID string) bool {
	if groupID == "" {
		return false
	}
	for _, g := range u.GroupIDs {
		if g == groupID {
			return true
		}
	}
	return false
}

// Resource is the authorization-relevant view of an owned record: its identity
// plus the owner group stamped on it at creation.
type Resource struct {
	Type         string
	ID           string
	OwnerGroupID string
}
