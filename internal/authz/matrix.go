package authz

// The role matrix is a single static table. Unknown roles have no row and
// therefore no capabilities at all.
var baseline = map[Role]map[Action]bool{
	RoleAdmin: {
		ActionCreate: true,
		ActionRead:   true,
		ActionUpdate: true,
		ActionDelete: true,
		ActionAdmin:  true,
	},
	RoleManager: {
		ActionCreate: true,
		ActionRead:   true,
		ActionUpdate: true,
		ActionDelete: true,
		ActionAdmin:  true, // group administration only, see CanQueryAudit
	},
	RoleUser: {
		ActionCreate: true,
		ActionRead:   true,
		ActionUpdate: true,
	},
	RoleViewer: {
		ActionRead: true,
	},
}

// Baseline reports whether the role may perform the action at all. A false
// answer is final: no grant can rescue an action the role lacks.
func Baseline(role Role, action Action) bool {
	row, ok := baseline[role]
	if !ok {
		return false
	}
	return row[action]
}

// BypassesOwnership reports whether the role skips ownership and grant checks
// entirely for the action. Admin bypasses everything; Manager bypasses the
// CRUD actions but not admin-scoped ones.
func BypassesOwnership(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action != ActionAdmin
	default:
		return false
	}
}

// CanQueryAudit reports whether the role may read the global audit trail.
// Manager's admin capability covers group administration only.
func CanQueryAudit(role Role) bool {
	return role == RoleAdmin
}

// ManagesGroups reports whether the role may administer user-group membership.
func ManagesGroups(role Role) bool {
	return Baseline(role, ActionAdmin)
}

// RequiredLevel maps an action to the minimum grant level that satisfies it.
// Creation is never grant-satisfiable: it always requires direct group
// ownership or a bypass role, so ok is false for ActionCreate.
func RequiredLevel(action Action) (AccessLevel, bool) {
	switch action {
	case ActionRead:
		return LevelRead, true
	case ActionUpdate:
		return LevelWrite, true
	case ActionDelete:
		return LevelFull, true
	default:
		return "", false
	}
}
