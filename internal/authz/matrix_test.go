package authz

import "testing"

func TestBaselineMatrix(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleAdmin, ActionCreate, true},
		{RoleAdmin, ActionDelete, true},
		{RoleAdmin, ActionAdmin, true},
		{RoleManager, ActionDelete, true},
		{RoleManager, ActionAdmin, true},
		{RoleUser, ActionCreate, true},
		{RoleUser, ActionUpdate, true},
		{RoleUser, ActionDelete, false},
		{RoleUser, ActionAdmin, false},
		{RoleViewer, ActionRead, true},
		{RoleViewer, ActionCreate, false},
		{RoleViewer, ActionUpdate, false},
		{RoleViewer, ActionDelete, false},
		{Role("intern"), ActionRead, false},
	}
	for _, tc := range cases {
		if got := Baseline(tc.role, tc.action); got != tc.want {
			t.Errorf("Baseline(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestBypassesOwnership(t *testing.T) {
	if !BypassesOwnership(RoleAdmin, ActionAdmin) {
		t.Fatal("admin must bypass ownership for every action")
	}
	if !BypassesOwnership(RoleManager, ActionDelete) {
		t.Fatal("manager must bypass ownership for CRUD actions")
	}
	if BypassesOwnership(RoleManager, ActionAdmin) {
		t.Fatal("manager must not bypass ownership for admin-scoped actions")
	}
	if BypassesOwnership(RoleUser, ActionRead) || BypassesOwnership(RoleViewer, ActionRead) {
		t.Fatal("user and viewer never bypass ownership")
	}
}

func TestCanQueryAudit(t *testing.T) {
	if !CanQueryAudit(RoleAdmin) {
		t.Fatal("admin must query the audit trail")
	}
	for _, r := range []Role{RoleManager, RoleUser, RoleViewer} {
		if CanQueryAudit(r) {
			t.Fatalf("%s must not query the audit trail", r)
		}
	}
}

func TestRequiredLevel(t *testing.T) {
	cases := []struct {
		action Action
		level  AccessLevel
		ok     bool
	}{
		{ActionRead, LevelRead, true},
		{ActionUpdate, LevelWrite, true},
		{ActionDelete, LevelFull, true},
		{ActionCreate, "", false},
		{ActionAdmin, "", false},
	}
	for _, tc := range cases {
		level, ok := RequiredLevel(tc.action)
		if ok != tc.ok || level != tc.level {
			t.Errorf("RequiredLevel(%s) = (%q, %v), want (%q, %v)", tc.action, level, ok, tc.level, tc.ok)
		}
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" MANAGER ")
	if err != nil || r != RoleManager {
		t.Fatalf("ParseRole: got (%q, %v)", r, err)
	}
	if _, err := ParseRole("root"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestAccessLevelOrder(t *testing.T) {
	if !LevelFull.Satisfies(LevelRead) || !LevelWrite.Satisfies(LevelWrite) {
		t.Fatal("higher levels must satisfy lower requirements")
	}
	if LevelRead.Satisfies(LevelWrite) {
		t.Fatal("Read must not satisfy Write")
	}
	if AccessLevel("superuser").Valid() {
		t.Fatal("unknown levels must be invalid")
	}
}
