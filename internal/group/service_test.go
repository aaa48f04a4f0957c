package group_test

import (
	"context"
	"errors"
	"testing"

	"spendtrack.org/internal/group"
	"spendtrack.org/internal/store/memory"
)

func TestGroupLifecycle(t *testing.T) {
	s := group.NewService(memory.NewGroupStore())
	ctx := context.Background()

	g, err := s.Create(ctx, " Finance ", "owns all budget items", "adm-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if g.ID == "" || g.Name != "Finance" {
		t.Fatalf("unexpected group: %+v", g)
	}

	if _, err := s.Create(ctx, "Finance", "", "adm-1"); !errors.Is(err, group.ErrConflict) {
		t.Fatalf("duplicate name: expected ErrConflict, got %v", err)
	}
	if _, err := s.Create(ctx, "  ", "", "adm-1"); !errors.Is(err, group.ErrInvalidInput) {
		t.Fatalf("blank name: expected ErrInvalidInput, got %v", err)
	}

	got, err := s.Get(ctx, g.ID)
	if err != nil || got.Name != "Finance" {
		t.Fatalf("Get: (%+v, %v)", got, err)
	}

	if err := s.Delete(ctx, g.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, g.ID); !errors.Is(err, group.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMembership(t *testing.T) {
	s := group.NewService(memory.NewGroupStore())
	ctx := context.Background()

	fin, err := s.Create(ctx, "Finance", "", "adm-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	eng, err := s.Create(ctx, "Engineering", "", "adm-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := s.AddMember(ctx, fin.ID, "u-1", "adm-1"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if _, err := s.AddMember(ctx, eng.ID, "u-1", "adm-1"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if _, err := s.AddMember(ctx, "missing", "u-1", "adm-1"); !errors.Is(err, group.ErrNotFound) {
		t.Fatalf("unknown group: expected ErrNotFound, got %v", err)
	}

	groups, err := s.GroupsForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("GroupsForUser: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %v", groups)
	}

	if err := s.RemoveMember(ctx, eng.ID, "u-1"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	groups, err = s.GroupsForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("GroupsForUser: %v", err)
	}
	if len(groups) != 1 || groups[0] != fin.ID {
		t.Fatalf("expected only finance membership, got %v", groups)
	}

	members, err := s.Members(ctx, fin.ID)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 || members[0].UserID != "u-1" {
		t.Fatalf("unexpected members: %+v", members)
	}
}
