package ownership

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestParseRecordType(t *testing.T) {
	got, err := ParseRecordType("  Budget_Item ")
	if err != nil || got != TypeBudgetItem {
		t.Fatalf("ParseRecordType: got (%q, %v)", got, err)
	}
	if _, err := ParseRecordType("invoice"); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestChainShape(t *testing.T) {
	if !IsRoot(TypeBudgetItem) {
		t.Fatal("budget_item must be the root type")
	}
	if IsRoot(TypeGoodsReceipt) || IsRoot(RecordType("bogus")) {
		t.Fatal("only budget_item is a root")
	}

	wantParent := map[RecordType]RecordType{
		TypeBusinessCase:       TypeBudgetItem,
		TypeLineItem:           TypeBusinessCase,
		TypeWBSElement:         TypeLineItem,
		TypeAsset:              TypeWBSElement,
		TypePurchaseOrder:      TypeAsset,
		TypeGoodsReceipt:       TypePurchaseOrder,
		TypeResourceAllocation: TypePurchaseOrder,
	}
	for child, parent := range wantParent {
		got, ok := ParentType(child)
		if !ok || got != parent {
			t.Errorf("ParentType(%s) = (%s, %v), want %s", child, got, ok, parent)
		}
	}
	if _, ok := ParentType(TypeBudgetItem); ok {
		t.Fatal("root type must have no parent")
	}
}

type mapLookup map[RecordRef]string

func (m mapLookup) OwnerGroup(ctx context.Context, ref RecordRef) (string, error) {
	group, ok := m[ref]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrMissingParent, ref.Type, ref.ID)
	}
	return group, nil
}

func TestResolveOwnerGroup(t *testing.T) {
	r := NewResolver(mapLookup{
		{TypeLineItem, "li-1"}: "g-engineering",
	})
	ctx := context.Background()

	group, err := r.ResolveOwnerGroup(ctx, RecordRef{TypeLineItem, "li-1"})
	if err != nil {
		t.Fatalf("ResolveOwnerGroup: %v", err)
	}
	if group != "g-engineering" {
		t.Fatalf("unexpected owner group %q", group)
	}

	if _, err := r.ResolveOwnerGroup(ctx, RecordRef{TypeLineItem, "li-missing"}); !errors.Is(err, ErrMissingParent) {
		t.Fatalf("expected ErrMissingParent, got %v", err)
	}
	if _, err := r.ResolveOwnerGroup(ctx, RecordRef{RecordType("bogus"), "x"}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestResolveOwnerGroupRejectsEmptyGroup(t *testing.T) {
	r := NewResolver(mapLookup{
		{TypeAsset, "a-1"}: "",
	})
	if _, err := r.ResolveOwnerGroup(context.Background(), RecordRef{TypeAsset, "a-1"}); !errors.Is(err, ErrMissingParent) {
		t.Fatalf("expected ErrMissingParent for empty owner group, got %v", err)
	}
}
