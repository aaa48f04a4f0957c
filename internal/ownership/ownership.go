package ownership

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingParent means the parent reference did not resolve. Child
	// creation must be blocked, never silently defaulted.
	ErrMissingParent = errors.New("ownership: parent record not found")

	ErrUnknownType = errors.New("ownership: unknown record type")
)

// RecordType identifies one of the owned entity types in the spend chain.
type RecordType string

const (
	TypeBudgetItem         RecordType = "budget_item"
	TypeBusinessCase       RecordType = "business_case"
	TypeLineItem           RecordType = "line_item"
	TypeWBSElement         RecordType = "wbs_element"
	TypeAsset              RecordType = "asset"
	TypePurchaseOrder      RecordType = "purchase_order"
	TypeGoodsReceipt       RecordType = "goods_receipt"
	TypeResourceAllocation RecordType = "resource_allocation"
)

// parentOf fixes the ownership chain: owner_group_id is copied once from the
// parent at creation time. Budget items are the only roots.
var parentOf = map[RecordType]RecordType{
	TypeBusinessCase:       TypeBudgetItem,
	TypeLineItem:           TypeBusinessCase,
	TypeWBSElement:         TypeLineItem,
	TypeAsset:              TypeWBSElement,
	TypePurchaseOrder:      TypeAsset,
	TypeGoodsReceipt:       TypePurchaseOrder,
	TypeResourceAllocation: TypePurchaseOrder,
}

// ParseRecordType normalizes and validates a record type name.
func ParseRecordType(s string) (RecordType, error) {
	t := RecordType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Valid reports whether the type belongs to the closed enumeration.
func (t RecordType) Valid() bool {
	if t == TypeBudgetItem {
		return true
	}
	_, ok := parentOf[t]
	return ok
}

// ParentType returns the parent type of child, or ok=false for root types.
func ParentType(child RecordType) (RecordType, bool) {
	p, ok := parentOf[child]
	return p, ok
}

// IsRoot reports whether records of this type carry their own owner group
// instead of inheriting one.
func IsRoot(t RecordType) bool {
	_, ok := parentOf[t]
	return t.Valid() && !ok
}

// RecordRef identifies any owned record by type and id.
type RecordRef struct {
	Type RecordType
	ID   string
}

// RecordLookup is the slice of the record storage the resolver needs. It must
// return ErrMissingParent (possibly wrapped) when the reference is dangling.
type RecordLookup interface {
	OwnerGroup(ctx context.Context, ref RecordRef) (string, error)
}

// Resolver computes the owner group stamped onto a new child record.
type Resolver struct {
	records RecordLookup
}

// NewResolver constructs a Resolver over the given record lookup.
func NewResolver(records RecordLookup) *Resolver {
	return &Resolver{records: records}
}

// ResolveOwnerGroup returns the parent's owner group verbatim. It is called
// exactly once, at child creation; the result is stamped immutably onto the
// new record and never tracks later changes to the parent.
func (r *Resolver) ResolveOwnerGroup(ctx context.Context, parent RecordRef) (string, error) {
	if !parent.Type.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, parent.Type)
	}
	group, err := r.records.OwnerGroup(ctx, parent)
	if err != nil {
		return "", err
	}
	if group == "" {
		return "", fmt.Errorf("%w: %s/%s has no owner group", ErrMissingParent, parent.Type, parent.ID)
	}
	return group, nil
}
