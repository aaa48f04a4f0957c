package audit

import (
	"context"
	"errors"
	"reflect"
	"time"
)

// Action labels the mutation an entry describes.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Entry is one row of the immutable audit trail: exactly one per successful
// mutation, never updated or deleted. OldValues is present for UPDATE/DELETE,
// NewValues for CREATE/UPDATE.
type Entry struct {
	ID        string         `json:"id"`
	TableName string         `json:"table_name"`
	RecordID  string         `json:"record_id"`
	Action    Action         `json:"action"`
	UserID    string         `json:"user_id"`
	OldValues map[string]any `json:"old_values,omitempty"`
	NewValues map[string]any `json:"new_values,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Filter narrows a Query. Zero values mean "no constraint".
type Filter struct {
	UserID string
	Start  *time.Time
	End    *time.Time
	Limit  int
}

var ErrInvalidEntry = errors.New("audit: invalid entry")

// Store appends immutable entries and lists them newest first.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// Diff returns the old and new snapshots reduced to the fields that actually
// changed, for UPDATE entries. Keys present in only one map count as changed.
func Diff(old, new map[string]any) (map[string]any, map[string]any) {
	changedOld := map[string]any{}
	changedNew := map[string]any{}
	for k, ov := range old {
		nv, ok := new[k]
		if !ok || !equalValue(ov, nv) {
			changedOld[k] = ov
			if ok {
				changedNew[k] = nv
			}
		}
	}
	for k, nv := range new {
		if _, ok := old[k]; !ok {
			changedNew[k] = nv
		}
	}
	return changedOld, changedNew
}

func equalValue(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		// Numbers arrive as different concrete types depending on whether the
		// value crossed a JSON boundary; compare via float64.
		af, aok := toFloat(a)
		bf, bok := toFloat(b)
		if aok && bok {
			return af == bf
		}
		// Arrays and nested objects decode to []any and map[string]any,
		// which == would panic on.
		return reflect.DeepEqual(a, b)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
