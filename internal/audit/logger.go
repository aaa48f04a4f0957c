package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spendtrack.org/internal/ids"
	"spendtrack.org/internal/obs"
)

const defaultQueryLimit = 100

// Logger is the append-only audit trail. Record is called after the mutation
// it describes has been committed; Query serves the Admin-only trail endpoint.
type Logger struct {
	store Store
	now   func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLogger constructs a Logger over the given store.
func NewLogger(store Store, opts ...Option) *Logger {
	l := &Logger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends one entry for a successful mutation. The mutation has already
// been committed when Record runs, so an append failure must not surface to
// the end user as a transaction failure: it is reported here as a
// degraded-audit warning and counted, then returned for callers that monitor.
func (l *Logger) Record(ctx context.Context, action Action, tableName, recordID, userID string, oldValues, newValues map[string]any) error {
	e := Entry{
		ID:        ids.New(),
		TableName: strings.TrimSpace(tableName),
		RecordID:  strings.TrimSpace(recordID),
		Action:    action,
		UserID:    strings.TrimSpace(userID),
		OldValues: oldValues,
		NewValues: newValues,
		Timestamp: l.now().UTC(),
	}
	if err := validate(e); err != nil {
		return err
	}
	if err := l.store.Append(ctx, e); err != nil {
		obs.LogRequest(map[string]any{
			"ts":        e.Timestamp.Format(time.RFC3339Nano),
			"level":     "warn",
			"msg":       "degraded audit: entry not written",
			"table":     e.TableName,
			"record_id": e.RecordID,
			"action":    string(e.Action),
			"error":     err.Error(),
		})
		obs.CountAuditWriteFailure()
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func validate(e Entry) error {
	if e.TableName == "" || e.RecordID == "" || e.UserID == "" {
		return fmt.Errorf("%w: table_name, record_id and user_id are required", ErrInvalidEntry)
	}
	switch e.Action {
	case ActionCreate:
		if e.NewValues == nil {
			return fmt.Errorf("%w: CREATE requires new_values", ErrInvalidEntry)
		}
	case ActionUpdate:
		if e.OldValues == nil || e.NewValues == nil {
			return fmt.Errorf("%w: UPDATE requires old_values and new_values", ErrInvalidEntry)
		}
	case ActionDelete:
		if e.OldValues == nil {
			return fmt.Errorf("%w: DELETE requires old_values", ErrInvalidEntry)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, e.Action)
	}
	return nil
}

// Query returns entries matching the filter, newest first. Role enforcement
// (Admin only) happens at the transport layer before Query is reached.
func (l *Logger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = defaultQueryLimit
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return nil, fmt.Errorf("%w: end_date precedes start_date", ErrInvalidEntry)
	}
	return l.store.List(ctx, f)
}
