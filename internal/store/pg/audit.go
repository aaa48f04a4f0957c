package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"spendtrack.org/internal/audit"
)

// AuditStore appends and queries the immutable audit trail. Rows are never
// updated or deleted.
type AuditStore struct {
	db *sql.DB
}

var _ audit.Store = (*AuditStore)(nil)

func (s *AuditStore) Append(ctx context.Context, e audit.Entry) error {
	oldJSON, err := marshalValues(e.OldValues)
	if err != nil {
		return fmt.Errorf("marshal old_values: %w", err)
	}
	newJSON, err := marshalValues(e.NewValues)
	if err != nil {
		return fmt.Errorf("marshal new_values: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log (id, table_name, record_id, action, user_id, old_values, new_values, ts)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.TableName, e.RecordID, string(e.Action), e.UserID, oldJSON, newJSON, e.Timestamp)
	return err
}

func (s *AuditStore) List(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	query := `
		select id, table_name, record_id, action, user_id, old_values, new_values, ts
		from audit_log
		where 1=1`
	var args []any
	idx := 1
	if f.UserID != "" {
		query += fmt.Sprintf(" and user_id = $%d", idx)
		args = append(args, f.UserID)
		idx++
	}
	if f.Start != nil {
		query += fmt.Sprintf(" and ts >= $%d", idx)
		args = append(args, *f.Start)
		idx++
	}
	if f.End != nil {
		query += fmt.Sprintf(" and ts <= $%d", idx)
		args = append(args, *f.End)
		idx++
	}
	query += fmt.Sprintf(" order by ts desc, id desc limit $%d", idx)
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e      audit.Entry
			action string
			rawOld []byte
			rawNew []byte
		)
		if err := rows.Scan(&e.ID, &e.TableName, &e.RecordID, &action, &e.UserID, &rawOld, &rawNew, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Action = audit.Action(action)
		if e.OldValues, err = unmarshalValues(rawOld); err != nil {
			return nil, err
		}
		if e.NewValues, err = unmarshalValues(rawNew); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func marshalValues(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalValues(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
