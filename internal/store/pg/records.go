package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"spendtrack.org/internal/ownership"
	"spendtrack.org/internal/record"
)

// RecordStore persists owned records. The owner group column is written once
// at insert and never touched by Update.
type RecordStore struct {
	db *sql.DB
}

var _ record.Store = (*RecordStore)(nil)

func (s *RecordStore) Insert(ctx context.Context, r record.Record) error {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into records
			(record_type, id, parent_id, owner_group_id, created_by, updated_by, created_at, updated_at, fields)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, string(r.Type), r.ID, nullIfEmpty(r.ParentID), r.OwnerGroupID, r.CreatedBy,
		nullIfEmpty(r.UpdatedBy), r.CreatedAt, r.UpdatedAt, fields)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return ownership.ErrMissingParent
		}
		return err
	}
	return nil
}

func (s *RecordStore) Get(ctx context.Context, t ownership.RecordType, id string) (record.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		select record_type, id, parent_id, owner_group_id, created_by, updated_by, created_at, updated_at, fields
		from records
		where record_type = $1 and id = $2
	`, string(t), id)
	r, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, record.ErrNotFound
	}
	return r, err
}

func (s *RecordStore) ListByType(ctx context.Context, t ownership.RecordType) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		select record_type, id, parent_id, owner_group_id, created_by, updated_by, created_at, updated_at, fields
		from records
		where record_type = $1
		order by id
	`, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RecordStore) Update(ctx context.Context, r record.Record) error {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update records
		set fields = $1, updated_by = $2, updated_at = $3
		where record_type = $4 and id = $5
	`, fields, nullIfEmpty(r.UpdatedBy), r.UpdatedAt, string(r.Type), r.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return record.ErrNotFound
	}
	return nil
}

func (s *RecordStore) Delete(ctx context.Context, t ownership.RecordType, id string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from records where record_type = $1 and id = $2
	`, string(t), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return record.ErrNotFound
	}
	return nil
}

func scanRecord(scan func(...any) error) (record.Record, error) {
	var (
		r         record.Record
		rt        string
		parentID  sql.NullString
		updatedBy sql.NullString
		rawFields []byte
	)
	if err := scan(&rt, &r.ID, &parentID, &r.OwnerGroupID, &r.CreatedBy, &updatedBy, &r.CreatedAt, &r.UpdatedAt, &rawFields); err != nil {
		return record.Record{}, err
	}
	r.Type = ownership.RecordType(rt)
	r.ParentID = parentID.String
	r.UpdatedBy = updatedBy.String
	r.Fields = map[string]any{}
	if len(rawFields) > 0 {
		if err := json.Unmarshal(rawFields, &r.Fields); err != nil {
			return record.Record{}, fmt.Errorf("decode fields: %w", err)
		}
	}
	return r, nil
}
