package pg

import (
	"context"
	"database/sql"
	"errors"

	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/grant"
	"spendtrack.org/internal/ownership"
)

// GrantStore persists record access grants.
type GrantStore struct {
	db *sql.DB
}

var _ grant.Store = (*GrantStore)(nil)

func (s *GrantStore) Insert(ctx context.Context, g grant.Grant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into record_access_grants
			(id, record_type, record_id, user_id, group_id, access_level, granted_by, granted_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, g.ID, string(g.RecordType), g.RecordID, nullIfEmpty(g.UserID), nullIfEmpty(g.GroupID),
		string(g.Level), g.GrantedBy, g.GrantedAt, nullIfZeroTime(g.ExpiresAt))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return grant.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *GrantStore) Get(ctx context.Context, id string) (grant.Grant, error) {
	var (
		g         grant.Grant
		rt, level string
		userID    sql.NullString
		groupID   sql.NullString
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, record_type, record_id, user_id, group_id, access_level, granted_by, granted_at, expires_at
		from record_access_grants
		where id = $1
	`, id).Scan(&g.ID, &rt, &g.RecordID, &userID, &groupID, &level, &g.GrantedBy, &g.GrantedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return grant.Grant{}, grant.ErrNotFound
	}
	if err != nil {
		return grant.Grant{}, err
	}
	g.RecordType = ownership.RecordType(rt)
	g.Level = authz.AccessLevel(level)
	g.UserID = userID.String
	g.GroupID = groupID.String
	if expiresAt.Valid {
		t := expiresAt.Time
		g.ExpiresAt = &t
	}
	return g, nil
}

func (s *GrantStore) ListFor(ctx context.Context, recordType ownership.RecordType, recordID string) ([]grant.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, record_type, record_id, user_id, group_id, access_level, granted_by, granted_at, expires_at
		from record_access_grants
		where record_type = $1 and record_id = $2
		order by granted_at, id
	`, string(recordType), recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grant.Grant
	for rows.Next() {
		var (
			g         grant.Grant
			rt, level string
			userID    sql.NullString
			groupID   sql.NullString
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&g.ID, &rt, &g.RecordID, &userID, &groupID, &level, &g.GrantedBy, &g.GrantedAt, &expiresAt); err != nil {
			return nil, err
		}
		g.RecordType = ownership.RecordType(rt)
		g.Level = authz.AccessLevel(level)
		g.UserID = userID.String
		g.GroupID = groupID.String
		if expiresAt.Valid {
			t := expiresAt.Time
			g.ExpiresAt = &t
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete is a no-op success when the grant is already gone: revoke must stay
// idempotent under concurrent calls.
func (s *GrantStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from record_access_grants where id = $1`, id)
	return err
}
