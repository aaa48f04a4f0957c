package pg

import (
	"context"
	"database/sql"
	"errors"

	"spendtrack.org/internal/group"
)

// GroupStore persists user groups and their flat memberships.
type GroupStore struct {
	db *sql.DB
}

var _ group.Store = (*GroupStore)(nil)

func (s *GroupStore) Create(ctx context.Context, g group.Group) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_groups (id, name, description, created_by, created_at)
		values ($1, $2, $3, $4, $5)
	`, g.ID, g.Name, nullIfEmpty(g.Description), g.CreatedBy, g.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return group.ErrConflict
		}
		return err
	}
	return nil
}

func (s *GroupStore) Get(ctx context.Context, id string) (group.Group, error) {
	var (
		g    group.Group
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_by, created_at
		from user_groups
		where id = $1
	`, id).Scan(&g.ID, &g.Name, &desc, &g.CreatedBy, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return group.Group{}, group.ErrNotFound
	}
	if err != nil {
		return group.Group{}, err
	}
	g.Description = desc.String
	return g, nil
}

func (s *GroupStore) List(ctx context.Context) ([]group.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_by, created_at
		from user_groups
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []group.Group
	for rows.Next() {
		var (
			g    group.Group
			desc sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.Name, &desc, &g.CreatedBy, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.Description = desc.String
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GroupStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from user_groups where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return group.ErrNotFound
	}
	return nil
}

func (s *GroupStore) AddMember(ctx context.Context, m group.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_group_members (group_id, user_id, added_by, added_at)
		values ($1, $2, $3, $4)
	`, m.GroupID, m.UserID, m.AddedBy, m.AddedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return group.ErrConflict
			case pgErrForeignKeyViolation:
				return group.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *GroupStore) RemoveMember(ctx context.Context, groupID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_group_members where group_id = $1 and user_id = $2
	`, groupID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return group.ErrNotFound
	}
	return nil
}

func (s *GroupStore) Members(ctx context.Context, groupID string) ([]group.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select group_id, user_id, added_by, added_at
		from user_group_members
		where group_id = $1
		order by user_id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []group.Membership
	for rows.Next() {
		var m group.Membership
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.AddedBy, &m.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GroupStore) GroupsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select group_id from user_group_members where user_id = $1 order by group_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
