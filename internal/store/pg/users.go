package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"spendtrack.org/internal/auth"
	"spendtrack.org/internal/authz"
)

// UserStore persists user accounts.
type UserStore struct {
	db *sql.DB
}

var _ auth.Store = (*UserStore)(nil)

func (s *UserStore) Create(ctx context.Context, u auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, username, email, full_name, password_hash, role, active, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Username, u.Email, nullIfEmpty(u.FullName), u.PasswordHash, string(u.Role), u.Active, u.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, id string) (auth.User, error) {
	return s.findBy(ctx, `where id = $1`, id)
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (auth.User, error) {
	return s.findBy(ctx, `where username = $1`, username)
}

func (s *UserStore) findBy(ctx context.Context, where string, arg any) (auth.User, error) {
	var (
		u         auth.User
		role      string
		fullName  sql.NullString
		lastLogin sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, username, email, full_name, password_hash, role, active, created_at, last_login
		from users `+where, arg).
		Scan(&u.ID, &u.Username, &u.Email, &fullName, &u.PasswordHash, &role, &u.Active, &u.CreatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	u.FullName = fullName.String
	u.Role = authz.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return u, nil
}

func (s *UserStore) List(ctx context.Context) ([]auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, username, email, full_name, password_hash, role, active, created_at, last_login
		from users
		order by username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.User
	for rows.Next() {
		var (
			u         auth.User
			role      string
			fullName  sql.NullString
			lastLogin sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &fullName, &u.PasswordHash, &role, &u.Active, &u.CreatedAt, &lastLogin); err != nil {
			return nil, err
		}
		u.FullName = fullName.String
		u.Role = authz.Role(role)
		if lastLogin.Valid {
			t := lastLogin.Time
			u.LastLogin = &t
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *UserStore) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `update users set last_login = $1 where id = $2`, at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
