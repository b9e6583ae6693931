package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

type userRow struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	Email        string `db:"email"`
	DisplayName  string `db:"display_name"`
	Role         string `db:"role"`
	Active       int    `db:"active"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    int64  `db:"created_at"`
	LastLoginAt  int64  `db:"last_login_at"`
}

const userCols = `id, username, email, display_name, role, active, password_hash, created_at, last_login_at`

func toRow(u User) userRow {
	r := userRow{
		ID: u.ID, Username: u.Username, Email: u.Email, DisplayName: u.DisplayName, Role: string(u.Role),
		PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt, LastLoginAt: u.LastLoginAt,
	}
	if u.Active {
		r.Active = 1
	}
	return r
}

func (r userRow) user() User {
	return User{
		ID: r.ID, Username: r.Username, Email: r.Email, DisplayName: r.DisplayName, Role: Role(r.Role),
		Active: r.Active != 0, PasswordHash: r.PasswordHash, CreatedAt: r.CreatedAt, LastLoginAt: r.LastLoginAt,
	}
}

const insertUser = `INSERT INTO users (` + userCols + `)
	VALUES (:id, :username, :email, :display_name, :role, :active, :password_hash, :created_at, :last_login_at)`

const updateUser = `UPDATE users SET username=:username, email=:email, display_name=:display_name,
	role=:role, active=:active WHERE id=:id`

type namedExecer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	Rebind(query string) string
}

func create(ctx context.Context, x namedExecer, u User) error {
	var n int
	if err := x.GetContext(ctx, &n, x.Rebind(`SELECT COUNT(*) FROM users WHERE id=? OR username=?`), u.ID, u.Username); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", ErrExists, u.Username)
	}
	_, err := x.NamedExecContext(ctx, insertUser, toRow(u))
	return err
}

func update(ctx context.Context, x namedExecer, u User) error {
	res, err := x.NamedExecContext(ctx, updateUser, toRow(u))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Create(ctx context.Context, u User) error { return create(ctx, s.db, u) }

func (s *SQLStore) Update(ctx context.Context, u User) error { return update(ctx, s.db, u) }

func (s *SQLStore) Apply(ctx context.Context, creates, updates []User) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, u := range updates {
		if err := update(ctx, tx, u); err != nil {
			return err
		}
		if u.PasswordHash != "" {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET password_hash=? WHERE id=?`), u.PasswordHash, u.ID); err != nil {
				return err
			}
		}
	}
	for _, u := range creates {
		if err := create(ctx, tx, u); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Get(ctx context.Context, idOrUsername string) (User, error) {
	var r userRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+userCols+` FROM users WHERE id=? OR username=?`), idOrUsername, idOrUsername)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return r.user(), nil
}

func (s *SQLStore) List(ctx context.Context, o ListOpts) ([]User, int, error) {
	o = o.Clamp()
	var where []string
	var args []any
	if o.Role != "" {
		where = append(where, "role=?")
		args = append(args, string(o.Role))
	}
	if o.Active != nil {
		where = append(where, "active=?")
		if *o.Active {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	if o.Q != "" {
		like := "%" + strings.ToLower(o.Q) + "%"
		where = append(where, "(LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?)")
		args = append(args, like, like, like)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM users`+cond), args...); err != nil {
		return nil, 0, err
	}
	var rows []userRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT `+userCols+` FROM users`+cond+
		` ORDER BY username LIMIT ? OFFSET ?`), append(args, o.Limit, o.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.user())
	}
	return out, total, nil
}

func (s *SQLStore) Active(ctx context.Context) ([]User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+userCols+` FROM users WHERE active=1 ORDER BY username`); err != nil {
		return nil, err
	}
	out := make([]User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.user())
	}
	return out, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM users WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) SetPassword(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET password_hash=? WHERE id=?`), hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) TouchLogin(ctx context.Context, id string, at int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET last_login_at=? WHERE id=?`), at, id)
	return err
}

func (s *SQLStore) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM users WHERE role=? AND active=1`), string(RoleAdmin))
	return n, err
}

func (s *SQLStore) CountByRole(ctx context.Context) (map[Role]int, error) {
	var rows []struct {
		Role string `db:"role"`
		N    int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT role, COUNT(*) AS n FROM users GROUP BY role`); err != nil {
		return nil, err
	}
	out := map[Role]int{}
	for _, r := range rows {
		out[Role(r.Role)] = r.N
	}
	return out, nil
}
