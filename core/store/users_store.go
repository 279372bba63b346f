package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name,omitempty"`
	PasswordHash string    `json:"-"`
	Salt         string    `json:"-"`
	Role         string    `json:"role"`
	DepartmentID string    `json:"department_id,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type UsersStore interface {
	Create(ctx context.Context, user *User) error
	Get(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	SetActive(ctx context.Context, id string, active bool) error
}

type usersStore struct {
	db *sql.DB
}

func NewUsersStore(db *sql.DB) UsersStore {
	return &usersStore{db: db}
}

func (s *usersStore) Create(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users(id, username, full_name, password_hash, salt, role, department_id, active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		user.ID, strings.ToLower(strings.TrimSpace(user.Username)), user.FullName, user.PasswordHash, user.Salt,
		user.Role, user.DepartmentID, boolToInt(user.Active), now, now)
	return err
}

func (s *usersStore) Get(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, password_hash, salt, role, department_id, active, created_at, updated_at
		FROM users WHERE id=?`, id)
	return scanUser(row)
}

func (s *usersStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, password_hash, salt, role, department_id, active, created_at, updated_at
		FROM users WHERE username=?`, strings.ToLower(strings.TrimSpace(username)))
	return scanUser(row)
}

func (s *usersStore) SetActive(ctx context.Context, id string, active bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET active=?, updated_at=? WHERE id=?`,
		boolToInt(active), time.Now().UTC(), id)
	return err
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var active int
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.PasswordHash, &u.Salt, &u.Role, &u.DepartmentID, &active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Active = active == 1
	return &u, nil
}
