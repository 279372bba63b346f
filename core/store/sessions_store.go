package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type SessionRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Role         string    `json:"role"`
	DepartmentID string    `json:"department_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type SessionStore interface {
	SaveSession(ctx context.Context, rec *SessionRecord) error
	// GetSession returns nil for unknown or expired sessions.
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	UpdateActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionsStore struct {
	db *sql.DB
}

func NewSessionsStore(db *sql.DB) SessionStore {
	return &sessionsStore{db: db}
}

func (s *sessionsStore) SaveSession(ctx context.Context, rec *SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(id, user_id, role, department_id, created_at, last_seen_at, expires_at)
		VALUES(?,?,?,?,?,?,?)`,
		rec.ID, rec.UserID, rec.Role, rec.DepartmentID, rec.CreatedAt.UTC(), rec.LastSeenAt.UTC(), rec.ExpiresAt.UTC())
	return err
}

func (s *sessionsStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, role, department_id, created_at, last_seen_at, expires_at
		FROM sessions WHERE id=?`, id)
	var rec SessionRecord
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Role, &rec.DepartmentID, &rec.CreatedAt, &rec.LastSeenAt, &rec.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !rec.ExpiresAt.After(time.Now().UTC()) {
		return nil, nil
	}
	return &rec, nil
}

func (s *sessionsStore) UpdateActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at=?, expires_at=? WHERE id=?`,
		now.UTC(), now.UTC().Add(ttl), id)
	return err
}

func (s *sessionsStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	return err
}

func (s *sessionsStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
