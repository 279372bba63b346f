package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofrs/uuid/v5"
)

type AuditEntry struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	TargetID  string    `json:"target_id,omitempty"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditStore is append-only; the core writes entries and never reads
// them back outside of the logs endpoint.
type AuditStore interface {
	Log(ctx context.Context, actor, action, targetID, details string) error
	ListRecent(ctx context.Context, limit int) ([]AuditEntry, error)
}

type auditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) AuditStore {
	return &auditStore{db: db}
}

func (s *auditStore) Log(ctx context.Context, actor, action, targetID, details string) error {
	id := uuid.Must(uuid.NewV4()).String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log(id, actor, action, target_id, details, created_at)
		VALUES(?,?,?,?,?,?)`,
		id, actor, action, targetID, details, time.Now().UTC())
	return err
}

func (s *auditStore) ListRecent(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, action, target_id, details, created_at
		FROM audit_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.TargetID, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
