package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConflict is returned by conditional writes when the record changed
// since it was read (version mismatch).
var ErrConflict = errors.New("conflict")

type Incident struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Category          string     `json:"category"`
	Priority          string     `json:"priority"`
	Status            string     `json:"status"`
	DepartmentID      string     `json:"department_id,omitempty"`
	AssignedTo        string     `json:"assigned_to,omitempty"`
	ReporterUserID    string     `json:"reporter_user_id,omitempty"`
	ReporterAnonymous bool       `json:"reporter_anonymous"`
	Resolution        string     `json:"resolution,omitempty"`
	DateReported      time.Time  `json:"date_reported"`
	DateVerified      *time.Time `json:"date_verified,omitempty"`
	DateDispatched    *time.Time `json:"date_dispatched,omitempty"`
	DateResolved      *time.Time `json:"date_resolved,omitempty"`
	StatusChangedAt   time.Time  `json:"status_changed_at"`
	EscalationLevel   int        `json:"escalation_level"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Version           int        `json:"version"`
}

type InvestigationNote struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	Note       string    `json:"note"`
	AuthorID   string    `json:"author_id,omitempty"`
	AuthorName string    `json:"author_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Escalation struct {
	ID          string    `json:"id"`
	IncidentID  string    `json:"incident_id"`
	Reason      string    `json:"reason"`
	EscalatedBy string    `json:"escalated_by,omitempty"`
	EscalatedAt time.Time `json:"escalated_at"`
}

type IncidentFilter struct {
	Search         string
	Status         string
	StatusIn       []string
	Category       string
	Priority       string
	DepartmentID   string
	ReporterUserID string
	NonTerminal    bool
	Limit          int
	Offset         int
}

type IncidentsStore interface {
	CreateIncident(ctx context.Context, incident *Incident) error
	// UpdateIncident writes the incident back only when the stored version
	// still equals expectedVersion; otherwise ErrConflict.
	UpdateIncident(ctx context.Context, incident *Incident, expectedVersion int) error
	// EscalateIncident applies the incident update and records the
	// escalation event in one transaction, under the same version check.
	EscalateIncident(ctx context.Context, incident *Incident, esc *Escalation, expectedVersion int) error
	GetIncident(ctx context.Context, id string) (*Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error)

	AddNote(ctx context.Context, note *InvestigationNote) error
	ListNotes(ctx context.Context, incidentID string) ([]InvestigationNote, error)
	ListEscalations(ctx context.Context, incidentID string) ([]Escalation, error)
}

type incidentsStore struct {
	db *sql.DB
}

func NewIncidentsStore(db *sql.DB) IncidentsStore {
	return &incidentsStore{db: db}
}

const incidentColumns = `id, title, description, category, priority, status, department_id, assigned_to, reporter_user_id, reporter_anonymous, resolution, date_reported, date_verified, date_dispatched, date_resolved, status_changed_at, escalation_level, created_at, updated_at, version`

func (s *incidentsStore) CreateIncident(ctx context.Context, incident *Incident) error {
	now := time.Now().UTC()
	if incident.Version <= 0 {
		incident.Version = 1
	}
	if incident.DateReported.IsZero() {
		incident.DateReported = now
	}
	if incident.StatusChangedAt.IsZero() {
		incident.StatusChangedAt = incident.DateReported
	}
	incident.CreatedAt = now
	incident.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents(`+incidentColumns+`)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		incident.ID, incident.Title, incident.Description, incident.Category, incident.Priority, incident.Status,
		incident.DepartmentID, incident.AssignedTo, incident.ReporterUserID, boolToInt(incident.ReporterAnonymous),
		incident.Resolution, incident.DateReported, nullableTime(incident.DateVerified), nullableTime(incident.DateDispatched),
		nullableTime(incident.DateResolved), incident.StatusChangedAt, incident.EscalationLevel,
		incident.CreatedAt, incident.UpdatedAt, incident.Version)
	return err
}

func (s *incidentsStore) UpdateIncident(ctx context.Context, incident *Incident, expectedVersion int) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, incidentUpdateSQL,
		incidentUpdateArgs(incident, now, expectedVersion)...)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	incident.Version = expectedVersion + 1
	incident.UpdatedAt = now
	return nil
}

const incidentUpdateSQL = `
	UPDATE incidents SET title=?, description=?, category=?, priority=?, status=?, department_id=?, assigned_to=?,
		resolution=?, date_verified=?, date_dispatched=?, date_resolved=?, status_changed_at=?, escalation_level=?,
		updated_at=?, version=version+1
	WHERE id=? AND version=?`

func incidentUpdateArgs(incident *Incident, now time.Time, expectedVersion int) []any {
	return []any{
		incident.Title, incident.Description, incident.Category, incident.Priority, incident.Status,
		incident.DepartmentID, incident.AssignedTo, incident.Resolution,
		nullableTime(incident.DateVerified), nullableTime(incident.DateDispatched), nullableTime(incident.DateResolved),
		incident.StatusChangedAt, incident.EscalationLevel, now,
		incident.ID, expectedVersion,
	}
}

func (s *incidentsStore) EscalateIncident(ctx context.Context, incident *Incident, esc *Escalation, expectedVersion int) error {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, incidentUpdateSQL, incidentUpdateArgs(incident, now, expectedVersion)...)
	if err != nil {
		tx.Rollback()
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return ErrConflict
	}
	if esc.EscalatedAt.IsZero() {
		esc.EscalatedAt = now
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO incident_escalations(id, incident_id, reason, escalated_by, escalated_at)
		VALUES(?,?,?,?,?)`,
		esc.ID, esc.IncidentID, esc.Reason, esc.EscalatedBy, esc.EscalatedAt.UTC()); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	incident.Version = expectedVersion + 1
	incident.UpdatedAt = now
	return nil
}

func (s *incidentsStore) GetIncident(ctx context.Context, id string) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id=?`, id)
	return scanIncident(row)
}

func (s *incidentsStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error) {
	var clauses []string
	var args []any
	if filter.NonTerminal {
		clauses = append(clauses, "status NOT IN ('resolved','rejected')")
	}
	if len(filter.StatusIn) > 0 {
		var in []string
		for _, raw := range filter.StatusIn {
			if strings.TrimSpace(raw) != "" {
				in = append(in, strings.TrimSpace(raw))
			}
		}
		if len(in) > 0 {
			placeholders := strings.TrimRight(strings.Repeat("?,", len(in)), ",")
			clauses = append(clauses, fmt.Sprintf("status IN (%s)", placeholders))
			for _, val := range in {
				args = append(args, val)
			}
		}
	} else if filter.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, filter.Category)
	}
	if filter.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, filter.Priority)
	}
	if filter.DepartmentID != "" {
		clauses = append(clauses, "department_id=?")
		args = append(args, filter.DepartmentID)
	}
	if filter.ReporterUserID != "" {
		clauses = append(clauses, "reporter_user_id=?")
		args = append(args, filter.ReporterUserID)
	}
	if filter.Search != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ?)")
		q := "%" + filter.Search + "%"
		args = append(args, q, q)
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date_reported DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		incident, err := scanIncidentRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, incident)
	}
	return res, rows.Err()
}

func (s *incidentsStore) AddNote(ctx context.Context, note *InvestigationNote) error {
	now := time.Now().UTC()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_notes(id, incident_id, note, author_id, author_name, created_at)
		VALUES(?,?,?,?,?,?)`,
		note.ID, note.IncidentID, note.Note, note.AuthorID, note.AuthorName, note.CreatedAt.UTC())
	return err
}

func (s *incidentsStore) ListNotes(ctx context.Context, incidentID string) ([]InvestigationNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, note, author_id, author_name, created_at
		FROM incident_notes WHERE incident_id=? ORDER BY created_at ASC, id ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []InvestigationNote
	for rows.Next() {
		var n InvestigationNote
		if err := rows.Scan(&n.ID, &n.IncidentID, &n.Note, &n.AuthorID, &n.AuthorName, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (s *incidentsStore) ListEscalations(ctx context.Context, incidentID string) ([]Escalation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, reason, escalated_by, escalated_at
		FROM incident_escalations WHERE incident_id=? ORDER BY escalated_at ASC, id ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Escalation
	for rows.Next() {
		var e Escalation
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.Reason, &e.EscalatedBy, &e.EscalatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func scanIncident(row *sql.Row) (*Incident, error) {
	var inc Incident
	var anon int
	var verified, dispatched, resolved sql.NullTime
	if err := row.Scan(&inc.ID, &inc.Title, &inc.Description, &inc.Category, &inc.Priority, &inc.Status,
		&inc.DepartmentID, &inc.AssignedTo, &inc.ReporterUserID, &anon, &inc.Resolution,
		&inc.DateReported, &verified, &dispatched, &resolved, &inc.StatusChangedAt, &inc.EscalationLevel,
		&inc.CreatedAt, &inc.UpdatedAt, &inc.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	fillIncidentNullables(&inc, anon, verified, dispatched, resolved)
	return &inc, nil
}

func scanIncidentRow(rows *sql.Rows) (Incident, error) {
	var inc Incident
	var anon int
	var verified, dispatched, resolved sql.NullTime
	if err := rows.Scan(&inc.ID, &inc.Title, &inc.Description, &inc.Category, &inc.Priority, &inc.Status,
		&inc.DepartmentID, &inc.AssignedTo, &inc.ReporterUserID, &anon, &inc.Resolution,
		&inc.DateReported, &verified, &dispatched, &resolved, &inc.StatusChangedAt, &inc.EscalationLevel,
		&inc.CreatedAt, &inc.UpdatedAt, &inc.Version); err != nil {
		return inc, err
	}
	fillIncidentNullables(&inc, anon, verified, dispatched, resolved)
	return inc, nil
}

func fillIncidentNullables(inc *Incident, anon int, verified, dispatched, resolved sql.NullTime) {
	inc.ReporterAnonymous = anon == 1
	if verified.Valid {
		inc.DateVerified = &verified.Time
	}
	if dispatched.Valid {
		inc.DateDispatched = &dispatched.Time
	}
	if resolved.Valid {
		inc.DateResolved = &resolved.Time
	}
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
