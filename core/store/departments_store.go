package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type Department struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Category       string    `json:"category,omitempty"`
	Province       string    `json:"province,omitempty"`
	District       string    `json:"district,omitempty"`
	IncidentTypes  []string  `json:"incident_types,omitempty"`
	ContactNumbers []string  `json:"contact_numbers,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int       `json:"version"`
}

// DepartmentRule maps an incident category to a department. When several
// rules match a category the lowest priority value wins.
type DepartmentRule struct {
	ID           string    `json:"id"`
	IncidentType string    `json:"incident_type"`
	DepartmentID string    `json:"department_id"`
	Priority     int       `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
}

// EscalationStep is one rung of the escalation ladder. An empty
// DepartmentID marks a global step.
type EscalationStep struct {
	ID           string    `json:"id"`
	DepartmentID string    `json:"department_id,omitempty"`
	Name         string    `json:"name"`
	WaitMinutes  int       `json:"wait_minutes"`
	Position     int       `json:"position"`
	CreatedAt    time.Time `json:"created_at"`
}

type DepartmentsStore interface {
	CreateDepartment(ctx context.Context, dept *Department) error
	UpdateDepartment(ctx context.Context, dept *Department, expectedVersion int) error
	DeleteDepartment(ctx context.Context, id string) error
	GetDepartment(ctx context.Context, id string) (*Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)

	CreateRule(ctx context.Context, rule *DepartmentRule) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]DepartmentRule, error)
	ListRulesForType(ctx context.Context, incidentType string) ([]DepartmentRule, error)

	CreateStep(ctx context.Context, step *EscalationStep) error
	DeleteStep(ctx context.Context, id string) error
	// ListSteps returns the department's ladder ordered by position; pass
	// an empty id for the global ladder.
	ListSteps(ctx context.Context, departmentID string) ([]EscalationStep, error)
}

type departmentsStore struct {
	db *sql.DB
}

func NewDepartmentsStore(db *sql.DB) DepartmentsStore {
	return &departmentsStore{db: db}
}

func (s *departmentsStore) CreateDepartment(ctx context.Context, dept *Department) error {
	now := time.Now().UTC()
	if dept.Version <= 0 {
		dept.Version = 1
	}
	dept.CreatedAt = now
	dept.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO departments(id, name, category, province, district, incident_types, contact_numbers, created_at, updated_at, version)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		dept.ID, dept.Name, dept.Category, dept.Province, dept.District,
		listToJSON(dept.IncidentTypes), listToJSON(dept.ContactNumbers), now, now, dept.Version)
	return err
}

func (s *departmentsStore) UpdateDepartment(ctx context.Context, dept *Department, expectedVersion int) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE departments SET name=?, category=?, province=?, district=?, incident_types=?, contact_numbers=?, updated_at=?, version=version+1
		WHERE id=? AND version=?`,
		dept.Name, dept.Category, dept.Province, dept.District,
		listToJSON(dept.IncidentTypes), listToJSON(dept.ContactNumbers), now, dept.ID, expectedVersion)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	dept.Version = expectedVersion + 1
	dept.UpdatedAt = now
	return nil
}

func (s *departmentsStore) DeleteDepartment(ctx context.Context, id string) error {
	// Incidents referencing the department keep the dangling id and
	// degrade to unassigned display; only routing rules are cleaned up.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM department_rules WHERE department_id=?`, id); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM escalation_steps WHERE department_id=?`, id); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM departments WHERE id=?`, id); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *departmentsStore) GetDepartment(ctx context.Context, id string) (*Department, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, province, district, incident_types, contact_numbers, created_at, updated_at, version
		FROM departments WHERE id=?`, id)
	var d Department
	var typesRaw, contactsRaw string
	if err := row.Scan(&d.ID, &d.Name, &d.Category, &d.Province, &d.District, &typesRaw, &contactsRaw, &d.CreatedAt, &d.UpdatedAt, &d.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	_ = json.Unmarshal([]byte(typesRaw), &d.IncidentTypes)
	_ = json.Unmarshal([]byte(contactsRaw), &d.ContactNumbers)
	return &d, nil
}

func (s *departmentsStore) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, province, district, incident_types, contact_numbers, created_at, updated_at, version
		FROM departments ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Department
	for rows.Next() {
		var d Department
		var typesRaw, contactsRaw string
		if err := rows.Scan(&d.ID, &d.Name, &d.Category, &d.Province, &d.District, &typesRaw, &contactsRaw, &d.CreatedAt, &d.UpdatedAt, &d.Version); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(typesRaw), &d.IncidentTypes)
		_ = json.Unmarshal([]byte(contactsRaw), &d.ContactNumbers)
		res = append(res, d)
	}
	return res, rows.Err()
}

func (s *departmentsStore) CreateRule(ctx context.Context, rule *DepartmentRule) error {
	now := time.Now().UTC()
	rule.CreatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO department_rules(id, incident_type, department_id, priority, created_at)
		VALUES(?,?,?,?,?)`,
		rule.ID, strings.TrimSpace(rule.IncidentType), rule.DepartmentID, rule.Priority, now)
	return err
}

func (s *departmentsStore) DeleteRule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM department_rules WHERE id=?`, id)
	return err
}

func (s *departmentsStore) ListRules(ctx context.Context) ([]DepartmentRule, error) {
	return s.queryRules(ctx, `
		SELECT id, incident_type, department_id, priority, created_at
		FROM department_rules ORDER BY incident_type ASC, priority ASC, id ASC`)
}

func (s *departmentsStore) ListRulesForType(ctx context.Context, incidentType string) ([]DepartmentRule, error) {
	return s.queryRules(ctx, `
		SELECT id, incident_type, department_id, priority, created_at
		FROM department_rules WHERE incident_type=? ORDER BY priority ASC, id ASC`, strings.TrimSpace(incidentType))
}

func (s *departmentsStore) queryRules(ctx context.Context, query string, args ...any) ([]DepartmentRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []DepartmentRule
	for rows.Next() {
		var r DepartmentRule
		if err := rows.Scan(&r.ID, &r.IncidentType, &r.DepartmentID, &r.Priority, &r.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *departmentsStore) CreateStep(ctx context.Context, step *EscalationStep) error {
	now := time.Now().UTC()
	step.CreatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalation_steps(id, department_id, name, wait_minutes, position, created_at)
		VALUES(?,?,?,?,?,?)`,
		step.ID, step.DepartmentID, strings.TrimSpace(step.Name), step.WaitMinutes, step.Position, now)
	return err
}

func (s *departmentsStore) DeleteStep(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM escalation_steps WHERE id=?`, id)
	return err
}

func (s *departmentsStore) ListSteps(ctx context.Context, departmentID string) ([]EscalationStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, department_id, name, wait_minutes, position, created_at
		FROM escalation_steps WHERE department_id=? ORDER BY position ASC, id ASC`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []EscalationStep
	for rows.Next() {
		var st EscalationStep
		if err := rows.Scan(&st.ID, &st.DepartmentID, &st.Name, &st.WaitMinutes, &st.Position, &st.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

func listToJSON(list []string) string {
	var clean []string
	for _, raw := range list {
		if val := strings.TrimSpace(raw); val != "" {
			clean = append(clean, val)
		}
	}
	if len(clean) == 0 {
		return "[]"
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return "[]"
	}
	return string(b)
}
