package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofrs/uuid/v5"

	"civicwatch/core/identity"
	"civicwatch/core/store"
	"civicwatch/core/utils"
)

type DepartmentsHandler struct {
	departments store.DepartmentsStore
	audits      store.AuditStore
	logger      *utils.Logger
}

func NewDepartmentsHandler(departments store.DepartmentsStore, audits store.AuditStore, logger *utils.Logger) *DepartmentsHandler {
	return &DepartmentsHandler{departments: departments, audits: audits, logger: logger}
}

func (h *DepartmentsHandler) actor(r *http.Request) string {
	if p, ok := identity.PrincipalFrom(r.Context()); ok {
		return p.ID
	}
	return ""
}

type departmentInput struct {
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Province       string   `json:"province"`
	District       string   `json:"district"`
	IncidentTypes  []string `json:"incident_types"`
	ContactNumbers []string `json:"contact_numbers"`
	Version        int      `json:"version"`
}

func (h *DepartmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.departments.ListDepartments(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}

func (h *DepartmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	dept, err := h.departments.GetDepartment(r.Context(), urlParam(r, "id"))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if dept == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, dept)
}

func (h *DepartmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in departmentInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	dept := &store.Department{
		ID:             uuid.Must(uuid.NewV4()).String(),
		Name:           strings.TrimSpace(in.Name),
		Category:       strings.TrimSpace(in.Category),
		Province:       strings.TrimSpace(in.Province),
		District:       strings.TrimSpace(in.District),
		IncidentTypes:  in.IncidentTypes,
		ContactNumbers: in.ContactNumbers,
	}
	if err := h.departments.CreateDepartment(r.Context(), dept); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Log(r.Context(), h.actor(r), "departments.create", dept.ID, dept.Name)
	writeJSON(w, http.StatusCreated, dept)
}

func (h *DepartmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in departmentInput
	if !decodeJSON(w, r, &in) {
		return
	}
	dept, err := h.departments.GetDepartment(r.Context(), urlParam(r, "id"))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if dept == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	expected := in.Version
	if expected <= 0 {
		expected = dept.Version
	}
	if strings.TrimSpace(in.Name) != "" {
		dept.Name = strings.TrimSpace(in.Name)
	}
	dept.Category = strings.TrimSpace(in.Category)
	dept.Province = strings.TrimSpace(in.Province)
	dept.District = strings.TrimSpace(in.District)
	if in.IncidentTypes != nil {
		dept.IncidentTypes = in.IncidentTypes
	}
	if in.ContactNumbers != nil {
		dept.ContactNumbers = in.ContactNumbers
	}
	if err := h.departments.UpdateDepartment(r.Context(), dept, expected); err != nil {
		if errors.Is(err, store.ErrConflict) {
			http.Error(w, "conflict", http.StatusConflict)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Log(r.Context(), h.actor(r), "departments.update", dept.ID, dept.Name)
	writeJSON(w, http.StatusOK, dept)
}

func (h *DepartmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.departments.DeleteDepartment(r.Context(), id); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Log(r.Context(), h.actor(r), "departments.delete", id, "")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *DepartmentsHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.departments.ListRules(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": rules, "count": len(rules)})
}

func (h *DepartmentsHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IncidentType string `json:"incident_type"`
		DepartmentID string `json:"department_id"`
		Priority     int    `json:"priority"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.IncidentType) == "" || strings.TrimSpace(in.DepartmentID) == "" {
		http.Error(w, "incident_type and department_id required", http.StatusBadRequest)
		return
	}
	rule := &store.DepartmentRule{
		ID:           uuid.Must(uuid.NewV4()).String(),
		IncidentType: strings.TrimSpace(in.IncidentType),
		DepartmentID: strings.TrimSpace(in.DepartmentID),
		Priority:     in.Priority,
	}
	if err := h.departments.CreateRule(r.Context(), rule); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Log(r.Context(), h.actor(r), "departments.rule_create", rule.ID, rule.IncidentType)
	writeJSON(w, http.StatusCreated, rule)
}

func (h *DepartmentsHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "rule_id")
	if err := h.departments.DeleteRule(r.Context(), id); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Log(r.Context(), h.actor(r), "departments.rule_delete", id, "")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *DepartmentsHandler) ListSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := h.departments.ListSteps(r.Context(), strings.TrimSpace(r.URL.Query().Get("department_id")))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": steps, "count": len(steps)})
}

func (h *DepartmentsHandler) CreateStep(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DepartmentID string `json:"department_id"`
		Name         string `json:"name"`
		WaitMinutes  int    `json:"wait_minutes"`
		Position     int    `json:"position"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Name) == "" || in.WaitMinutes <= 0 {
		http.Error(w, "name and positive wait_minutes required", http.StatusBadRequest)
		return
	}
	step := &store.EscalationStep{
		ID:           uuid.Must(uuid.NewV4()).String(),
		DepartmentID: strings.TrimSpace(in.DepartmentID),
		Name:         strings.TrimSpace(in.Name),
		WaitMinutes:  in.WaitMinutes,
		Position:     in.Position,
	}
	if err := h.departments.CreateStep(r.Context(), step); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Log(r.Context(), h.actor(r), "departments.step_create", step.ID, step.Name)
	writeJSON(w, http.StatusCreated, step)
}

func (h *DepartmentsHandler) DeleteStep(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "step_id")
	if err := h.departments.DeleteStep(r.Context(), id); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Log(r.Context(), h.actor(r), "departments.step_delete", id, "")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
