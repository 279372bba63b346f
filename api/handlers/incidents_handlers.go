package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"civicwatch/config"
	"civicwatch/core/incidents"
	"civicwatch/core/routing"
	"civicwatch/core/store"
	"civicwatch/core/utils"
)

type IncidentsHandler struct {
	cfg    *config.AppConfig
	svc    *incidents.Service
	engine *routing.Engine
	logger *utils.Logger
}

func NewIncidentsHandler(cfg *config.AppConfig, svc *incidents.Service, engine *routing.Engine, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{cfg: cfg, svc: svc, engine: engine, logger: logger}
}

type incidentView struct {
	store.Incident
	Overdue bool `json:"overdue"`
}

func (h *IncidentsHandler) view(incident store.Incident) incidentView {
	return incidentView{Incident: incident, Overdue: h.engine.IsOverdue(&incident, utils.NowUTC())}
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in incidents.CreateIncidentInput
	if !decodeJSON(w, r, &in) {
		return
	}
	incident, err := h.svc.CreateIncident(r.Context(), requestToken(r), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":  true,
		"message":  "incident reported",
		"incident": h.view(*incident),
	})
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.IncidentFilter{
		Search:       strings.TrimSpace(q.Get("search")),
		Status:       strings.TrimSpace(q.Get("status")),
		Category:     strings.TrimSpace(q.Get("category")),
		Priority:     strings.TrimSpace(q.Get("priority")),
		DepartmentID: strings.TrimSpace(q.Get("department_id")),
	}
	if q.Get("open") == "true" {
		filter.NonTerminal = true
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}
	items, err := h.svc.ListIncidents(r.Context(), requestToken(r), filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	views := make([]incidentView, 0, len(items))
	for _, incident := range items {
		views = append(views, h.view(incident))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": views, "count": len(views)})
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetIncident(r.Context(), requestToken(r), urlParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"incident":    h.view(detail.Incident),
		"notes":       detail.Notes,
		"escalations": detail.Escalations,
	})
}

func (h *IncidentsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status     string `json:"status"`
		Resolution string `json:"resolution"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	incident, err := h.svc.UpdateIncidentStatus(r.Context(), requestToken(r), urlParam(r, "id"), in.Status, in.Resolution)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "status updated",
		"incident": h.view(*incident),
	})
}

func (h *IncidentsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Responder    string `json:"responder"`
		DepartmentID string `json:"department_id"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	incident, err := h.svc.AssignResponder(r.Context(), requestToken(r), urlParam(r, "id"), in.Responder, in.DepartmentID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "responder assigned",
		"incident": h.view(*incident),
	})
}

func (h *IncidentsHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Priority string `json:"priority"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	incident, err := h.svc.SetPriority(r.Context(), requestToken(r), urlParam(r, "id"), in.Priority)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "priority updated",
		"incident": h.view(*incident),
	})
}

func (h *IncidentsHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Note string `json:"note"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	note, err := h.svc.AddInvestigationNote(r.Context(), requestToken(r), urlParam(r, "id"), in.Note)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "note added",
		"note":    note,
	})
}
