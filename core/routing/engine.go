package routing

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"civicwatch/config"
	"civicwatch/core/incidents"
	"civicwatch/core/store"
	"civicwatch/core/utils"
)

// Engine computes routing and escalation decisions. It never mutates an
// incident outside the store's conditional-write discipline.
type Engine struct {
	incidents   store.IncidentsStore
	departments store.DepartmentsStore
	cfg         *config.AppConfig
	logger      *utils.Logger
}

func NewEngine(incidentsStore store.IncidentsStore, departments store.DepartmentsStore, cfg *config.AppConfig, logger *utils.Logger) *Engine {
	return &Engine{incidents: incidentsStore, departments: departments, cfg: cfg, logger: logger}
}

// RouteIncident picks the department for the incident's category. The
// lowest rule priority wins; ties resolve to the smallest rule id, so
// the result is stable across runs. An empty id means unassigned.
func (e *Engine) RouteIncident(ctx context.Context, incident *store.Incident) (string, error) {
	rules, err := e.departments.ListRulesForType(ctx, incident.Category)
	if err != nil {
		return "", err
	}
	if len(rules) == 0 {
		return "", nil
	}
	// ListRulesForType orders by priority ASC, id ASC.
	return rules[0].DepartmentID, nil
}

// EvaluateEscalation fires at most the next unfired ladder step for a
// non-terminal incident. The incident's escalation level is the cursor:
// step N fires only once elapsed time in the current status exceeds the
// cumulative wait of steps 0..N. The update and the event record land
// in one conditional write, so re-evaluating with the same clock never
// double-fires, and a concurrent user transition simply wins.
func (e *Engine) EvaluateEscalation(ctx context.Context, incident *store.Incident, now time.Time) (*store.Escalation, error) {
	if incident == nil || incidents.IsTerminal(incident.Status) {
		return nil, nil
	}
	steps, err := e.ladderFor(ctx, incident.DepartmentID)
	if err != nil {
		return nil, err
	}
	cursor := incident.EscalationLevel
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(steps) {
		return nil, nil
	}
	cumulative := 0
	for i := 0; i <= cursor; i++ {
		cumulative += steps[i].WaitMinutes
	}
	if now.Sub(incident.StatusChangedAt) <= time.Duration(cumulative)*time.Minute {
		return nil, nil
	}
	step := steps[cursor]
	esc := &store.Escalation{
		ID:          uuid.Must(uuid.NewV4()).String(),
		IncidentID:  incident.ID,
		Reason:      step.Name,
		EscalatedBy: "system",
		EscalatedAt: now,
	}
	work := *incident
	work.EscalationLevel = cursor + 1
	if err := e.incidents.EscalateIncident(ctx, &work, esc, incident.Version); err != nil {
		return nil, err
	}
	*incident = work
	return esc, nil
}

// ladderFor returns the department's steps, falling back to the global
// ladder when the department has none of its own.
func (e *Engine) ladderFor(ctx context.Context, departmentID string) ([]store.EscalationStep, error) {
	if departmentID != "" {
		steps, err := e.departments.ListSteps(ctx, departmentID)
		if err != nil {
			return nil, err
		}
		if len(steps) > 0 {
			return steps, nil
		}
	}
	return e.departments.ListSteps(ctx, "")
}

// IsOverdue reports whether a still-reported incident has blown the
// response SLA. Read-only; callers decide what to do about it.
func (e *Engine) IsOverdue(incident *store.Incident, now time.Time) bool {
	if incident == nil || incident.Status != incidents.StatusReported {
		return false
	}
	sla := time.Duration(e.cfg.Incidents.SLAResponseMinutes) * time.Minute
	if sla <= 0 {
		return false
	}
	return now.Sub(incident.DateReported) > sla
}
