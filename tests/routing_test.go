package tests

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"civicwatch/core/incidents"
	"civicwatch/core/store"
)

func TestRouteIncidentMinPriorityWins(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	sewer := e.createDepartment(t, "Sewerage")
	water := e.createDepartment(t, "Water Board")
	general := e.createDepartment(t, "General Services")
	e.createRule(t, "water", general, 9)
	e.createRule(t, "water", water, 1)
	e.createRule(t, "water", sewer, 5)

	incident := &store.Incident{Category: "water"}
	for i := 0; i < 5; i++ {
		got, err := e.engine.RouteIncident(ctx, incident)
		if err != nil {
			t.Fatalf("route: %v", err)
		}
		if got != water {
			t.Fatalf("run %d: routed to %s, want lowest-priority department %s", i, got, water)
		}
	}
}

func TestRouteIncidentTieBreaksStable(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	a := e.createDepartment(t, "Unit A")
	b := e.createDepartment(t, "Unit B")
	e.createRule(t, "noise", a, 3)
	e.createRule(t, "noise", b, 3)

	first, err := e.engine.RouteIncident(ctx, &store.Incident{Category: "noise"})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := e.engine.RouteIncident(ctx, &store.Incident{Category: "noise"})
		if err != nil {
			t.Fatalf("route: %v", err)
		}
		if got != first {
			t.Fatalf("tie-break not stable: %s then %s", first, got)
		}
	}
}

func TestRouteIncidentNoMatch(t *testing.T) {
	e := setupEnv(t)
	got, err := e.engine.RouteIncident(context.Background(), &store.Incident{Category: "unmapped"})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if got != "" {
		t.Fatalf("unmatched category routed to %q", got)
	}
}

// seedAgedIncident inserts an incident whose current status is already
// minutesAgo old.
func seedAgedIncident(t *testing.T, e *env, departmentID string, minutesAgo int) *store.Incident {
	t.Helper()
	past := time.Now().UTC().Add(-time.Duration(minutesAgo) * time.Minute)
	incident := &store.Incident{
		ID:              uuid.Must(uuid.NewV4()).String(),
		Title:           "aged incident",
		Category:        "water",
		Priority:        incidents.PriorityMedium,
		Status:          incidents.StatusReported,
		DepartmentID:    departmentID,
		DateReported:    past,
		StatusChangedAt: past,
	}
	if err := e.incidents.CreateIncident(context.Background(), incident); err != nil {
		t.Fatalf("seed incident: %v", err)
	}
	return incident
}

func TestEvaluateEscalationWalksLadderIdempotently(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	deptID := e.createDepartment(t, "Water Board")
	e.createStep(t, deptID, "notify supervisor", 30, 1)
	e.createStep(t, deptID, "notify director", 60, 2)

	incident := seedAgedIncident(t, e, deptID, 45)
	now := time.Now().UTC()

	// 45 minutes elapsed: step one (30m cumulative) fires.
	esc, err := e.engine.EvaluateEscalation(ctx, incident, now)
	if err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	if esc == nil || esc.Reason != "notify supervisor" {
		t.Fatalf("first evaluation = %+v, want supervisor step", esc)
	}
	if incident.EscalationLevel != 1 {
		t.Fatalf("cursor = %d, want 1", incident.EscalationLevel)
	}

	// Same clock again: step two needs 90m cumulative, nothing fires.
	again, err := e.engine.EvaluateEscalation(ctx, incident, now)
	if err != nil {
		t.Fatalf("second evaluation: %v", err)
	}
	if again != nil {
		t.Fatalf("second evaluation fired %+v, want idempotent nil", again)
	}
	events, err := e.incidents.ListEscalations(ctx, incident.ID)
	if err != nil {
		t.Fatalf("list escalations: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("escalation events = %d, want exactly 1", len(events))
	}

	// Past the full ladder: the second step fires, then the ladder ends.
	later := now.Add(60 * time.Minute)
	esc2, err := e.engine.EvaluateEscalation(ctx, incident, later)
	if err != nil {
		t.Fatalf("third evaluation: %v", err)
	}
	if esc2 == nil || esc2.Reason != "notify director" {
		t.Fatalf("third evaluation = %+v, want director step", esc2)
	}
	if fired, err := e.engine.EvaluateEscalation(ctx, incident, later.Add(24*time.Hour)); err != nil || fired != nil {
		t.Fatalf("exhausted ladder fired %+v (err %v)", fired, err)
	}
}

func TestEvaluateEscalationGlobalLadderFallback(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	deptID := e.createDepartment(t, "Parks")
	// Only a global ladder exists.
	e.createStep(t, "", "duty manager", 15, 1)

	incident := seedAgedIncident(t, e, deptID, 20)
	esc, err := e.engine.EvaluateEscalation(ctx, incident, time.Now().UTC())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if esc == nil || esc.Reason != "duty manager" {
		t.Fatalf("global ladder not used: %+v", esc)
	}
}

func TestEvaluateEscalationSkipsTerminal(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	e.createStep(t, "", "duty manager", 1, 1)

	incident := seedAgedIncident(t, e, "", 60)
	incident.Status = incidents.StatusRejected
	if err := e.incidents.UpdateIncident(ctx, incident, incident.Version); err != nil {
		t.Fatalf("close incident: %v", err)
	}
	if esc, err := e.engine.EvaluateEscalation(ctx, incident, time.Now().UTC()); err != nil || esc != nil {
		t.Fatalf("terminal incident escalated: %+v (err %v)", esc, err)
	}
}

func TestSweepOnceCoversOpenIncidents(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	deptID := e.createDepartment(t, "Water Board")
	e.createStep(t, deptID, "notify supervisor", 30, 1)

	stale := seedAgedIncident(t, e, deptID, 90)
	fresh := seedAgedIncident(t, e, deptID, 5)

	if err := e.sweeper.SweepOnce(ctx, time.Now().UTC()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	staleEvents, _ := e.incidents.ListEscalations(ctx, stale.ID)
	if len(staleEvents) != 1 {
		t.Fatalf("stale incident events = %d, want 1", len(staleEvents))
	}
	freshEvents, _ := e.incidents.ListEscalations(ctx, fresh.ID)
	if len(freshEvents) != 0 {
		t.Fatalf("fresh incident escalated early")
	}

	// Second sweep with no time advance changes nothing.
	if err := e.sweeper.SweepOnce(ctx, time.Now().UTC()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	staleEvents, _ = e.incidents.ListEscalations(ctx, stale.ID)
	if len(staleEvents) != 1 {
		t.Fatalf("sweep not idempotent: %d events", len(staleEvents))
	}
}

func TestIsOverdue(t *testing.T) {
	e := setupEnv(t)
	now := time.Now().UTC()

	overdue := &store.Incident{Status: incidents.StatusReported, DateReported: now.Add(-2 * time.Hour)}
	if !e.engine.IsOverdue(overdue, now) {
		t.Fatalf("2h old reported incident must be overdue at 60m SLA")
	}
	recent := &store.Incident{Status: incidents.StatusReported, DateReported: now.Add(-10 * time.Minute)}
	if e.engine.IsOverdue(recent, now) {
		t.Fatalf("recent incident must not be overdue")
	}
	moved := &store.Incident{Status: incidents.StatusDispatched, DateReported: now.Add(-2 * time.Hour)}
	if e.engine.IsOverdue(moved, now) {
		t.Fatalf("only still-reported incidents count as overdue")
	}
}
