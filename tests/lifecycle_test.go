package tests

import (
	"context"
	"errors"
	"testing"

	"civicwatch/core/incidents"
)

func TestIncidentLifecycleEndToEnd(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	deptID := e.createDepartment(t, "Water Board", "+27-100")
	e.createRule(t, "water", deptID, 1)
	_, citizenToken := e.createUser(t, "resident", "citizen", "")
	_, authorityToken := e.createUser(t, "governor", "regional_authority", "")

	created, err := e.svc.CreateIncident(ctx, citizenToken, incidents.CreateIncidentInput{
		Title:       "Burst water main on 5th",
		Description: "Water flooding the intersection",
		Category:    "water",
		Priority:    "high",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != incidents.StatusReported || created.DepartmentID != deptID {
		t.Fatalf("created incident wrong: status=%s dept=%s", created.Status, created.DepartmentID)
	}
	if created.Version != 1 {
		t.Fatalf("fresh incident version = %d", created.Version)
	}

	verified, err := e.svc.UpdateIncidentStatus(ctx, authorityToken, created.ID, incidents.StatusVerified, "")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.DateVerified == nil || verified.Version != 2 {
		t.Fatalf("verify outcome: %+v", verified)
	}

	dispatched, err := e.svc.AssignResponder(ctx, authorityToken, created.ID, "Crew 12", deptID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if dispatched.Status != incidents.StatusDispatched || dispatched.AssignedTo != "Crew 12" || dispatched.DateDispatched == nil {
		t.Fatalf("assign outcome: %+v", dispatched)
	}

	if _, err := e.svc.UpdateIncidentStatus(ctx, authorityToken, created.ID, incidents.StatusInProgress, ""); err != nil {
		t.Fatalf("in progress: %v", err)
	}
	resolved, err := e.svc.UpdateIncidentStatus(ctx, authorityToken, created.ID, incidents.StatusResolved, "main replaced")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Resolution != "main replaced" || resolved.DateResolved == nil {
		t.Fatalf("resolve outcome: %+v", resolved)
	}

	// Terminal: no further movement, no reassignment.
	if _, err := e.svc.UpdateIncidentStatus(ctx, authorityToken, created.ID, incidents.StatusInProgress, ""); !errors.Is(err, incidents.ErrAlreadyTerminal) {
		t.Fatalf("reopen: got %v, want ErrAlreadyTerminal", err)
	}
	if _, err := e.svc.AssignResponder(ctx, authorityToken, created.ID, "Crew 13", ""); !errors.Is(err, incidents.ErrAlreadyTerminal) {
		t.Fatalf("reassign terminal: got %v, want ErrAlreadyTerminal", err)
	}

	// The reporter can still read the closed incident.
	detail, err := e.svc.GetIncident(ctx, citizenToken, created.ID)
	if err != nil {
		t.Fatalf("reporter get: %v", err)
	}
	if detail.Incident.Status != incidents.StatusResolved {
		t.Fatalf("final status = %s", detail.Incident.Status)
	}

	entries, err := e.audits.ListRecent(ctx, 50)
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	actions := map[string]bool{}
	for _, entry := range entries {
		actions[entry.Action] = true
	}
	for _, want := range []string{"incidents.create", "incidents.status", "incidents.assign"} {
		if !actions[want] {
			t.Fatalf("audit trail missing %s: %+v", want, entries)
		}
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	_, citizenToken := e.createUser(t, "resident", "citizen", "")
	_, authorityToken := e.createUser(t, "governor", "regional_authority", "")

	created, err := e.svc.CreateIncident(ctx, citizenToken, incidents.CreateIncidentInput{
		Title:    "Pothole",
		Category: "roads",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Skipping verification is not allowed.
	if _, err := e.svc.UpdateIncidentStatus(ctx, authorityToken, created.ID, incidents.StatusResolved, ""); !errors.Is(err, incidents.ErrInvalidTransition) {
		t.Fatalf("reported->resolved: got %v, want ErrInvalidTransition", err)
	}
	if _, err := e.svc.UpdateIncidentStatus(ctx, authorityToken, created.ID, "closed", ""); err == nil {
		t.Fatalf("unknown status must fail")
	}

	// Rejection works straight from reported.
	rejected, err := e.svc.UpdateIncidentStatus(ctx, authorityToken, created.ID, incidents.StatusRejected, "")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.DateResolved == nil {
		t.Fatalf("rejection must stamp date_resolved")
	}
}

func TestNotesAppendOnlyOrdered(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	deptID := e.createDepartment(t, "Fire Brigade")
	_, unitToken := e.createUser(t, "crew", "response_unit", deptID)
	_, authorityToken := e.createUser(t, "governor", "regional_authority", "")
	_, citizenToken := e.createUser(t, "resident", "citizen", "")

	created, err := e.svc.CreateIncident(ctx, citizenToken, incidents.CreateIncidentInput{Title: "Fire", Category: "fire"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.svc.AssignResponder(ctx, authorityToken, created.ID, "Engine 3", deptID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	for _, text := range []string{"dispatched", "on scene", "contained"} {
		if _, err := e.svc.AddInvestigationNote(ctx, unitToken, created.ID, text); err != nil {
			t.Fatalf("note %q: %v", text, err)
		}
	}
	detail, err := e.svc.GetIncident(ctx, unitToken, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(detail.Notes) != 3 {
		t.Fatalf("notes = %d, want 3", len(detail.Notes))
	}
	for i, want := range []string{"dispatched", "on scene", "contained"} {
		if detail.Notes[i].Note != want {
			t.Fatalf("note[%d] = %q, want %q", i, detail.Notes[i].Note, want)
		}
	}
}

func TestUnassignedIncidentStaysUnassigned(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	_, citizenToken := e.createUser(t, "resident", "citizen", "")

	// No routing rules configured for this category.
	created, err := e.svc.CreateIncident(ctx, citizenToken, incidents.CreateIncidentInput{Title: "Odd noise", Category: "unclassified"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.DepartmentID != "" {
		t.Fatalf("unmatched category must stay unassigned, got %q", created.DepartmentID)
	}

	stored, err := e.incidents.GetIncident(ctx, created.ID)
	if err != nil || stored == nil {
		t.Fatalf("get: %v", err)
	}
	if stored.DepartmentID != "" {
		t.Fatalf("stored department = %q", stored.DepartmentID)
	}
}
