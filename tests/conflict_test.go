package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"

	"civicwatch/core/incidents"
	"civicwatch/core/store"
)

func TestStaleVersionWriteRejected(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	incident := seedAgedIncident(t, e, "", 0)
	stale := *incident
	stale.Title = "should not land"

	if err := e.incidents.UpdateIncident(ctx, &stale, incident.Version+5); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("stale write: got %v, want ErrConflict", err)
	}

	stored, err := e.incidents.GetIncident(ctx, incident.ID)
	if err != nil || stored == nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Title != incident.Title || stored.Version != incident.Version {
		t.Fatalf("stale write leaked: %+v", stored)
	}
}

func TestEscalateStaleVersionLeavesNoEvent(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	incident := seedAgedIncident(t, e, "", 0)
	work := *incident
	work.EscalationLevel = 1
	esc := &store.Escalation{
		ID:         uuid.Must(uuid.NewV4()).String(),
		IncidentID: incident.ID,
		Reason:     "notify supervisor",
	}
	if err := e.incidents.EscalateIncident(ctx, &work, esc, incident.Version+1); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("stale escalate: got %v, want ErrConflict", err)
	}

	events, err := e.incidents.ListEscalations(ctx, incident.ID)
	if err != nil {
		t.Fatalf("list escalations: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("conflicted escalation left %d event(s)", len(events))
	}
	stored, err := e.incidents.GetIncident(ctx, incident.ID)
	if err != nil || stored == nil {
		t.Fatalf("get: %v", err)
	}
	if stored.EscalationLevel != 0 || stored.Version != incident.Version {
		t.Fatalf("conflicted escalation mutated incident: %+v", stored)
	}
}

// A write that raced in between the caller's read and the service call
// must not be lost: the orchestrator re-reads before each attempt.
func TestServiceRecoversFromConcurrentWrite(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	_, citizenToken := e.createUser(t, "resident", "citizen", "")
	_, authorityToken := e.createUser(t, "governor", "regional_authority", "")

	created, err := e.svc.CreateIncident(ctx, citizenToken, incidents.CreateIncidentInput{
		Title:    "Streetlight out",
		Category: "lighting",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Another writer bumps the version behind the service's back.
	racer, err := e.incidents.GetIncident(ctx, created.ID)
	if err != nil || racer == nil {
		t.Fatalf("get: %v", err)
	}
	racer.Description = "corner of 3rd and Main"
	if err := e.incidents.UpdateIncident(ctx, racer, racer.Version); err != nil {
		t.Fatalf("racing update: %v", err)
	}

	verified, err := e.svc.UpdateIncidentStatus(ctx, authorityToken, created.ID, incidents.StatusVerified, "")
	if err != nil {
		t.Fatalf("verify after race: %v", err)
	}
	if verified.Version != racer.Version+1 {
		t.Fatalf("version = %d, want %d", verified.Version, racer.Version+1)
	}
	if verified.Description != "corner of 3rd and Main" {
		t.Fatalf("racing write lost: %q", verified.Description)
	}
	if verified.Status != incidents.StatusVerified {
		t.Fatalf("status = %s", verified.Status)
	}
}
