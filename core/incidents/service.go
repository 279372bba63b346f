package incidents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"civicwatch/config"
	"civicwatch/core/identity"
	"civicwatch/core/rbac"
	"civicwatch/core/store"
	"civicwatch/core/utils"
)

// Router picks a department for a newly reported incident. Implemented
// by the routing engine; declared here so the orchestrator depends on
// the capability, not the package.
type Router interface {
	RouteIncident(ctx context.Context, incident *store.Incident) (string, error)
}

// Service is the single entry point for every mutating incident use
// case: resolve principal, validate, load, authorize, compute, write
// conditionally, then audit and notify.
type Service struct {
	cfg         *config.AppConfig
	incidents   store.IncidentsStore
	departments store.DepartmentsStore
	users       store.UsersStore
	resolver    *identity.Resolver
	guard       *rbac.Guard
	router      Router
	dispatcher  Dispatcher
	audits      store.AuditStore
	logger      *utils.Logger
}

func NewService(cfg *config.AppConfig, incidents store.IncidentsStore, departments store.DepartmentsStore, users store.UsersStore, resolver *identity.Resolver, guard *rbac.Guard, router Router, dispatcher Dispatcher, audits store.AuditStore, logger *utils.Logger) *Service {
	return &Service{
		cfg:         cfg,
		incidents:   incidents,
		departments: departments,
		users:       users,
		resolver:    resolver,
		guard:       guard,
		router:      router,
		dispatcher:  dispatcher,
		audits:      audits,
		logger:      logger,
	}
}

type CreateIncidentInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	Anonymous   bool   `json:"anonymous"`
}

func (s *Service) CreateIncident(ctx context.Context, credential string, in CreateIncidentInput) (*store.Incident, error) {
	principal, err := s.resolver.Resolve(ctx, credential)
	if err != nil {
		return nil, resolveErr(err)
	}
	if !s.guard.Authorize(principal, rbac.PermIncidentsCreate, nil) {
		return nil, ErrForbidden
	}
	var issues []FieldIssue
	if strings.TrimSpace(in.Title) == "" {
		issues = append(issues, FieldIssue{Field: "title", Message: "required"})
	}
	if strings.TrimSpace(in.Category) == "" {
		issues = append(issues, FieldIssue{Field: "category", Message: "required"})
	}
	priority := strings.ToLower(strings.TrimSpace(in.Priority))
	if priority == "" {
		priority = PriorityMedium
	} else if !ValidPriority(priority) {
		issues = append(issues, FieldIssue{Field: "priority", Message: "unknown priority"})
	}
	if len(issues) > 0 {
		return nil, &InvalidInputError{Issues: issues}
	}
	now := utils.NowUTC()
	incident := &store.Incident{
		ID:                uuid.Must(uuid.NewV4()).String(),
		Title:             strings.TrimSpace(in.Title),
		Description:       strings.TrimSpace(in.Description),
		Category:          strings.TrimSpace(in.Category),
		Priority:          priority,
		Status:            StatusReported,
		ReporterAnonymous: in.Anonymous,
		DateReported:      now,
		StatusChangedAt:   now,
	}
	if !in.Anonymous {
		incident.ReporterUserID = principal.ID
	}
	if s.router != nil {
		departmentID, err := s.router.RouteIncident(ctx, incident)
		if err != nil {
			return nil, persistErr(err)
		}
		incident.DepartmentID = departmentID
	}
	if err := s.incidents.CreateIncident(ctx, incident); err != nil {
		return nil, persistErr(err)
	}
	s.audit(ctx, principal, "incidents.create", incident.ID, fmt.Sprintf("category=%s|department=%s", incident.Category, incident.DepartmentID))
	s.notify("incident.reported", incident)
	return incident, nil
}

func (s *Service) UpdateIncidentStatus(ctx context.Context, credential, incidentID, status, resolution string) (*store.Incident, error) {
	requested := strings.ToLower(strings.TrimSpace(status))
	if !ValidStatus(requested) {
		return nil, &InvalidInputError{Issues: []FieldIssue{{Field: "status", Message: "unknown status"}}}
	}
	incident, principal, err := s.mutateIncident(ctx, credential, incidentID, rbac.PermIncidentsUpdate, func(work *store.Incident) error {
		if err := Transition(work, requested, utils.NowUTC()); err != nil {
			return err
		}
		if requested == StatusResolved && strings.TrimSpace(resolution) != "" {
			work.Resolution = strings.TrimSpace(resolution)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, principal, "incidents.status", incident.ID, "status="+requested)
	s.notify("incident.status_changed", incident)
	return incident, nil
}

func (s *Service) AssignResponder(ctx context.Context, credential, incidentID, responder, departmentID string) (*store.Incident, error) {
	responder = strings.TrimSpace(responder)
	departmentID = strings.TrimSpace(departmentID)
	if responder == "" && departmentID == "" {
		return nil, &InvalidInputError{Issues: []FieldIssue{{Field: "responder", Message: "responder or department required"}}}
	}
	incident, principal, err := s.mutateIncident(ctx, credential, incidentID, rbac.PermIncidentsAssign, func(work *store.Incident) error {
		return AssignResponder(work, responder, departmentID, utils.NowUTC())
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, principal, "incidents.assign", incident.ID, fmt.Sprintf("responder=%s|department=%s", responder, departmentID))
	s.notify("incident.dispatched", incident)
	return incident, nil
}

func (s *Service) SetPriority(ctx context.Context, credential, incidentID, priority string) (*store.Incident, error) {
	requested := strings.ToLower(strings.TrimSpace(priority))
	incident, principal, err := s.mutateIncident(ctx, credential, incidentID, rbac.PermIncidentsUpdate, func(work *store.Incident) error {
		return SetPriority(work, requested)
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, principal, "incidents.priority", incident.ID, "priority="+requested)
	return incident, nil
}

func (s *Service) AddInvestigationNote(ctx context.Context, credential, incidentID, text string) (*store.InvestigationNote, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyNote
	}
	principal, err := s.resolver.Resolve(ctx, credential)
	if err != nil {
		return nil, resolveErr(err)
	}
	incident, err := s.incidents.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, persistErr(err)
	}
	if incident == nil {
		return nil, ErrNotFound
	}
	if !s.guard.Authorize(principal, rbac.PermIncidentsNote, incident) {
		return nil, ErrForbidden
	}
	note := &store.InvestigationNote{
		ID:         uuid.Must(uuid.NewV4()).String(),
		IncidentID: incident.ID,
		Note:       strings.TrimSpace(text),
		AuthorID:   principal.ID,
		CreatedAt:  utils.NowUTC(),
	}
	if s.users != nil {
		if author, err := s.users.Get(ctx, principal.ID); err == nil && author != nil {
			note.AuthorName = author.FullName
		}
	}
	if err := s.incidents.AddNote(ctx, note); err != nil {
		return nil, persistErr(err)
	}
	s.audit(ctx, principal, "incidents.note", incident.ID, "")
	return note, nil
}

// IncidentDetail is the read model for a single incident.
type IncidentDetail struct {
	Incident    store.Incident            `json:"incident"`
	Notes       []store.InvestigationNote `json:"notes,omitempty"`
	Escalations []store.Escalation        `json:"escalations,omitempty"`
}

func (s *Service) GetIncident(ctx context.Context, credential, incidentID string) (*IncidentDetail, error) {
	principal, err := s.resolver.Resolve(ctx, credential)
	if err != nil {
		return nil, resolveErr(err)
	}
	incident, err := s.incidents.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, persistErr(err)
	}
	if incident == nil {
		return nil, ErrNotFound
	}
	if !s.guard.Authorize(principal, rbac.PermIncidentsView, incident) {
		return nil, ErrForbidden
	}
	notes, err := s.incidents.ListNotes(ctx, incidentID)
	if err != nil {
		return nil, persistErr(err)
	}
	escalations, err := s.incidents.ListEscalations(ctx, incidentID)
	if err != nil {
		return nil, persistErr(err)
	}
	return &IncidentDetail{Incident: *incident, Notes: notes, Escalations: escalations}, nil
}

// ListIncidents narrows the query to the caller's visibility scope
// before it reaches the store.
func (s *Service) ListIncidents(ctx context.Context, credential string, filter store.IncidentFilter) ([]store.Incident, error) {
	principal, err := s.resolver.Resolve(ctx, credential)
	if err != nil {
		return nil, resolveErr(err)
	}
	switch s.guard.IncidentViewScope(principal) {
	case rbac.ScopeAll:
	case rbac.ScopeDepartment:
		if principal.DepartmentID == "" {
			return nil, ErrForbidden
		}
		filter.DepartmentID = principal.DepartmentID
	case rbac.ScopeOwn:
		if principal.ID == "" {
			return nil, ErrForbidden
		}
		filter.ReporterUserID = principal.ID
	default:
		return nil, ErrForbidden
	}
	items, err := s.incidents.ListIncidents(ctx, filter)
	if err != nil {
		return nil, persistErr(err)
	}
	return items, nil
}

func (s *Service) mutateIncident(ctx context.Context, credential, incidentID string, perm rbac.Permission, apply func(*store.Incident) error) (*store.Incident, identity.Principal, error) {
	principal, err := s.resolver.Resolve(ctx, credential)
	if err != nil {
		return nil, principal, resolveErr(err)
	}
	retries := s.cfg.EffectiveConflictRetries()
	for attempt := 0; attempt <= retries; attempt++ {
		incident, err := s.incidents.GetIncident(ctx, incidentID)
		if err != nil {
			return nil, principal, persistErr(err)
		}
		if incident == nil {
			return nil, principal, ErrNotFound
		}
		if !s.guard.Authorize(principal, perm, incident) {
			return nil, principal, ErrForbidden
		}
		work := *incident
		if err := apply(&work); err != nil {
			return nil, principal, err
		}
		err = s.incidents.UpdateIncident(ctx, &work, incident.Version)
		if errors.Is(err, store.ErrConflict) {
			// Another writer got there first: re-read and re-apply.
			continue
		}
		if err != nil {
			return nil, principal, persistErr(err)
		}
		return &work, principal, nil
	}
	return nil, principal, fmt.Errorf("%w: conflict retries exhausted", ErrPersistence)
}

func (s *Service) audit(ctx context.Context, principal identity.Principal, action, targetID, details string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Log(ctx, principal.ID, action, targetID, details); err != nil && s.logger != nil {
		s.logger.Errorf("audit %s target=%s: %v", action, targetID, err)
	}
}

// notify runs the dispatcher off the request path; a delivery failure
// never fails the operation.
func (s *Service) notify(eventType string, incident *store.Incident) {
	if s.dispatcher == nil || incident == nil {
		return
	}
	event := Event{Type: eventType, IncidentID: incident.ID}
	departmentID := incident.DepartmentID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if departmentID != "" && s.departments != nil {
			if dept, err := s.departments.GetDepartment(ctx, departmentID); err == nil && dept != nil {
				event.Recipients = dept.ContactNumbers
			}
		}
		if err := s.dispatcher.Notify(ctx, event); err != nil && s.logger != nil {
			s.logger.Errorf("notify %s incident=%s: %v", event.Type, event.IncidentID, err)
		}
	}()
}

func resolveErr(err error) error {
	if errors.Is(err, identity.ErrUnauthenticated) {
		return err
	}
	return persistErr(err)
}

func persistErr(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
