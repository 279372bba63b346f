package incidents

import (
	"time"

	"civicwatch/core/store"
)

const (
	StatusReported   = "reported"
	StatusVerified   = "verified"
	StatusDispatched = "dispatched"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusRejected   = "rejected"
)

const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

var validPriority = map[string]struct{}{
	PriorityLow:      {},
	PriorityMedium:   {},
	PriorityHigh:     {},
	PriorityCritical: {},
}

var validStatus = map[string]struct{}{
	StatusReported:   {},
	StatusVerified:   {},
	StatusDispatched: {},
	StatusInProgress: {},
	StatusResolved:   {},
	StatusRejected:   {},
}

// validTransitions is the fixed edge set. Rejection is reachable from
// every non-terminal status; forward movement never skips a stage.
var validTransitions = map[string][]string{
	StatusReported:   {StatusVerified, StatusRejected},
	StatusVerified:   {StatusDispatched, StatusRejected},
	StatusDispatched: {StatusInProgress, StatusRejected},
	StatusInProgress: {StatusResolved, StatusRejected},
}

func ValidPriority(p string) bool {
	_, ok := validPriority[p]
	return ok
}

func ValidStatus(s string) bool {
	_, ok := validStatus[s]
	return ok
}

func IsTerminal(status string) bool {
	return status == StatusResolved || status == StatusRejected
}

// Transition moves the incident to requested if the edge exists,
// stamping the matching date field the first time the status is
// reached. Lifecycle dates are never cleared.
func Transition(incident *store.Incident, requested string, now time.Time) error {
	if IsTerminal(incident.Status) {
		return ErrAlreadyTerminal
	}
	allowed := false
	for _, next := range validTransitions[incident.Status] {
		if next == requested {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidTransition
	}
	incident.Status = requested
	incident.StatusChangedAt = now
	stampStatusDate(incident, requested, now)
	return nil
}

// AssignResponder sets the responder and department and forces the
// incident into dispatched when it has not yet gone that far.
func AssignResponder(incident *store.Incident, responder, departmentID string, now time.Time) error {
	if IsTerminal(incident.Status) {
		return ErrAlreadyTerminal
	}
	if responder != "" {
		incident.AssignedTo = responder
	}
	if departmentID != "" {
		incident.DepartmentID = departmentID
	}
	if incident.Status == StatusReported || incident.Status == StatusVerified {
		incident.Status = StatusDispatched
		incident.StatusChangedAt = now
	}
	stampStatusDate(incident, StatusDispatched, now)
	return nil
}

func SetPriority(incident *store.Incident, priority string) error {
	if IsTerminal(incident.Status) {
		return ErrAlreadyTerminal
	}
	if !ValidPriority(priority) {
		return &InvalidInputError{Issues: []FieldIssue{{Field: "priority", Message: "unknown priority"}}}
	}
	incident.Priority = priority
	return nil
}

func stampStatusDate(incident *store.Incident, status string, now time.Time) {
	switch status {
	case StatusVerified:
		if incident.DateVerified == nil {
			t := now
			incident.DateVerified = &t
		}
	case StatusDispatched:
		if incident.DateDispatched == nil {
			t := now
			incident.DateDispatched = &t
		}
	case StatusResolved, StatusRejected:
		if incident.DateResolved == nil {
			t := now
			incident.DateResolved = &t
		}
	}
}
