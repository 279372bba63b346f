package rbac

import (
	"civicwatch/core/identity"
	"civicwatch/core/store"
)

// Guard applies the single scoping algorithm every incident operation
// goes through: a bare or ".all" grant is global, ".department" requires
// the incident to belong to the principal's department, ".own" requires
// the principal to be the reporter. No grant means deny.
type Guard struct {
	policy *Policy
}

func NewGuard(policy *Policy) *Guard {
	return &Guard{policy: policy}
}

func (g *Guard) Authorize(p identity.Principal, perm Permission, incident *store.Incident) bool {
	if g == nil || g.policy == nil || p.Role == "" {
		return false
	}
	if g.policy.Allowed(p.Role, perm) || g.policy.Allowed(p.Role, perm+".all") {
		return true
	}
	if incident == nil {
		return false
	}
	if g.policy.Allowed(p.Role, perm+".department") {
		return p.DepartmentID != "" && incident.DepartmentID == p.DepartmentID
	}
	if g.policy.Allowed(p.Role, perm+".own") {
		return p.ID != "" && incident.ReporterUserID == p.ID
	}
	return false
}

// ViewScope reports the widest incident visibility a role has, used by
// list endpoints to narrow queries instead of filtering row by row.
type ViewScope int

const (
	ScopeNone ViewScope = iota
	ScopeOwn
	ScopeDepartment
	ScopeAll
)

func (g *Guard) IncidentViewScope(p identity.Principal) ViewScope {
	if g == nil || g.policy == nil || p.Role == "" {
		return ScopeNone
	}
	switch {
	case g.policy.Allowed(p.Role, PermIncidentsView) || g.policy.Allowed(p.Role, PermIncidentsViewAll):
		return ScopeAll
	case g.policy.Allowed(p.Role, PermIncidentsViewDepartment):
		return ScopeDepartment
	case g.policy.Allowed(p.Role, PermIncidentsViewOwn):
		return ScopeOwn
	default:
		return ScopeNone
	}
}
