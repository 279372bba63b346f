package routegroups

import (
	"net/http"

	"civicwatch/core/rbac"
)

// Guards bundles the server's session and permission middlewares so
// route groups can be registered without importing the server type.
type Guards struct {
	Session    func(http.HandlerFunc) http.HandlerFunc
	Perm       func(rbac.Permission, http.HandlerFunc) http.HandlerFunc
	ScopedPerm func(rbac.Permission, http.HandlerFunc) http.HandlerFunc
}

// SessionPerm requires a session plus an exact capability grant.
func (g Guards) SessionPerm(perm rbac.Permission, h http.HandlerFunc) http.HandlerFunc {
	return g.Session(g.Perm(perm, h))
}

// SessionScoped requires a session plus the capability in any scope
// variant; per-incident scoping happens in the orchestrator.
func (g Guards) SessionScoped(perm rbac.Permission, h http.HandlerFunc) http.HandlerFunc {
	return g.Session(g.ScopedPerm(perm, h))
}
