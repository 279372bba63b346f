package routegroups

import (
	"github.com/go-chi/chi/v5"

	"civicwatch/api/handlers"
	"civicwatch/core/rbac"
)

func RegisterIncidents(apiRouter chi.Router, g Guards, incidents *handlers.IncidentsHandler) {
	apiRouter.Route("/incidents", func(incidentsRouter chi.Router) {
		incidentsRouter.MethodFunc("GET", "/", g.SessionScoped(rbac.PermIncidentsView, incidents.List))
		incidentsRouter.MethodFunc("POST", "/", g.SessionPerm(rbac.PermIncidentsCreate, incidents.Create))
		incidentsRouter.MethodFunc("GET", "/{id}", g.SessionScoped(rbac.PermIncidentsView, incidents.Get))
		incidentsRouter.MethodFunc("PUT", "/{id}/status", g.SessionScoped(rbac.PermIncidentsUpdate, incidents.UpdateStatus))
		incidentsRouter.MethodFunc("PUT", "/{id}/priority", g.SessionScoped(rbac.PermIncidentsUpdate, incidents.SetPriority))
		incidentsRouter.MethodFunc("POST", "/{id}/assign", g.SessionScoped(rbac.PermIncidentsAssign, incidents.Assign))
		incidentsRouter.MethodFunc("POST", "/{id}/notes", g.SessionScoped(rbac.PermIncidentsNote, incidents.AddNote))
	})
}
