package routegroups

import (
	"github.com/go-chi/chi/v5"

	"civicwatch/api/handlers"
	"civicwatch/core/rbac"
)

func RegisterDepartments(apiRouter chi.Router, g Guards, departments *handlers.DepartmentsHandler) {
	apiRouter.Route("/departments", func(departmentsRouter chi.Router) {
		departmentsRouter.MethodFunc("GET", "/", g.SessionScoped(rbac.PermIncidentsView, departments.List))
		departmentsRouter.MethodFunc("POST", "/", g.SessionPerm(rbac.PermDepartmentsManage, departments.Create))
		departmentsRouter.MethodFunc("GET", "/{id}", g.SessionScoped(rbac.PermIncidentsView, departments.Get))
		departmentsRouter.MethodFunc("PUT", "/{id}", g.SessionPerm(rbac.PermDepartmentsManage, departments.Update))
		departmentsRouter.MethodFunc("DELETE", "/{id}", g.SessionPerm(rbac.PermDepartmentsManage, departments.Delete))
	})

	apiRouter.Route("/routing", func(routingRouter chi.Router) {
		routingRouter.MethodFunc("GET", "/rules", g.SessionPerm(rbac.PermDepartmentsManage, departments.ListRules))
		routingRouter.MethodFunc("POST", "/rules", g.SessionPerm(rbac.PermDepartmentsManage, departments.CreateRule))
		routingRouter.MethodFunc("DELETE", "/rules/{rule_id}", g.SessionPerm(rbac.PermDepartmentsManage, departments.DeleteRule))
		routingRouter.MethodFunc("GET", "/steps", g.SessionPerm(rbac.PermDepartmentsManage, departments.ListSteps))
		routingRouter.MethodFunc("POST", "/steps", g.SessionPerm(rbac.PermDepartmentsManage, departments.CreateStep))
		routingRouter.MethodFunc("DELETE", "/steps/{step_id}", g.SessionPerm(rbac.PermDepartmentsManage, departments.DeleteStep))
	})
}
