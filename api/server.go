package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civicwatch/api/handlers"
	"civicwatch/api/routegroups"
	"civicwatch/config"
	"civicwatch/core/identity"
	"civicwatch/core/incidents"
	"civicwatch/core/rbac"
	"civicwatch/core/routing"
	"civicwatch/core/store"
	"civicwatch/core/utils"
)

// BackgroundWorker is anything the server runtime starts alongside the
// HTTP listener and stops on shutdown.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	Users         store.UsersStore
	Sessions      store.SessionStore
	Audits        store.AuditStore
	Incidents     store.IncidentsStore
	Departments   store.DepartmentsStore
	Resolver      *identity.Resolver
	Policy        *rbac.Policy
	IncidentsSvc  *incidents.Service
	RoutingEngine *routing.Engine
}

type Server struct {
	cfg    *config.AppConfig
	logger *utils.Logger

	users       store.UsersStore
	sessions    store.SessionStore
	audits      store.AuditStore
	incidents   store.IncidentsStore
	departments store.DepartmentsStore
	resolver    *identity.Resolver
	policy      *rbac.Policy

	incidentsSvc  *incidents.Service
	routingEngine *routing.Engine
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		users:         deps.Users,
		sessions:      deps.Sessions,
		audits:        deps.Audits,
		incidents:     deps.Incidents,
		departments:   deps.Departments,
		resolver:      deps.Resolver,
		policy:        deps.Policy,
		incidentsSvc:  deps.IncidentsSvc,
		routingEngine: deps.RoutingEngine,
	}
}

type routeHandlers struct {
	auth        *handlers.AuthHandler
	incidents   *handlers.IncidentsHandler
	departments *handlers.DepartmentsHandler
	logs        *handlers.LogsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:        handlers.NewAuthHandler(s.cfg, s.users, s.resolver, s.audits, s.logger),
		incidents:   handlers.NewIncidentsHandler(s.cfg, s.incidentsSvc, s.routingEngine, s.logger),
		departments: handlers.NewDepartmentsHandler(s.departments, s.audits, s.logger),
		logs:        handlers.NewLogsHandler(s.audits),
	}
}

func (s *Server) Handler() http.Handler {
	h := s.newRouteHandlers()
	guards := routegroups.Guards{
		Session:    s.withSession,
		Perm:       s.requirePermission,
		ScopedPerm: s.requireScopedPermission,
	}

	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Use(s.jsonMiddleware)
		apiRouter.MethodFunc("POST", "/auth/login", s.rateLimitMiddleware(h.auth.Login))
		apiRouter.MethodFunc("POST", "/auth/logout", s.withSession(h.auth.Logout))
		apiRouter.MethodFunc("GET", "/auth/me", s.withSession(h.auth.Me))

		routegroups.RegisterIncidents(apiRouter, guards, h.incidents)
		routegroups.RegisterDepartments(apiRouter, guards, h.departments)

		apiRouter.MethodFunc("GET", "/audit", guards.SessionPerm(rbac.PermAuditView, h.logs.List))
	})

	r.MethodFunc("GET", "/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
