package appbootstrap

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofrs/uuid/v5"

	"civicwatch/api"
	"civicwatch/config"
	"civicwatch/core/identity"
	"civicwatch/core/incidents"
	"civicwatch/core/rbac"
	"civicwatch/core/routing"
	"civicwatch/core/store"
	"civicwatch/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	sessions   store.SessionStore
	workers    []api.BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*runtimeComposition, error) {
	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	departments := store.NewDepartmentsStore(db)

	policy, err := rbac.NewPolicy(rbac.DefaultRoles())
	if err != nil {
		return nil, err
	}
	guard := rbac.NewGuard(policy)
	resolver := identity.NewResolver(sessions, users, cfg, logger)

	dispatcher := incidents.NewWebhookDispatcher(
		cfg.Notifications.WebhookURL,
		time.Duration(cfg.Notifications.TimeoutSec)*time.Second,
		logger,
	)
	engine := routing.NewEngine(incidentsStore, departments, cfg, logger)
	incidentsSvc := incidents.NewService(cfg, incidentsStore, departments, users, resolver, guard, engine, dispatcher, audits, logger)
	sweeper := routing.NewSweeper(engine, incidentsStore, dispatcher, cfg, logger)

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Users:         users,
			Sessions:      sessions,
			Audits:        audits,
			Incidents:     incidentsStore,
			Departments:   departments,
			Resolver:      resolver,
			Policy:        policy,
			IncidentsSvc:  incidentsSvc,
			RoutingEngine: engine,
		},
		sessions: sessions,
		workers:  []api.BackgroundWorker{sweeper},
	}, nil
}

// ensureDefaultAdmin seeds an admin account on a fresh database so the
// instance is reachable; the generated password is printed once.
func ensureDefaultAdmin(ctx context.Context, users store.UsersStore, cfg *config.AppConfig, logger *utils.Logger) error {
	existing, err := users.FindByUsername(ctx, "admin")
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	password, err := utils.RandString(20)
	if err != nil {
		return err
	}
	ph, err := identity.HashPassword(password, cfg.Pepper)
	if err != nil {
		return err
	}
	admin := &store.User{
		ID:           uuid.Must(uuid.NewV4()).String(),
		Username:     "admin",
		FullName:     "Administrator",
		PasswordHash: ph.Hash,
		Salt:         ph.Salt,
		Role:         rbac.RoleAdmin,
		Active:       true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("seeded default admin user, password: %s", password)
	}
	return nil
}
