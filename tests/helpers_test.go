package tests

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
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

type env struct {
	cfg         *config.AppConfig
	db          *sql.DB
	users       store.UsersStore
	sessions    store.SessionStore
	audits      store.AuditStore
	incidents   store.IncidentsStore
	departments store.DepartmentsStore
	resolver    *identity.Resolver
	policy      *rbac.Policy
	guard       *rbac.Guard
	engine      *routing.Engine
	sweeper     *routing.Sweeper
	svc         *incidents.Service
	server      *api.Server
	logger      *utils.Logger
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		DBDriver:   "sqlite",
		DBPath:     filepath.Join(dir, "civicwatch.db"),
		Pepper:     "pepper",
		SessionTTL: time.Hour,
		Incidents:  config.IncidentsConfig{SLAResponseMinutes: 60, ConflictRetries: 3},
		Escalation: config.EscalationConfig{Enabled: true, SweepSpec: "@every 1m"},
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, cfg.DBDriver, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	departments := store.NewDepartmentsStore(db)

	policy := rbac.MustPolicy(rbac.DefaultRoles())
	guard := rbac.NewGuard(policy)
	resolver := identity.NewResolver(sessions, users, cfg, logger)
	engine := routing.NewEngine(incidentsStore, departments, cfg, logger)
	svc := incidents.NewService(cfg, incidentsStore, departments, users, resolver, guard, engine, nil, audits, logger)
	sweeper := routing.NewSweeper(engine, incidentsStore, nil, cfg, logger)

	server := api.NewServer(cfg, api.ServerDeps{
		Users:         users,
		Sessions:      sessions,
		Audits:        audits,
		Incidents:     incidentsStore,
		Departments:   departments,
		Resolver:      resolver,
		Policy:        policy,
		IncidentsSvc:  svc,
		RoutingEngine: engine,
	}, logger)

	return &env{
		cfg:         cfg,
		db:          db,
		users:       users,
		sessions:    sessions,
		audits:      audits,
		incidents:   incidentsStore,
		departments: departments,
		resolver:    resolver,
		policy:      policy,
		guard:       guard,
		engine:      engine,
		sweeper:     sweeper,
		svc:         svc,
		server:      server,
		logger:      logger,
	}
}

// createUser inserts an active user and returns a live session token.
func (e *env) createUser(t *testing.T, username, role, departmentID string) (userID, token string) {
	t.Helper()
	ctx := context.Background()
	ph := identity.MustHashPassword("secret-"+username, e.cfg.Pepper)
	user := &store.User{
		ID:           uuid.Must(uuid.NewV4()).String(),
		Username:     username,
		FullName:     username,
		PasswordHash: ph.Hash,
		Salt:         ph.Salt,
		Role:         role,
		DepartmentID: departmentID,
		Active:       true,
	}
	if err := e.users.Create(ctx, user); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	sess, err := e.resolver.Login(ctx, username, "secret-"+username)
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return user.ID, sess.ID
}

func (e *env) createDepartment(t *testing.T, name string, contacts ...string) string {
	t.Helper()
	dept := &store.Department{
		ID:             uuid.Must(uuid.NewV4()).String(),
		Name:           name,
		ContactNumbers: contacts,
	}
	if err := e.departments.CreateDepartment(context.Background(), dept); err != nil {
		t.Fatalf("create department %s: %v", name, err)
	}
	return dept.ID
}

func (e *env) createRule(t *testing.T, incidentType, departmentID string, priority int) string {
	t.Helper()
	rule := &store.DepartmentRule{
		ID:           uuid.Must(uuid.NewV4()).String(),
		IncidentType: incidentType,
		DepartmentID: departmentID,
		Priority:     priority,
	}
	if err := e.departments.CreateRule(context.Background(), rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	return rule.ID
}

func (e *env) createStep(t *testing.T, departmentID, name string, waitMinutes, position int) {
	t.Helper()
	step := &store.EscalationStep{
		ID:           uuid.Must(uuid.NewV4()).String(),
		DepartmentID: departmentID,
		Name:         name,
		WaitMinutes:  waitMinutes,
		Position:     position,
	}
	if err := e.departments.CreateStep(context.Background(), step); err != nil {
		t.Fatalf("create step %s: %v", name, err)
	}
}
