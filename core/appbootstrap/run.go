package appbootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"civicwatch/api"
	"civicwatch/config"
	"civicwatch/core/store"
	"civicwatch/core/utils"
)

const (
	shutdownTimeout        = 10 * time.Second
	sessionCleanupInterval = 10 * time.Minute
)

// Run wires the whole application together and blocks until ctx is
// cancelled: config, database, migrations, stores, services, background
// workers and the HTTP listener.
func Run(ctx context.Context, configPath string) error {
	logger := utils.NewLogger()
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.ApplyMigrations(ctx, db, cfg.DBDriver, logger); err != nil {
		return err
	}

	comp, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return err
	}
	if err := ensureDefaultAdmin(ctx, comp.serverDeps.Users, cfg, logger); err != nil {
		return err
	}

	for _, worker := range comp.workers {
		if err := worker.StartWithContext(ctx); err != nil {
			return err
		}
	}

	go sessionJanitor(ctx, comp.sessions, logger)

	server := api.NewServer(cfg, comp.serverDeps, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, worker := range comp.workers {
		if err := worker.StopWithContext(shutdownCtx); err != nil {
			logger.Errorf("stop worker: %v", err)
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	logger.Printf("shutdown complete")
	return nil
}

func sessionJanitor(ctx context.Context, sessions store.SessionStore, logger *utils.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := sessions.DeleteExpired(ctx, utils.NowUTC()); err != nil && logger != nil {
				logger.Errorf("session cleanup: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
