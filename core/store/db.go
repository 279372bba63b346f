package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"civicwatch/config"
	"civicwatch/core/utils"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewDB opens the configured database. The sqlite driver is the default
// and what the test suite runs against; postgres is selected with
// db_driver: postgres and a db_url.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	switch driver {
	case "", "sqlite":
		path := strings.TrimSpace(cfg.DBPath)
		if path == "" {
			return nil, errors.New("store: sqlite requires db_path")
		}
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, err
			}
		}
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// Single writer keeps the conditional-write discipline honest on sqlite.
		db.SetMaxOpenConns(1)
		if logger != nil {
			logger.Printf("DB sqlite path=%s", path)
		}
		return db, nil
	case "postgres":
		url := strings.TrimSpace(cfg.DBURL)
		if url == "" {
			return nil, errors.New("store: postgres requires db_url")
		}
		db, err := sql.Open("pgx", url)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Printf("DB postgres")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("store: unsupported db_driver %q", cfg.DBDriver)
	}
}

func ApplyMigrations(ctx context.Context, db *sql.DB, dbDriver string, logger *utils.Logger) error {
	dialect := "sqlite3"
	if strings.ToLower(strings.TrimSpace(dbDriver)) == "postgres" {
		dialect = "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("DB migrations applied dialect=%s", dialect)
	}
	return nil
}
