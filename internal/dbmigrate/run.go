package dbmigrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Logger is what goose needs for its progress output.
type Logger interface {
	Printf(format string, v ...any)
	Fatalf(format string, v ...any)
}

// Run executes a goose command (up, status, down) against dbURL. An empty
// migrationsDir uses the migrations compiled into the binary.
func Run(ctx context.Context, command string, dbURL string, migrationsDir string, logger Logger) error {
	if dbURL == "" {
		return fmt.Errorf("database URL is empty")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if migrationsDir == "" {
		goose.SetBaseFS(embeddedMigrations)
		migrationsDir = DefaultMigrationsDir
	} else {
		if _, err := os.Stat(migrationsDir); err != nil {
			return fmt.Errorf("migrations dir %q: %w", migrationsDir, err)
		}
		goose.SetBaseFS(nil)
	}
	if logger != nil {
		goose.SetLogger(logger)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.RunContext(ctx, command, db, migrationsDir); err != nil {
		return fmt.Errorf("goose %s failed: %w", command, err)
	}

	return nil
}
