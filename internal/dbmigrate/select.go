package dbmigrate

import (
	"fmt"
	"strings"

	"github.com/fdg312/meal-calendar/internal/config"
)

const DefaultMigrationsDir = "migrations"

// SelectDatabaseURL picks the URL migrations should run against.
// DATABASE_URL_DIRECT wins over DATABASE_URL so DDL can bypass a pooler.
func SelectDatabaseURL(cfg *config.Config) (dbURL string, source string, err error) {
	if strings.TrimSpace(cfg.DatabaseURLDirect) != "" {
		return cfg.DatabaseURLDirect, "DATABASE_URL_DIRECT", nil
	}
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		return cfg.DatabaseURL, "DATABASE_URL", nil
	}
	return "", "", fmt.Errorf("no database URL configured (set DATABASE_URL_DIRECT or DATABASE_URL)")
}

// MigrationsDir resolves MIGRATIONS_DIR; "" and "embedded" select the compiled-in set.
func MigrationsDir(cfg *config.Config) string {
	dir := strings.TrimSpace(cfg.MigrationsDir)
	if dir == "" || dir == "embedded" {
		return ""
	}
	return dir
}
