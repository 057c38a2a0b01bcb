package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/fdg312/meal-calendar/internal/config"
	"github.com/fdg312/meal-calendar/internal/dbmigrate"
	"github.com/fdg312/meal-calendar/internal/httpserver"
	"github.com/fdg312/meal-calendar/internal/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	printStartupBanner(log, cfg)

	if err := validateProductionConfig(cfg); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrationsOnStartup {
		dbURL, source, err := dbmigrate.SelectDatabaseURL(cfg)
		if err != nil {
			log.Fatal("startup migrations", "error", err)
		}
		log.Info("startup migrations", "command", "up", "using", source)
		if err := dbmigrate.Run(ctx, "up", dbURL, dbmigrate.MigrationsDir(cfg), log); err != nil {
			log.Fatal("startup migrations failed", "error", err)
		}
		log.Info("startup migrations completed")
	}

	server, err := httpserver.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to build server", "error", err)
	}
	defer server.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server stopped", "error", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	}
}

// printStartupBanner logs the resolved configuration. Secrets only show as
// "set" / "not set".
func printStartupBanner(log *logger.Logger, cfg *config.Config) {
	log.Info("meal calendar api",
		"env", cfg.Env,
		"port", cfg.Port,
		"timezone", nonEmptyOrDash(cfg.Timezone),
	)
	log.Info("database",
		"postgres", setOrNot(cfg.DatabaseURL),
		"direct", setOrNot(cfg.DatabaseURLDirect),
		"sqlite_path", nonEmptyOrDash(cfg.SQLitePath),
		"migrations_on_startup", cfg.RunMigrationsOnStartup,
	)
	log.Info("planner",
		"lock_past_days", cfg.LockPastDays,
		"weeks_ahead", cfg.WeeksAhead,
		"recompute_concurrency", cfg.RecomputeConcurrency,
		"page_size", cfg.DishesPageSize,
	)
	log.Info("auth",
		"auth_required", cfg.AuthRequired,
		"password", setOrNot(cfg.AuthPassword),
		"jwt_secret", secretStatus(cfg.JWTSecret, config.DefaultJWTSecret),
	)
	log.Info("blob", "mode", cfg.Blob.Mode)
	if cfg.Blob.Mode != config.BlobModeLocal {
		log.Info("blob s3", "summary", cfg.Blob.S3.Summary())
	}
}

// validateProductionConfig rejects settings that are only tolerable locally.
func validateProductionConfig(cfg *config.Config) error {
	if cfg.Blob.Mode == config.BlobModeS3 {
		if missing := cfg.Blob.S3.MissingRequired(); len(missing) > 0 {
			return fmt.Errorf("BLOB_MODE is 's3' but S3 config is incomplete, missing: %s", strings.Join(missing, ", "))
		}
	}

	if !cfg.IsProduction() {
		return nil
	}
	if strings.TrimSpace(cfg.AuthPassword) == "" {
		return errors.New("AUTH_PASSWORD must be set in production")
	}
	if cfg.JWTSecret == config.DefaultJWTSecret {
		return errors.New("JWT_SECRET must not be the default in production")
	}
	if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
		return fmt.Errorf("no DATABASE_URL or SQLITE_PATH configured in %s", cfg.Env)
	}
	return nil
}

func setOrNot(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not set"
	}
	return "set"
}

func nonEmptyOrDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

func secretStatus(v, insecureDefault string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "not set"
	}
	if v == insecureDefault {
		return "set (default, insecure)"
	}
	return "set (custom)"
}
