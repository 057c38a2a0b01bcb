package main

import (
	"context"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/fdg312/meal-calendar/internal/config"
	"github.com/fdg312/meal-calendar/internal/dbmigrate"
	"github.com/fdg312/meal-calendar/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: go run ./cmd/migrate [up|status|down]")
		os.Exit(2)
	}

	command := os.Args[1]
	switch command {
	case "up", "status", "down":
	default:
		fmt.Fprintf(os.Stderr, "unsupported command %q (allowed: up, status, down)\n", command)
		os.Exit(2)
	}

	cfg := config.Load()
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dbURL, source, err := dbmigrate.SelectDatabaseURL(cfg)
	if err != nil {
		log.Fatal("migrate", "error", err)
	}

	dir := dbmigrate.MigrationsDir(cfg)
	if dir == "" {
		dir = "embedded"
	}
	log.Info("migrate", "command", command, "using", source, "migrations", dir)

	if err := dbmigrate.Run(context.Background(), command, dbURL, dbmigrate.MigrationsDir(cfg), log); err != nil {
		log.Fatal("migrate failed", "command", command, "error", err)
	}

	log.Info("migrate completed", "command", command)
}
