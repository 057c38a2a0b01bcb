package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultJWTSecret   = "dev-secret-change-me"
	DefaultDishesLimit = 15
	MaxDishesLimit     = 100
)

// Config содержит конфигурацию приложения
type Config struct {
	Env      string // local | production
	Port     int
	LogLevel string

	// Database
	DatabaseURL            string
	DatabaseURLDirect      string // for migrations / DDL (may be empty)
	SQLitePath             string
	MigrationsDir          string
	RunMigrationsOnStartup bool

	// Calendar
	Timezone             string // IANA zone defining "today"; empty = server local
	LockPastDays         bool
	WeeksAhead           int
	RecomputeConcurrency int
	DishesPageSize       int

	// CORS
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	// Rate Limiting
	RateLimitRPS   int
	RateLimitBurst int

	// Authentication
	AuthPassword string
	AuthRequired bool
	JWTSecret    string
	JWTIssuer    string
	JWTTTLHours  int

	// Menu exports
	Blob BlobConfig
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		env = "local"
	}

	logLevel := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevel == "" {
		logLevel = "info"
	}

	// AUTH_REQUIRED defaults to on whenever a password is configured.
	authPassword := os.Getenv("AUTH_PASSWORD")
	authRequired := strings.TrimSpace(authPassword) != ""
	if strings.TrimSpace(os.Getenv("AUTH_REQUIRED")) != "" {
		authRequired = parseBoolEnv("AUTH_REQUIRED")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = DefaultJWTSecret
	}
	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "meal-calendar"
	}

	pageSize := envInt("DISHES_PAGE_SIZE", DefaultDishesLimit)
	if pageSize <= 0 || pageSize > MaxDishesLimit {
		log.Printf("WARNING: DISHES_PAGE_SIZE=%d out of range, using %d", pageSize, DefaultDishesLimit)
		pageSize = DefaultDishesLimit
	}

	concurrency := envInt("PLANNER_RECOMPUTE_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}

	weeksAhead := envInt("PLANNER_WEEKS_AHEAD", 2)
	if weeksAhead < 0 {
		weeksAhead = 0
	}

	return &Config{
		Env:      env,
		Port:     envInt("PORT", 8080),
		LogLevel: logLevel,

		DatabaseURL:            strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DatabaseURLDirect:      strings.TrimSpace(os.Getenv("DATABASE_URL_DIRECT")),
		SQLitePath:             strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		MigrationsDir:          strings.TrimSpace(os.Getenv("MIGRATIONS_DIR")),
		RunMigrationsOnStartup: parseBoolEnv("RUN_MIGRATIONS_ON_STARTUP"),

		Timezone:             strings.TrimSpace(os.Getenv("APP_TIMEZONE")),
		LockPastDays:         parseBoolEnv("PLANNER_LOCK_PAST_DAYS"),
		WeeksAhead:           weeksAhead,
		RecomputeConcurrency: concurrency,
		DishesPageSize:       pageSize,

		CORSAllowedOrigins:   parseCORSOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"), env),
		CORSAllowCredentials: parseBoolEnv("CORS_ALLOW_CREDENTIALS"),

		RateLimitRPS:   envInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 40),

		AuthPassword: authPassword,
		AuthRequired: authRequired,
		JWTSecret:    jwtSecret,
		JWTIssuer:    jwtIssuer,
		JWTTTLHours:  envInt("JWT_TTL_HOURS", 720),

		Blob: BlobConfig{
			Mode: parseBlobMode("BLOB_MODE", BlobModeAuto),
			S3: S3Config{
				Endpoint:          strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
				Region:            strings.TrimSpace(os.Getenv("S3_REGION")),
				Bucket:            strings.TrimSpace(os.Getenv("S3_BUCKET")),
				AccessKeyID:       strings.TrimSpace(os.Getenv("S3_ACCESS_KEY_ID")),
				SecretAccessKey:   strings.TrimSpace(os.Getenv("S3_SECRET_ACCESS_KEY")),
				KeyPrefix:         strings.Trim(strings.TrimSpace(os.Getenv("S3_KEY_PREFIX")), "/"),
				PresignTTLSeconds: envInt("S3_PRESIGN_TTL_SECONDS", 900),
			},
		},
	}
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// parseCORSOrigins parses CORS_ALLOWED_ORIGINS env var.
// In local mode, defaults to the Vite dev server if empty.
func parseCORSOrigins(raw, env string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if env == "local" {
			return []string{"http://localhost:5173", "http://localhost:3000"}
		}
		return nil
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

func parseBlobMode(key string, defaultVal string) string {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if mode == "" {
		return defaultVal
	}
	switch mode {
	case BlobModeLocal, BlobModeS3, BlobModeAuto:
		return mode
	default:
		log.Printf("WARNING: unknown %s=%q, fallback to %s", key, mode, defaultVal)
		return defaultVal
	}
}

// envInt reads an int env var with a default value.
func envInt(key string, defaultVal int) int {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}
