package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fdg312/meal-calendar/internal/auth"
	"github.com/fdg312/meal-calendar/internal/blob"
	"github.com/fdg312/meal-calendar/internal/calendar"
	"github.com/fdg312/meal-calendar/internal/config"
	"github.com/fdg312/meal-calendar/internal/dishes"
	"github.com/fdg312/meal-calendar/internal/lasteaten"
	"github.com/fdg312/meal-calendar/internal/logger"
	"github.com/fdg312/meal-calendar/internal/mealdate"
	"github.com/fdg312/meal-calendar/internal/menus"
	"github.com/fdg312/meal-calendar/internal/observability"
	"github.com/fdg312/meal-calendar/internal/planner"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/fdg312/meal-calendar/internal/storage/memory"
	"github.com/fdg312/meal-calendar/internal/storage/postgres"
	"github.com/fdg312/meal-calendar/internal/storage/sqlite"
)

// Server wires storage, services and routes.
type Server struct {
	config         *config.Config
	log            *logger.Logger
	mux            *http.ServeMux
	storage        storage.Storage
	storageKind    string
	blobStore      blob.Store
	blobMode       string
	clock          mealdate.Clock
	location       *time.Location
	metrics        *observability.Metrics
	authMiddleware *auth.Middleware
	httpServer     *http.Server
}

// Option overrides a dependency New would otherwise build from config.
type Option func(*Server)

// WithStorage skips backend selection.
func WithStorage(st storage.Storage) Option {
	return func(s *Server) {
		s.storage = st
		s.storageKind = "injected"
	}
}

// WithClock pins "today".
func WithClock(c mealdate.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithBlobStore replaces the configured blob store. A nil store forces
// inline menu downloads.
func WithBlobStore(b blob.Store) Option {
	return func(s *Server) {
		s.blobStore = b
		s.blobMode = "injected"
	}
}

// New builds the server. Storage is chosen in the order postgres, sqlite,
// memory.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*Server, error) {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{
		config:  cfg,
		log:     log,
		mux:     http.NewServeMux(),
		metrics: observability.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	loc, err := mealdate.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	s.location = loc
	if s.clock == nil {
		s.clock = mealdate.SystemClock{Location: loc}
	}

	if err := s.initStorage(ctx); err != nil {
		return nil, err
	}
	if s.blobMode == "" {
		store, mode, err := blob.NewBlobStore(ctx, cfg.Blob, log)
		if err != nil {
			return nil, err
		}
		s.blobStore, s.blobMode = store, mode
	}

	s.routes()
	return s, nil
}

func (s *Server) initStorage(ctx context.Context) error {
	if s.storage != nil {
		return nil
	}

	if s.config.DatabaseURL != "" {
		s.log.Info("connecting to postgres")
		pg, err := postgres.New(ctx, s.config.DatabaseURL)
		if err == nil {
			s.storage, s.storageKind = pg, "postgres"
			return nil
		}
		if s.config.IsProduction() {
			return fmt.Errorf("postgres unavailable: %w", err)
		}
		s.log.Warn("postgres unavailable, falling back", "error", err)
	}

	if s.config.SQLitePath != "" {
		st, err := sqlite.New(s.config.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		s.log.Info("using sqlite storage", "path", st.Path())
		s.storage, s.storageKind = st, "sqlite"
		return nil
	}

	s.log.Info("using in-memory storage")
	s.storage, s.storageKind = memory.New(), "memory"
	return nil
}

func (s *Server) routes() {
	dishStore := s.storage.GetDishesStorage()
	calendarStore := s.storage.GetCalendarStorage()
	engine := lasteaten.New(dishStore, calendarStore, s.clock, s.log, s.metrics)

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	// Auth API
	authService := auth.NewService(s.config)
	authHandler := auth.NewHandlers(authService)
	s.authMiddleware = auth.NewMiddleware(s.config, authService)
	s.mux.HandleFunc("POST /v1/auth/login", authHandler.HandleLogin)

	// Dishes API
	dishService := dishes.NewService(dishStore, engine, dishes.Options{
		PageSize: s.config.DishesPageSize,
		Location: s.location,
	}, s.log)
	dishHandler := dishes.NewHandler(dishService)
	s.mux.HandleFunc("GET /v1/dishes", dishHandler.HandleList)
	s.mux.HandleFunc("GET /v1/dishes/search", dishHandler.HandleSearch)
	s.mux.HandleFunc("POST /v1/dishes", dishHandler.HandleCreate)
	s.mux.HandleFunc("GET /v1/dishes/{id}", dishHandler.HandleGet)
	s.mux.HandleFunc("PATCH /v1/dishes/{id}", dishHandler.HandleUpdate)
	s.mux.HandleFunc("DELETE /v1/dishes/{id}", dishHandler.HandleDelete)
	s.mux.HandleFunc("PATCH /v1/dishes/{id}/last-eaten", dishHandler.HandleSetLastEaten)

	// Calendar API
	calendarService := calendar.NewService(calendarStore, dishStore, engine, calendar.Options{
		WeeksAhead:  s.config.WeeksAhead,
		Concurrency: s.config.RecomputeConcurrency,
	}, s.log)
	calendarHandler := calendar.NewHandler(calendarService)
	s.mux.HandleFunc("GET /v1/calendar/weeks", calendarHandler.HandleListWeeks)
	s.mux.HandleFunc("GET /v1/calendar/weeks/{week_start}", calendarHandler.HandleGetWeek)
	s.mux.HandleFunc("PUT /v1/calendar/weeks/{week_start}", calendarHandler.HandleSaveWeek)
	s.mux.HandleFunc("POST /v1/calendar/initialise", calendarHandler.HandleInitialise)
	s.mux.HandleFunc("GET /v1/calendar/dishes/{id}/last-occurrence", calendarHandler.HandleLastOccurrence)

	// Planner API
	plannerService := planner.NewService(dishStore, calendarStore, engine, planner.Options{
		LockPastDays: s.config.LockPastDays,
		Concurrency:  s.config.RecomputeConcurrency,
	}, s.log, s.metrics)
	plannerHandler := planner.NewHandler(plannerService)
	s.mux.HandleFunc("POST /v1/planner/slots/{date}/{meal}/dishes", plannerHandler.HandleAddDish)
	s.mux.HandleFunc("DELETE /v1/planner/slots/{date}/{meal}/dishes/{dish_id}", plannerHandler.HandleRemoveDish)
	s.mux.HandleFunc("DELETE /v1/planner/slots/{date}/{meal}", plannerHandler.HandleClearSlot)
	s.mux.HandleFunc("POST /v1/planner/swap", plannerHandler.HandleSwap)

	// Menus API
	menuService := menus.NewService(calendarStore, dishStore, s.blobStore, s.config.Blob.S3.PresignTTLSeconds, s.log)
	menuHandler := menus.NewHandlers(menuService)
	s.mux.HandleFunc("GET /v1/menus/{week_start}", menuHandler.HandleExport)
}

// Handler returns the mux wrapped in the middleware chain
// (outermost first): metrics, CORS, rate limit, auth.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = s.authMiddleware.RequireAuth(handler)
	handler = RateLimitMiddleware(s.config, handler)
	handler = CORSMiddleware(s.config, handler)
	return s.metrics.Middleware(handler)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := s.storage.Ping(ctx); err != nil {
		s.log.Warn("health check failed", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  status,
		"storage": s.storageKind,
		"blob":    s.blobMode,
		"today":   s.clock.Today().String(),
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("server listening",
		"addr", addr,
		"storage", s.storageKind,
		"blob_mode", s.blobMode,
		"auth_required", s.config.AuthRequired,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Close releases storage.
func (s *Server) Close() error {
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
