package dishes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/lasteaten"
	"github.com/fdg312/meal-calendar/internal/logger"
	"github.com/fdg312/meal-calendar/internal/mealdate"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 15
	MaxPageSize     = 100
)

var ErrNoDishesFound = errors.New("no dishes found")

type Options struct {
	PageSize int
	// Location turns RFC3339 last eaten timestamps into calendar days.
	Location *time.Location
}

// Service handles the dish catalogue.
type Service struct {
	storage storage.DishesStorage
	engine  *lasteaten.Engine
	opts    Options
	log     *logger.Logger
}

// NewService creates a new dishes service.
func NewService(storage storage.DishesStorage, engine *lasteaten.Engine, opts Options, log *logger.Logger) *Service {
	if opts.PageSize <= 0 || opts.PageSize > MaxPageSize {
		opts.PageSize = DefaultPageSize
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		storage: storage,
		engine:  engine,
		opts:    opts,
		log:     log.With("component", "dishes"),
	}
}

func (s *Service) PageSize() int {
	return s.opts.PageSize
}

// List returns one page of dishes matching filter, sorted by name.
func (s *Service) List(ctx context.Context, filter storage.DishFilter) ([]storage.Dish, int, storage.DishFilter, error) {
	if filter.Limit <= 0 {
		filter.Limit = s.opts.PageSize
	}
	if filter.Limit > MaxPageSize {
		filter.Limit = MaxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	items, total, err := s.storage.ListDishes(ctx, filter)
	if err != nil {
		return nil, 0, filter, fmt.Errorf("failed to list dishes: %w", err)
	}
	return items, total, filter, nil
}

// Search returns every dish whose name contains q.
func (s *Service) Search(ctx context.Context, q string) ([]storage.Dish, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("validation failed: q is required")
	}

	items, _, err := s.storage.ListDishes(ctx, storage.DishFilter{Query: q})
	if err != nil {
		return nil, fmt.Errorf("failed to search dishes: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoDishesFound
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (storage.Dish, error) {
	return s.storage.GetDish(ctx, id)
}

func (s *Service) Create(ctx context.Context, req CreateDishRequest) (storage.Dish, error) {
	dish, err := req.Validate()
	if err != nil {
		return storage.Dish{}, fmt.Errorf("validation failed: %w", err)
	}
	if err := s.storage.CreateDish(ctx, &dish); err != nil {
		return storage.Dish{}, err
	}
	s.log.Info("dish created", "dish_id", dish.ID, "name", dish.Name)
	return dish, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateDishRequest) (storage.Dish, error) {
	patch, err := req.Validate()
	if err != nil {
		return storage.Dish{}, fmt.Errorf("validation failed: %w", err)
	}
	dish, err := s.storage.UpdateDish(ctx, id, patch)
	if err != nil {
		return storage.Dish{}, err
	}
	s.log.Info("dish updated", "dish_id", id)
	return dish, nil
}

// SetLastEaten writes a last eaten date supplied directly by the client.
// It goes through the engine so future dates are skipped the same way slot
// edits skip them; the returned bool reports a skip.
func (s *Service) SetLastEaten(ctx context.Context, id uuid.UUID, raw *string) (storage.Dish, bool, error) {
	var date *civil.Date
	if raw != nil && strings.TrimSpace(*raw) != "" {
		d, err := mealdate.ParseFlexible(*raw, s.opts.Location)
		if err != nil {
			return storage.Dish{}, false, fmt.Errorf("validation failed: %w", err)
		}
		date = &d
	}

	res, err := s.engine.RecordOccurrence(ctx, id, date)
	if err != nil {
		return storage.Dish{}, false, err
	}
	if res.Skipped {
		dish, err := s.storage.GetDish(ctx, id)
		return dish, true, err
	}
	return *res.Dish, false, nil
}

// Delete removes the dish. Calendar slots keep the id; readers treat it as
// an unknown dish.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.storage.DeleteDish(ctx, id); err != nil {
		return err
	}
	s.log.Info("dish deleted", "dish_id", id)
	return nil
}
