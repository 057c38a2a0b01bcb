package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
)

type dishesStorage struct {
	mu     sync.RWMutex
	dishes map[uuid.UUID]*storage.Dish
}

func newDishesStorage() *dishesStorage {
	return &dishesStorage{
		dishes: make(map[uuid.UUID]*storage.Dish),
	}
}

func (s *dishesStorage) ListDishes(ctx context.Context, filter storage.DishFilter) ([]storage.Dish, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]storage.Dish, 0)
	for _, d := range s.dishes {
		if filter.Matches(*d) {
			results = append(results, copyDish(d))
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return strings.ToLower(results[i].Name) < strings.ToLower(results[j].Name)
	})

	total := len(results)

	if filter.Offset >= len(results) {
		return []storage.Dish{}, total, nil
	}
	end := len(results)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}

	return results[filter.Offset:end], total, nil
}

func (s *dishesStorage) GetDish(ctx context.Context, id uuid.UUID) (storage.Dish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.dishes[id]
	if !ok {
		return storage.Dish{}, fmt.Errorf("dish %s: %w", id, storage.ErrNotFound)
	}
	return copyDish(d), nil
}

func (s *dishesStorage) CreateDish(ctx context.Context, dish *storage.Dish) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTaken(dish.Name, uuid.Nil) {
		return storage.ErrDuplicateName
	}

	if dish.ID == uuid.Nil {
		dish.ID = uuid.New()
	}
	ts := now()
	dish.CreatedAt = ts
	dish.UpdatedAt = ts

	stored := copyDish(dish)
	s.dishes[dish.ID] = &stored
	return nil
}

func (s *dishesStorage) UpdateDish(ctx context.Context, id uuid.UUID, patch storage.DishPatch) (storage.Dish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.dishes[id]
	if !ok {
		return storage.Dish{}, fmt.Errorf("dish %s: %w", id, storage.ErrNotFound)
	}

	if patch.Name != nil {
		if s.nameTaken(*patch.Name, id) {
			return storage.Dish{}, storage.ErrDuplicateName
		}
		existing.Name = *patch.Name
	}
	if patch.Cuisine != nil {
		existing.Cuisine = *patch.Cuisine
	}
	if patch.Ingredients != nil {
		existing.Ingredients = slices.Clone(patch.Ingredients)
	}
	if patch.Preferences != nil {
		existing.Preferences = slices.Clone(patch.Preferences)
	}
	existing.UpdatedAt = now()

	return copyDish(existing), nil
}

func (s *dishesStorage) SetLastEaten(ctx context.Context, id uuid.UUID, date *civil.Date) (storage.Dish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.dishes[id]
	if !ok {
		return storage.Dish{}, fmt.Errorf("dish %s: %w", id, storage.ErrNotFound)
	}

	if date == nil {
		existing.LastEaten = nil
	} else {
		d := *date
		existing.LastEaten = &d
	}
	existing.UpdatedAt = now()

	return copyDish(existing), nil
}

func (s *dishesStorage) DeleteDish(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dishes[id]; !ok {
		return fmt.Errorf("dish %s: %w", id, storage.ErrNotFound)
	}
	delete(s.dishes, id)
	return nil
}

// nameTaken must be called with the lock held.
func (s *dishesStorage) nameTaken(name string, except uuid.UUID) bool {
	for id, d := range s.dishes {
		if id != except && strings.EqualFold(d.Name, name) {
			return true
		}
	}
	return false
}

func (s *dishesStorage) all() []storage.Dish {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.Dish, 0, len(s.dishes))
	for _, d := range s.dishes {
		out = append(out, copyDish(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *dishesStorage) replace(dishes []storage.Dish) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dishes = make(map[uuid.UUID]*storage.Dish, len(dishes))
	for i := range dishes {
		d := copyDish(&dishes[i])
		s.dishes[d.ID] = &d
	}
}

func copyDish(d *storage.Dish) storage.Dish {
	out := *d
	out.Ingredients = slices.Clone(d.Ingredients)
	out.Preferences = slices.Clone(d.Preferences)
	if d.LastEaten != nil {
		le := *d.LastEaten
		out.LastEaten = &le
	}
	return out
}
