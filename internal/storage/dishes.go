package storage

import (
	"context"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Dish is a catalogue entry. LastEaten is nil when no past occurrence is known.
type Dish struct {
	ID          uuid.UUID
	Name        string
	Cuisine     Cuisine
	Ingredients []Ingredient
	Preferences []FamilyMember
	LastEaten   *civil.Date
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DishFilter narrows ListDishes. Ingredients and Preferences are all-of.
type DishFilter struct {
	Query       string
	Cuisine     Cuisine
	Ingredients []Ingredient
	Preferences []FamilyMember
	Limit       int
	Offset      int
}

// Matches applies the filter predicates (not pagination) to one dish.
func (f DishFilter) Matches(d Dish) bool {
	if q := strings.TrimSpace(f.Query); q != "" {
		if !strings.Contains(strings.ToLower(d.Name), strings.ToLower(q)) {
			return false
		}
	}
	if f.Cuisine != "" && d.Cuisine != f.Cuisine {
		return false
	}
	for _, ing := range f.Ingredients {
		if !slices.Contains(d.Ingredients, ing) {
			return false
		}
	}
	for _, p := range f.Preferences {
		if !slices.Contains(d.Preferences, p) {
			return false
		}
	}
	return true
}

// DishPatch carries a partial update; nil fields are left untouched.
type DishPatch struct {
	Name        *string
	Cuisine     *Cuisine
	Ingredients []Ingredient
	Preferences []FamilyMember
}

// DishesStorage is the dish store.
type DishesStorage interface {
	// ListDishes returns one page of matching dishes sorted by name, plus the total match count.
	ListDishes(ctx context.Context, filter DishFilter) ([]Dish, int, error)

	GetDish(ctx context.Context, id uuid.UUID) (Dish, error)

	// CreateDish assigns ID and timestamps. Returns ErrDuplicateName on a name clash.
	CreateDish(ctx context.Context, dish *Dish) error

	UpdateDish(ctx context.Context, id uuid.UUID, patch DishPatch) (Dish, error)

	// SetLastEaten overwrites last_eaten (nil clears it).
	SetLastEaten(ctx context.Context, id uuid.UUID, date *civil.Date) (Dish, error)

	DeleteDish(ctx context.Context, id uuid.UUID) error
}
