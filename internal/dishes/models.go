package dishes

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
)

const (
	minNameLen = 2
	maxNameLen = 70
)

// DishDTO is the wire form of a dish.
type DishDTO struct {
	ID          uuid.UUID              `json:"id"`
	Name        string                 `json:"name"`
	Cuisine     storage.Cuisine        `json:"cuisine"`
	Ingredients []storage.Ingredient   `json:"ingredients"`
	Preferences []storage.FamilyMember `json:"preferences"`
	LastEaten   *civil.Date            `json:"last_eaten"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func toDTO(d storage.Dish) DishDTO {
	dto := DishDTO{
		ID:          d.ID,
		Name:        d.Name,
		Cuisine:     d.Cuisine,
		Ingredients: d.Ingredients,
		Preferences: d.Preferences,
		LastEaten:   d.LastEaten,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if dto.Ingredients == nil {
		dto.Ingredients = []storage.Ingredient{}
	}
	if dto.Preferences == nil {
		dto.Preferences = []storage.FamilyMember{}
	}
	return dto
}

func toDTOs(in []storage.Dish) []DishDTO {
	out := make([]DishDTO, len(in))
	for i, d := range in {
		out[i] = toDTO(d)
	}
	return out
}

// ListDishesResponse is the response for GET /v1/dishes.
type ListDishesResponse struct {
	Items  []DishDTO `json:"items"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

// SearchDishesResponse is the response for GET /v1/dishes/search.
type SearchDishesResponse struct {
	Items []DishDTO `json:"items"`
}

// CreateDishRequest is the request body for POST /v1/dishes.
type CreateDishRequest struct {
	Name        string   `json:"name"`
	Cuisine     string   `json:"cuisine"`
	Ingredients []string `json:"ingredients"`
	Preferences []string `json:"preferences"`
}

// Validate checks the request and builds the dish to store.
func (r *CreateDishRequest) Validate() (storage.Dish, error) {
	name, err := validateName(r.Name)
	if err != nil {
		return storage.Dish{}, err
	}

	cuisine := storage.DefaultCuisine
	if strings.TrimSpace(r.Cuisine) != "" {
		if cuisine, err = storage.ParseCuisine(r.Cuisine); err != nil {
			return storage.Dish{}, err
		}
	}

	ingredients, err := validateIngredients(r.Ingredients)
	if err != nil {
		return storage.Dish{}, err
	}
	preferences, err := validatePreferences(r.Preferences)
	if err != nil {
		return storage.Dish{}, err
	}

	return storage.Dish{
		Name:        name,
		Cuisine:     cuisine,
		Ingredients: ingredients,
		Preferences: preferences,
	}, nil
}

// UpdateDishRequest is the request body for PATCH /v1/dishes/{id}.
// Absent fields are left unchanged.
type UpdateDishRequest struct {
	Name        *string   `json:"name"`
	Cuisine     *string   `json:"cuisine"`
	Ingredients *[]string `json:"ingredients"`
	Preferences *[]string `json:"preferences"`
}

func (r *UpdateDishRequest) Validate() (storage.DishPatch, error) {
	var patch storage.DishPatch
	if r.Name == nil && r.Cuisine == nil && r.Ingredients == nil && r.Preferences == nil {
		return patch, fmt.Errorf("at least one field is required")
	}

	if r.Name != nil {
		name, err := validateName(*r.Name)
		if err != nil {
			return patch, err
		}
		patch.Name = &name
	}
	if r.Cuisine != nil {
		c, err := storage.ParseCuisine(*r.Cuisine)
		if err != nil {
			return patch, err
		}
		patch.Cuisine = &c
	}
	if r.Ingredients != nil {
		ingredients, err := validateIngredients(*r.Ingredients)
		if err != nil {
			return patch, err
		}
		patch.Ingredients = ingredients
	}
	if r.Preferences != nil {
		preferences, err := validatePreferences(*r.Preferences)
		if err != nil {
			return patch, err
		}
		patch.Preferences = preferences
	}
	return patch, nil
}

// SetLastEatenRequest is the request body for PATCH /v1/dishes/{id}/last-eaten.
// A null or missing last_eaten clears the value.
type SetLastEatenRequest struct {
	LastEaten *string `json:"last_eaten"`
}

type SetLastEatenResponse struct {
	Dish    DishDTO `json:"dish"`
	Skipped bool    `json:"skipped"`
}

func validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return "", fmt.Errorf("name must be between %d and %d characters", minNameLen, maxNameLen)
	}
	return name, nil
}

func validateIngredients(values []string) ([]storage.Ingredient, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one ingredient is required")
	}
	return storage.ParseIngredients(values)
}

func validatePreferences(values []string) ([]storage.FamilyMember, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one preference is required")
	}
	return storage.ParsePreferences(values)
}
