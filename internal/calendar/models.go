package calendar

import (
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/mealdate"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
)

// WeekDTO is the wire form of a week entry. Exists is false for a week that
// has never been written.
type WeekDTO struct {
	WeekStart   civil.Date      `json:"week_start"`
	Lunch       storage.SlotMap `json:"lunch"`
	Dinner      storage.SlotMap `json:"dinner"`
	Exists      bool            `json:"exists"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
	LastUpdated *time.Time      `json:"last_updated,omitempty"`
}

func toDTO(w storage.WeekEntry, exists bool) WeekDTO {
	dto := WeekDTO{
		WeekStart: w.WeekStart,
		Lunch:     w.Lunch,
		Dinner:    w.Dinner,
		Exists:    exists,
	}
	if dto.Lunch == nil {
		dto.Lunch = storage.SlotMap{}
	}
	if dto.Dinner == nil {
		dto.Dinner = storage.SlotMap{}
	}
	if exists {
		created, updated := w.CreatedAt, w.LastUpdated
		dto.CreatedAt = &created
		dto.LastUpdated = &updated
	}
	return dto
}

type ListWeeksResponse struct {
	Items []WeekDTO `json:"items"`
}

// SaveWeekRequest is the request body for PUT /v1/calendar/weeks/{week_start}.
// Keys are YYYY-MM-DD days inside the week.
type SaveWeekRequest struct {
	Lunch  map[string][]string `json:"lunch"`
	Dinner map[string][]string `json:"dinner"`
}

// Validate builds the week entry for weekStart.
func (r *SaveWeekRequest) Validate(weekStart civil.Date) (storage.WeekEntry, error) {
	if !mealdate.IsWeekStart(weekStart) {
		return storage.WeekEntry{}, fmt.Errorf("week_start %s is not a Monday", weekStart)
	}

	entry := storage.NewWeekEntry(weekStart)
	for _, meal := range storage.MealTypes {
		raw := r.Lunch
		if meal == storage.MealDinner {
			raw = r.Dinner
		}
		for key, values := range raw {
			day, err := mealdate.Parse(key)
			if err != nil {
				return storage.WeekEntry{}, fmt.Errorf("%s: %w", meal, err)
			}
			if !mealdate.InWeek(weekStart, day) {
				return storage.WeekEntry{}, fmt.Errorf("%s: %s is outside the week of %s", meal, day, weekStart)
			}
			if len(values) > storage.MaxDishesPerSlot {
				return storage.WeekEntry{}, fmt.Errorf("%s %s: at most %d dishes per slot", meal, day, storage.MaxDishesPerSlot)
			}
			ids := make([]uuid.UUID, 0, len(values))
			for _, v := range values {
				id, err := uuid.Parse(v)
				if err != nil {
					return storage.WeekEntry{}, fmt.Errorf("%s %s: %q is not a UUID", meal, day, v)
				}
				if slices.Contains(ids, id) {
					return storage.WeekEntry{}, fmt.Errorf("%s %s: dish %s appears twice", meal, day, id)
				}
				ids = append(ids, id)
			}
			entry.SetDishes(meal, day, ids)
		}
	}
	return entry, nil
}

type SaveWeekResponse struct {
	Week       WeekDTO          `json:"week"`
	Reconciled []ReconciledDish `json:"reconciled"`
}

type ReconciledDish struct {
	DishID    uuid.UUID   `json:"dish_id"`
	LastEaten *civil.Date `json:"last_eaten"`
	Missing   bool        `json:"missing,omitempty"`
	Warning   string      `json:"warning,omitempty"`
}

type InitialisedWeek struct {
	WeekStart civil.Date `json:"week_start"`
	Created   bool       `json:"created"`
}

type InitialiseResponse struct {
	Weeks []InitialisedWeek `json:"weeks"`
}

type LastOccurrenceResponse struct {
	DishID         uuid.UUID   `json:"dish_id"`
	LastOccurrence *civil.Date `json:"last_occurrence"`
}
