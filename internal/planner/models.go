package planner

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/mealdate"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
)

var (
	ErrSlotFull        = fmt.Errorf("slot already holds %d dishes", storage.MaxDishesPerSlot)
	ErrDuplicateInSlot = errors.New("dish is already in this slot")
	ErrNotInSlot       = errors.New("dish is not in this slot")
	ErrSameSlot        = errors.New("cannot swap a slot with itself")
	ErrDateLocked      = errors.New("days before today are read-only")

	// ErrLastEatenUpdate means the slot write committed but a dish's last
	// eaten date could not be brought in line with it.
	ErrLastEatenUpdate = errors.New("slot saved but last eaten update failed")
)

// SlotRef addresses one meal on one day.
type SlotRef struct {
	Date civil.Date       `json:"date"`
	Meal storage.MealType `json:"meal"`
}

func (s SlotRef) WeekStart() civil.Date {
	return mealdate.WeekStart(s.Date)
}

func (s SlotRef) String() string {
	return s.Date.String() + "/" + string(s.Meal)
}

// ParseSlotRef parses path values like "2024-03-14" and "dinner".
func ParseSlotRef(date, meal string) (SlotRef, error) {
	d, err := mealdate.Parse(date)
	if err != nil {
		return SlotRef{}, err
	}
	m, err := storage.ParseMealType(meal)
	if err != nil {
		return SlotRef{}, err
	}
	return SlotRef{Date: d, Meal: m}, nil
}

type SlotDTO struct {
	WeekStart civil.Date       `json:"week_start"`
	Date      civil.Date       `json:"date"`
	Meal      storage.MealType `json:"meal"`
	DishIDs   []uuid.UUID      `json:"dish_ids"`
}

func toSlotDTO(week storage.WeekEntry, ref SlotRef) SlotDTO {
	ids := week.Dishes(ref.Meal, ref.Date)
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return SlotDTO{
		WeekStart: week.WeekStart,
		Date:      ref.Date,
		Meal:      ref.Meal,
		DishIDs:   ids,
	}
}

// Last eaten actions reported back to the caller.
const (
	ActionRecorded   = "recorded"
	ActionSkipped    = "skipped"
	ActionRecomputed = "recomputed"
	ActionStale      = "stale"
	ActionNotFound   = "dish_not_found"
)

type LastEatenChange struct {
	DishID    uuid.UUID   `json:"dish_id"`
	Action    string      `json:"action"`
	LastEaten *civil.Date `json:"last_eaten"`
	Warning   string      `json:"warning,omitempty"`
}

type Result struct {
	Slots     []SlotDTO         `json:"slots"`
	LastEaten []LastEatenChange `json:"last_eaten"`
}

type AddDishRequest struct {
	DishID string `json:"dish_id"`
}

func (r AddDishRequest) Validate() (uuid.UUID, error) {
	if r.DishID == "" {
		return uuid.Nil, fmt.Errorf("dish_id is required")
	}
	id, err := uuid.Parse(r.DishID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("dish_id must be a UUID")
	}
	return id, nil
}

type SlotInput struct {
	Date string `json:"date"`
	Meal string `json:"meal"`
}

type SwapRequest struct {
	From SlotInput `json:"from"`
	To   SlotInput `json:"to"`
}

func (r SwapRequest) Validate() (SlotRef, SlotRef, error) {
	from, err := ParseSlotRef(r.From.Date, r.From.Meal)
	if err != nil {
		return SlotRef{}, SlotRef{}, fmt.Errorf("from: %w", err)
	}
	to, err := ParseSlotRef(r.To.Date, r.To.Meal)
	if err != nil {
		return SlotRef{}, SlotRef{}, fmt.Errorf("to: %w", err)
	}
	if from == to {
		return SlotRef{}, SlotRef{}, ErrSameSlot
	}
	return from, to, nil
}
