package storage

import (
	"context"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// MaxDishesPerSlot caps how many dishes one lunch or dinner can hold.
const MaxDishesPerSlot = 5

// SlotMap maps a day (YYYY-MM-DD when encoded) to the ordered dish ids planned
// for that meal. Days with no dishes are absent.
type SlotMap map[civil.Date][]uuid.UUID

func (m SlotMap) clone() SlotMap {
	out := make(SlotMap, len(m))
	for day, ids := range m {
		out[day] = slices.Clone(ids)
	}
	return out
}

// WeekEntry holds both meal slots for the seven days starting at WeekStart (a Monday).
type WeekEntry struct {
	WeekStart   civil.Date
	Lunch       SlotMap
	Dinner      SlotMap
	CreatedAt   time.Time
	LastUpdated time.Time
}

func NewWeekEntry(weekStart civil.Date) WeekEntry {
	return WeekEntry{
		WeekStart: weekStart,
		Lunch:     SlotMap{},
		Dinner:    SlotMap{},
	}
}

func (w WeekEntry) Slot(meal MealType) SlotMap {
	if meal == MealDinner {
		return w.Dinner
	}
	return w.Lunch
}

// Dishes returns a copy of the ids planned for meal on day.
func (w WeekEntry) Dishes(meal MealType, day civil.Date) []uuid.UUID {
	return slices.Clone(w.Slot(meal)[day])
}

func (w WeekEntry) Contains(meal MealType, day civil.Date, id uuid.UUID) bool {
	return slices.Contains(w.Slot(meal)[day], id)
}

// SetDishes replaces the ids for meal on day. An empty list removes the day.
func (w *WeekEntry) SetDishes(meal MealType, day civil.Date, ids []uuid.UUID) {
	if w.Lunch == nil {
		w.Lunch = SlotMap{}
	}
	if w.Dinner == nil {
		w.Dinner = SlotMap{}
	}
	slot := w.Slot(meal)
	if len(ids) == 0 {
		delete(slot, day)
		return
	}
	slot[day] = slices.Clone(ids)
}

func (w WeekEntry) IsEmpty() bool {
	for _, ids := range w.Lunch {
		if len(ids) > 0 {
			return false
		}
	}
	for _, ids := range w.Dinner {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

// Clone deep-copies the slot maps.
func (w WeekEntry) Clone() WeekEntry {
	out := w
	out.Lunch = w.Lunch.clone()
	out.Dinner = w.Dinner.clone()
	return out
}

// WeekFilter bounds ListWeeksDescending. Zero dates mean unbounded.
type WeekFilter struct {
	From         civil.Date
	To           civil.Date
	NonEmptyOnly bool
}

func (f WeekFilter) Matches(w WeekEntry) bool {
	if !f.From.IsZero() && w.WeekStart.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && w.WeekStart.After(f.To) {
		return false
	}
	if f.NonEmptyOnly && w.IsEmpty() {
		return false
	}
	return true
}

// CalendarStorage is the week-entry store.
type CalendarStorage interface {
	GetWeek(ctx context.Context, weekStart civil.Date) (WeekEntry, error)

	// SaveWeek upserts the entry keyed by WeekStart and stamps LastUpdated
	// (and CreatedAt on insert) back onto it.
	SaveWeek(ctx context.Context, entry *WeekEntry) error

	// SaveWeeks writes several entries; backends that support it do so atomically.
	SaveWeeks(ctx context.Context, entries []*WeekEntry) error

	// CreateWeekIfMissing inserts an empty entry and reports whether it did.
	CreateWeekIfMissing(ctx context.Context, weekStart civil.Date) (bool, error)

	// ListWeeksDescending returns entries ordered by WeekStart, newest first.
	ListWeeksDescending(ctx context.Context, filter WeekFilter) ([]WeekEntry, error)
}
