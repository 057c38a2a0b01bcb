package memory

import (
	"context"
	"time"

	"github.com/fdg312/meal-calendar/internal/storage"
)

// MemoryStorage is the in-process backend used for local development and tests.
type MemoryStorage struct {
	dishes   *dishesStorage
	calendar *calendarStorage
}

// New creates an empty MemoryStorage.
func New() *MemoryStorage {
	return &MemoryStorage{
		dishes:   newDishesStorage(),
		calendar: newCalendarStorage(),
	}
}

func (m *MemoryStorage) GetDishesStorage() storage.DishesStorage {
	return m.dishes
}

func (m *MemoryStorage) GetCalendarStorage() storage.CalendarStorage {
	return m.calendar
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

// State is a point-in-time copy of everything the store holds.
type State struct {
	Dishes []storage.Dish      `json:"dishes"`
	Weeks  []storage.WeekEntry `json:"weeks"`
}

// Snapshot copies the current state.
func (m *MemoryStorage) Snapshot() State {
	return State{
		Dishes: m.dishes.all(),
		Weeks:  m.calendar.all(),
	}
}

// Restore replaces the current state with st.
func (m *MemoryStorage) Restore(st State) {
	m.dishes.replace(st.Dishes)
	m.calendar.replace(st.Weeks)
}

func now() time.Time {
	return time.Now().UTC()
}
