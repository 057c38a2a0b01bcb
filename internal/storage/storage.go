package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a dish or week entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName is returned when a dish name collides case-insensitively.
	ErrDuplicateName = errors.New("dish name already exists")

	// ErrUnavailable wraps every backend failure so callers can tell a broken
	// store apart from a missing record.
	ErrUnavailable = errors.New("storage unavailable")
)

// Storage is the root handle every backend returns.
type Storage interface {
	GetDishesStorage() DishesStorage
	GetCalendarStorage() CalendarStorage

	// Ping checks the backend is reachable (used by /healthz).
	Ping(ctx context.Context) error

	// Close releases connections and flushes pending state.
	Close() error
}
