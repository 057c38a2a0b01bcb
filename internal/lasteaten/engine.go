// Package lasteaten keeps each dish's LastEaten consistent with the calendar.
//
// LastEaten is the newest day on or before today on which the dish was
// planned. The editor calls RecordOccurrence when a dish lands on such a day
// and RecomputeLastEaten when a dish leaves today's slots; a recompute scans
// the stored weeks newest first for the next most recent past occurrence.
//
// Slot writes and dish writes are two separate store calls. If the process
// dies between them LastEaten stays stale until the next edit touching that
// dish triggers another recompute.
package lasteaten

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/logger"
	"github.com/fdg312/meal-calendar/internal/mealdate"
	"github.com/fdg312/meal-calendar/internal/observability"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
)

const (
	SourceStore    = "store"
	SourceSnapshot = "snapshot"
)

// DishStore is the subset of the dish store the engine writes through.
type DishStore interface {
	GetDish(ctx context.Context, id uuid.UUID) (storage.Dish, error)
	SetLastEaten(ctx context.Context, id uuid.UUID, date *civil.Date) (storage.Dish, error)
}

// CalendarStore is the subset of the calendar store the engine reads.
type CalendarStore interface {
	GetWeek(ctx context.Context, weekStart civil.Date) (storage.WeekEntry, error)
	ListWeeksDescending(ctx context.Context, filter storage.WeekFilter) ([]storage.WeekEntry, error)
}

// Snapshot is calendar data the caller already holds. It is scanned only
// when the store cannot answer. Complete marks it as every week that exists.
type Snapshot struct {
	Weeks    map[civil.Date]storage.WeekEntry
	Complete bool
}

// SnapshotOf builds an incomplete snapshot from weeks the caller has loaded.
func SnapshotOf(weeks ...storage.WeekEntry) Snapshot {
	s := Snapshot{Weeks: make(map[civil.Date]storage.WeekEntry, len(weeks))}
	for _, w := range weeks {
		s.Weeks[w.WeekStart] = w
	}
	return s
}

func (s Snapshot) descending() []storage.WeekEntry {
	out := make([]storage.WeekEntry, 0, len(s.Weeks))
	for _, w := range s.Weeks {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.After(out[j].WeekStart) })
	return out
}

// RecordResult reports what RecordOccurrence did.
type RecordResult struct {
	Applied bool          `json:"applied"`
	Skipped bool          `json:"skipped"`
	Dish    *storage.Dish `json:"-"`
}

// RecomputeResult reports what a recompute settled on.
type RecomputeResult struct {
	DishID    uuid.UUID   `json:"dish_id"`
	LastEaten *civil.Date `json:"last_eaten"`
	Source    string      `json:"source"`
	// Stale is set when the scan was partial and found nothing, so the
	// previous value was kept instead of being cleared.
	Stale   bool   `json:"stale,omitempty"`
	Warning string `json:"warning,omitempty"`
}

type Engine struct {
	dishes   DishStore
	calendar CalendarStore
	clock    mealdate.Clock
	log      *logger.Logger
	metrics  *observability.Metrics
}

func New(dishes DishStore, calendar CalendarStore, clock mealdate.Clock, log *logger.Logger, metrics *observability.Metrics) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		dishes:   dishes,
		calendar: calendar,
		clock:    clock,
		log:      log.With("component", "lasteaten"),
		metrics:  metrics,
	}
}

// Today is the engine's notion of the current calendar day.
func (e *Engine) Today() civil.Date {
	return e.clock.Today()
}

// RecordOccurrence sets the dish's LastEaten to date, or clears it when date
// is nil. Dates after today are ignored and reported as skipped. The write is
// unconditional: callers pass the date that should win.
//
// A missing dish yields an error wrapping storage.ErrNotFound, which callers
// treat as non-fatal.
func (e *Engine) RecordOccurrence(ctx context.Context, dishID uuid.UUID, date *civil.Date) (RecordResult, error) {
	if date != nil && date.After(e.clock.Today()) {
		e.log.Debug("future date skipped", "dish_id", dishID, "date", date.String())
		e.metrics.ObserveRecord("skipped")
		return RecordResult{Skipped: true}, nil
	}

	dish, err := e.dishes.SetLastEaten(ctx, dishID, date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.log.Warn("dish not found while recording occurrence", "dish_id", dishID)
			e.metrics.ObserveRecord("not_found")
			return RecordResult{}, err
		}
		e.metrics.ObserveRecord("error")
		return RecordResult{}, fmt.Errorf("failed to record occurrence of %s: %w", dishID, err)
	}

	if date == nil {
		e.metrics.ObserveRecord("cleared")
	} else {
		e.metrics.ObserveRecord("applied")
	}
	return RecordResult{Applied: true, Dish: &dish}, nil
}

// RecomputeLastEaten re-derives LastEaten from the newest occurrence strictly
// before today. It is called after a dish leaves a slot dated today.
//
// When the store cannot list weeks the snapshot is scanned instead. A hit
// from a partial scan is recorded; a miss clears LastEaten only if the
// snapshot is complete, otherwise the old value is kept and a warning is
// returned in the result.
func (e *Engine) RecomputeLastEaten(ctx context.Context, dishID uuid.UUID, snap Snapshot) (RecomputeResult, error) {
	return e.recompute(ctx, dishID, snap, false)
}

// Reconcile is RecomputeLastEaten with today counted as an occurrence. Bulk
// week imports use it because they may add as well as remove today's dishes.
func (e *Engine) Reconcile(ctx context.Context, dishID uuid.UUID, snap Snapshot) (RecomputeResult, error) {
	return e.recompute(ctx, dishID, snap, true)
}

// LastOccurrence returns the newest day strictly before today on which the
// dish is planned, or nil. It reads only.
func (e *Engine) LastOccurrence(ctx context.Context, dishID uuid.UUID) (*civil.Date, error) {
	today := e.clock.Today()
	weeks, err := e.calendar.ListWeeksDescending(ctx, scanFilter(today))
	if err != nil {
		return nil, fmt.Errorf("failed to scan calendar: %w", err)
	}
	return latestOccurrence(weeks, dishID, today, false), nil
}

func (e *Engine) recompute(ctx context.Context, dishID uuid.UUID, snap Snapshot, includeToday bool) (RecomputeResult, error) {
	result := RecomputeResult{DishID: dishID, Source: SourceStore}

	if _, err := e.dishes.GetDish(ctx, dishID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.log.Warn("dish not found while recomputing", "dish_id", dishID)
			e.metrics.ObserveRecompute("not_found")
			return result, err
		}
		e.metrics.ObserveRecompute("error")
		return result, fmt.Errorf("failed to load dish %s: %w", dishID, err)
	}

	today := e.clock.Today()
	exhaustive := true
	weeks, err := e.calendar.ListWeeksDescending(ctx, scanFilter(today))
	switch {
	case err != nil:
		e.log.Warn("calendar scan failed, falling back to loaded weeks",
			"dish_id", dishID, "loaded_weeks", len(snap.Weeks), "complete", snap.Complete, "error", err)
		weeks = e.refresh(ctx, snap)
		exhaustive = snap.Complete
		result.Source = SourceSnapshot
	case len(weeks) == 0 && len(snap.Weeks) > 0:
		weeks = snap.descending()
		result.Source = SourceSnapshot
	}

	best := latestOccurrence(weeks, dishID, today, includeToday)
	if best != nil {
		if _, err := e.RecordOccurrence(ctx, dishID, best); err != nil {
			e.metrics.ObserveRecompute("error")
			return result, err
		}
		e.metrics.ObserveRecompute("found")
		result.LastEaten = best
		return result, nil
	}

	if !exhaustive {
		result.Stale = true
		result.Warning = "calendar history unavailable; last eaten left unchanged"
		e.log.Warn("no occurrence in partial history, keeping last eaten", "dish_id", dishID)
		e.metrics.ObserveRecompute("stale")
		return result, nil
	}

	if _, err := e.RecordOccurrence(ctx, dishID, nil); err != nil {
		e.metrics.ObserveRecompute("error")
		return result, err
	}
	e.metrics.ObserveRecompute("cleared")
	return result, nil
}

// refresh re-reads each snapshot week individually, keeping the caller's copy
// for any week the store still cannot return.
func (e *Engine) refresh(ctx context.Context, snap Snapshot) []storage.WeekEntry {
	weeks := snap.descending()
	for i, w := range weeks {
		fresh, err := e.calendar.GetWeek(ctx, w.WeekStart)
		if err == nil {
			weeks[i] = fresh
		}
	}
	return weeks
}

// scanFilter skips empty weeks and weeks that start after today's week,
// neither of which can hold a past occurrence.
func scanFilter(today civil.Date) storage.WeekFilter {
	return storage.WeekFilter{
		To:           mealdate.WeekStart(today),
		NonEmptyOnly: true,
	}
}

// latestOccurrence walks weeks (newest first), lunch then dinner, and returns
// the newest day before today (or on today when includeToday) holding dishID.
func latestOccurrence(weeks []storage.WeekEntry, dishID uuid.UUID, today civil.Date, includeToday bool) *civil.Date {
	var best *civil.Date
	for _, w := range weeks {
		// Every day of this and any older week is on or before w.WeekStart+6.
		if best != nil && !w.WeekStart.AddDays(6).After(*best) {
			break
		}
		for _, meal := range storage.MealTypes {
			for day, ids := range w.Slot(meal) {
				if day.After(today) || (!includeToday && day == today) {
					continue
				}
				if best != nil && !day.After(*best) {
					continue
				}
				if slices.Contains(ids, dishID) {
					d := day
					best = &d
				}
			}
		}
	}
	return best
}
