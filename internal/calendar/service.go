// Package calendar serves whole weeks: reading them, bulk saving them,
// creating the upcoming ones and answering when a dish last appeared.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/lasteaten"
	"github.com/fdg312/meal-calendar/internal/logger"
	"github.com/fdg312/meal-calendar/internal/mealdate"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrReconcileFailed means the week was saved but some dish's last eaten
// date could not be brought in line with it.
var ErrReconcileFailed = errors.New("week saved but last eaten reconcile failed")

type Options struct {
	WeeksAhead  int
	Concurrency int
}

// Service handles calendar weeks.
type Service struct {
	calendar storage.CalendarStorage
	dishes   storage.DishesStorage
	engine   *lasteaten.Engine
	opts     Options
	log      *logger.Logger
}

// NewService creates a new calendar service.
func NewService(calendar storage.CalendarStorage, dishes storage.DishesStorage, engine *lasteaten.Engine, opts Options, log *logger.Logger) *Service {
	if opts.WeeksAhead < 0 {
		opts.WeeksAhead = 0
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		calendar: calendar,
		dishes:   dishes,
		engine:   engine,
		opts:     opts,
		log:      log.With("component", "calendar"),
	}
}

// GetWeek returns the week containing day. A week never written comes back
// empty with exists=false.
func (s *Service) GetWeek(ctx context.Context, day civil.Date) (storage.WeekEntry, bool, error) {
	weekStart := mealdate.WeekStart(day)
	w, err := s.calendar.GetWeek(ctx, weekStart)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.NewWeekEntry(weekStart), false, nil
	}
	if err != nil {
		return storage.WeekEntry{}, false, fmt.Errorf("failed to get week %s: %w", weekStart, err)
	}
	return w, true, nil
}

// ListWeeks returns stored weeks between from and to (either may be zero),
// newest first.
func (s *Service) ListWeeks(ctx context.Context, from, to civil.Date) ([]storage.WeekEntry, error) {
	filter := storage.WeekFilter{}
	if !from.IsZero() {
		filter.From = mealdate.WeekStart(from)
	}
	if !to.IsZero() {
		filter.To = mealdate.WeekStart(to)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, fmt.Errorf("validation failed: from must not be after to")
	}

	weeks, err := s.calendar.ListWeeksDescending(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list weeks: %w", err)
	}
	return weeks, nil
}

// SaveWeek overwrites a whole week, then reconciles every dish whose
// occurrences on days up to today changed.
func (s *Service) SaveWeek(ctx context.Context, weekStart civil.Date, req SaveWeekRequest) (storage.WeekEntry, []ReconciledDish, error) {
	entry, err := req.Validate(weekStart)
	if err != nil {
		return storage.WeekEntry{}, nil, fmt.Errorf("validation failed: %w", err)
	}

	previous, _, err := s.GetWeek(ctx, weekStart)
	if err != nil {
		return storage.WeekEntry{}, nil, err
	}

	if err := s.calendar.SaveWeek(ctx, &entry); err != nil {
		return storage.WeekEntry{}, nil, fmt.Errorf("failed to save week %s: %w", weekStart, err)
	}
	s.log.Info("week saved", "week_start", weekStart.String())

	changed := changedDishes(previous, entry, s.engine.Today())
	if len(changed) == 0 {
		return entry, []ReconciledDish{}, nil
	}

	reconciled, err := s.reconcile(ctx, changed, entry)
	if err != nil {
		s.log.Error("reconcile failed after week save", "week_start", weekStart.String(), "error", err)
		return entry, nil, fmt.Errorf("%w: %w", ErrReconcileFailed, err)
	}
	return entry, reconciled, nil
}

func (s *Service) reconcile(ctx context.Context, ids []uuid.UUID, written storage.WeekEntry) ([]ReconciledDish, error) {
	snap := lasteaten.SnapshotOf(written)
	out := make([]ReconciledDish, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			res, err := s.engine.Reconcile(gctx, id, snap)
			rd := ReconciledDish{DishID: id, LastEaten: res.LastEaten, Warning: res.Warning}
			switch {
			case errors.Is(err, storage.ErrNotFound):
				rd.Missing = true
			case err != nil:
				return err
			}
			mu.Lock()
			out[i] = rd
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// changedDishes lists dishes whose set of days up to today differs between
// the two versions of a week, in a stable order.
func changedDishes(before, after storage.WeekEntry, today civil.Date) []uuid.UUID {
	a, b := pastOccurrences(before, today), pastOccurrences(after, today)
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	diff := func(x, y map[uuid.UUID]map[civil.Date]bool) {
		for id, days := range x {
			if seen[id] {
				continue
			}
			other := y[id]
			if len(other) != len(days) {
				seen[id] = true
				out = append(out, id)
				continue
			}
			for day := range days {
				if !other[day] {
					seen[id] = true
					out = append(out, id)
					break
				}
			}
		}
	}
	diff(a, b)
	diff(b, a)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func pastOccurrences(w storage.WeekEntry, today civil.Date) map[uuid.UUID]map[civil.Date]bool {
	out := make(map[uuid.UUID]map[civil.Date]bool)
	for _, meal := range storage.MealTypes {
		for day, ids := range w.Slot(meal) {
			if day.After(today) {
				continue
			}
			for _, id := range ids {
				if out[id] == nil {
					out[id] = make(map[civil.Date]bool)
				}
				out[id][day] = true
			}
		}
	}
	return out
}

// InitialiseWeeks creates the current week and the configured number of
// following weeks where they do not exist yet.
func (s *Service) InitialiseWeeks(ctx context.Context) ([]InitialisedWeek, error) {
	start := mealdate.WeekStart(s.engine.Today())
	out := make([]InitialisedWeek, 0, s.opts.WeeksAhead+1)
	for i := 0; i <= s.opts.WeeksAhead; i++ {
		ws := start.AddDays(7 * i)
		created, err := s.calendar.CreateWeekIfMissing(ctx, ws)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise week %s: %w", ws, err)
		}
		if created {
			s.log.Info("week initialised", "week_start", ws.String())
		}
		out = append(out, InitialisedWeek{WeekStart: ws, Created: created})
	}
	return out, nil
}

// LastOccurrence returns the newest day before today on which the dish is
// planned. It does not touch the dish.
func (s *Service) LastOccurrence(ctx context.Context, dishID uuid.UUID) (*civil.Date, error) {
	if _, err := s.dishes.GetDish(ctx, dishID); err != nil {
		return nil, err
	}
	return s.engine.LastOccurrence(ctx, dishID)
}
