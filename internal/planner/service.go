// Package planner implements the meal-plan editor: adding, removing, clearing
// and swapping slot contents, then bringing the affected dishes' last eaten
// dates back in line through the lasteaten engine.
//
// Every operation is two steps. The week write commits first and the engine
// calls run after it; a failure in the second step is reported as
// ErrLastEatenUpdate with the slot already saved.
package planner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/lasteaten"
	"github.com/fdg312/meal-calendar/internal/logger"
	"github.com/fdg312/meal-calendar/internal/observability"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// LockPastDays rejects edits to days before today.
	LockPastDays bool
	// Concurrency bounds parallel engine calls for distinct dishes.
	Concurrency int
}

// Service handles slot edits.
type Service struct {
	dishes   storage.DishesStorage
	calendar storage.CalendarStorage
	engine   *lasteaten.Engine
	opts     Options
	log      *logger.Logger
	metrics  *observability.Metrics
}

// NewService creates a new planner service.
func NewService(dishes storage.DishesStorage, calendar storage.CalendarStorage, engine *lasteaten.Engine, opts Options, log *logger.Logger, metrics *observability.Metrics) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		dishes:   dishes,
		calendar: calendar,
		engine:   engine,
		opts:     opts,
		log:      log.With("component", "planner"),
		metrics:  metrics,
	}
}

// AddDish appends dishID to the slot. Landing on a day up to today records
// that day as the dish's last eaten date.
func (s *Service) AddDish(ctx context.Context, slot SlotRef, dishID uuid.UUID) (res Result, err error) {
	defer func() { s.metrics.ObservePlannerOp("add", err) }()

	if err := s.checkLock(slot); err != nil {
		return Result{}, err
	}
	if _, err := s.dishes.GetDish(ctx, dishID); err != nil {
		return Result{}, err
	}

	week, err := s.loadWeek(ctx, slot.WeekStart())
	if err != nil {
		return Result{}, err
	}
	ids := week.Dishes(slot.Meal, slot.Date)
	if slices.Contains(ids, dishID) {
		return Result{}, fmt.Errorf("validation failed: %w", ErrDuplicateInSlot)
	}
	if len(ids) >= storage.MaxDishesPerSlot {
		return Result{}, fmt.Errorf("validation failed: %w", ErrSlotFull)
	}
	week.SetDishes(slot.Meal, slot.Date, append(ids, dishID))

	if err := s.calendar.SaveWeek(ctx, &week); err != nil {
		return Result{}, fmt.Errorf("failed to save week %s: %w", week.WeekStart, err)
	}
	s.log.Info("dish added to slot",
		"week_start", week.WeekStart.String(), "date", slot.Date.String(), "meal", slot.Meal, "dish_id", dishID)

	p := newPass()
	p.arrive(dishID, slot.Date)
	changes, err := s.settle(ctx, p, week)
	return Result{Slots: []SlotDTO{toSlotDTO(week, slot)}, LastEaten: changes}, err
}

// RemoveDish takes dishID out of the slot.
func (s *Service) RemoveDish(ctx context.Context, slot SlotRef, dishID uuid.UUID) (res Result, err error) {
	defer func() { s.metrics.ObservePlannerOp("remove", err) }()

	if err := s.checkLock(slot); err != nil {
		return Result{}, err
	}

	week, err := s.loadWeek(ctx, slot.WeekStart())
	if err != nil {
		return Result{}, err
	}
	ids := week.Dishes(slot.Meal, slot.Date)
	idx := slices.Index(ids, dishID)
	if idx < 0 {
		return Result{}, fmt.Errorf("%s in %s: %w: %w", dishID, slot, ErrNotInSlot, storage.ErrNotFound)
	}
	week.SetDishes(slot.Meal, slot.Date, slices.Delete(ids, idx, idx+1))

	if err := s.calendar.SaveWeek(ctx, &week); err != nil {
		return Result{}, fmt.Errorf("failed to save week %s: %w", week.WeekStart, err)
	}
	s.log.Info("dish removed from slot",
		"week_start", week.WeekStart.String(), "date", slot.Date.String(), "meal", slot.Meal, "dish_id", dishID)

	p := newPass()
	p.depart(dishID, slot.Date)
	changes, err := s.settle(ctx, p, week)
	return Result{Slots: []SlotDTO{toSlotDTO(week, slot)}, LastEaten: changes}, err
}

// ClearSlot empties the slot. Clearing an empty slot writes nothing.
func (s *Service) ClearSlot(ctx context.Context, slot SlotRef) (res Result, err error) {
	defer func() { s.metrics.ObservePlannerOp("clear", err) }()

	if err := s.checkLock(slot); err != nil {
		return Result{}, err
	}

	week, err := s.loadWeek(ctx, slot.WeekStart())
	if err != nil {
		return Result{}, err
	}
	removed := week.Dishes(slot.Meal, slot.Date)
	if len(removed) == 0 {
		return Result{Slots: []SlotDTO{toSlotDTO(week, slot)}, LastEaten: []LastEatenChange{}}, nil
	}
	week.SetDishes(slot.Meal, slot.Date, nil)

	if err := s.calendar.SaveWeek(ctx, &week); err != nil {
		return Result{}, fmt.Errorf("failed to save week %s: %w", week.WeekStart, err)
	}
	s.log.Info("slot cleared",
		"week_start", week.WeekStart.String(), "date", slot.Date.String(), "meal", slot.Meal, "removed", len(removed))

	p := newPass()
	for _, id := range removed {
		p.depart(id, slot.Date)
	}
	changes, err := s.settle(ctx, p, week)
	return Result{Slots: []SlotDTO{toSlotDTO(week, slot)}, LastEaten: changes}, err
}

// SwapSlots exchanges the dish lists of two slots, which may sit in
// different weeks. Dishes landing on a day up to today get that day
// recorded.
func (s *Service) SwapSlots(ctx context.Context, a, b SlotRef) (res Result, err error) {
	defer func() { s.metrics.ObservePlannerOp("swap", err) }()

	if a == b {
		return Result{}, fmt.Errorf("validation failed: %w", ErrSameSlot)
	}
	if err := s.checkLock(a); err != nil {
		return Result{}, err
	}
	if err := s.checkLock(b); err != nil {
		return Result{}, err
	}

	weekA, err := s.loadWeek(ctx, a.WeekStart())
	if err != nil {
		return Result{}, err
	}
	sameWeek := a.WeekStart() == b.WeekStart()
	weekB := weekA
	if !sameWeek {
		if weekB, err = s.loadWeek(ctx, b.WeekStart()); err != nil {
			return Result{}, err
		}
	}

	fromA := weekA.Dishes(a.Meal, a.Date)
	fromB := weekB.Dishes(b.Meal, b.Date)

	if sameWeek {
		weekA.SetDishes(a.Meal, a.Date, fromB)
		weekA.SetDishes(b.Meal, b.Date, fromA)
		if err := s.calendar.SaveWeek(ctx, &weekA); err != nil {
			return Result{}, fmt.Errorf("failed to save week %s: %w", weekA.WeekStart, err)
		}
		weekB = weekA
	} else {
		weekA.SetDishes(a.Meal, a.Date, fromB)
		weekB.SetDishes(b.Meal, b.Date, fromA)
		if err := s.calendar.SaveWeeks(ctx, []*storage.WeekEntry{&weekA, &weekB}); err != nil {
			return Result{}, fmt.Errorf("failed to save weeks %s and %s: %w", weekA.WeekStart, weekB.WeekStart, err)
		}
	}
	s.log.Info("slots swapped",
		"from", a.String(), "to", b.String(), "from_count", len(fromA), "to_count", len(fromB))

	p := newPass()
	for _, id := range fromA {
		p.arrive(id, b.Date)
	}
	for _, id := range fromB {
		p.arrive(id, a.Date)
	}
	for _, id := range fromA {
		p.depart(id, a.Date)
	}
	for _, id := range fromB {
		p.depart(id, b.Date)
	}

	var changes []LastEatenChange
	if sameWeek {
		changes, err = s.settle(ctx, p, weekA)
	} else {
		changes, err = s.settle(ctx, p, weekA, weekB)
	}
	return Result{
		Slots:     []SlotDTO{toSlotDTO(weekA, a), toSlotDTO(weekB, b)},
		LastEaten: changes,
	}, err
}

func (s *Service) checkLock(slot SlotRef) error {
	if s.opts.LockPastDays && slot.Date.Before(s.engine.Today()) {
		return fmt.Errorf("validation failed: %w: %s", ErrDateLocked, slot.Date)
	}
	return nil
}

// loadWeek returns the stored week, or a fresh empty one if none exists.
func (s *Service) loadWeek(ctx context.Context, weekStart civil.Date) (storage.WeekEntry, error) {
	week, err := s.calendar.GetWeek(ctx, weekStart)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.NewWeekEntry(weekStart), nil
	}
	if err != nil {
		return storage.WeekEntry{}, fmt.Errorf("failed to load week %s: %w", weekStart, err)
	}
	return week, nil
}

// pass collects the engine work one edit implies. Each dish ends up with at
// most one call: an arrival records the newest landing day, otherwise a
// departure may trigger a recompute.
type pass struct {
	arrivals   map[uuid.UUID]civil.Date
	departures map[uuid.UUID][]civil.Date
	order      []uuid.UUID
}

func newPass() *pass {
	return &pass{
		arrivals:   make(map[uuid.UUID]civil.Date),
		departures: make(map[uuid.UUID][]civil.Date),
	}
}

func (p *pass) touch(id uuid.UUID) {
	if _, ok := p.arrivals[id]; ok {
		return
	}
	if _, ok := p.departures[id]; ok {
		return
	}
	p.order = append(p.order, id)
}

func (p *pass) arrive(id uuid.UUID, day civil.Date) {
	p.touch(id)
	if cur, ok := p.arrivals[id]; !ok || day.After(cur) {
		p.arrivals[id] = day
	}
}

func (p *pass) depart(id uuid.UUID, day civil.Date) {
	p.touch(id)
	p.departures[id] = append(p.departures[id], day)
}

// settle runs the engine calls for p against the written weeks. Calls for
// distinct dishes run concurrently.
func (s *Service) settle(ctx context.Context, p *pass, written ...storage.WeekEntry) ([]LastEatenChange, error) {
	today := s.engine.Today()
	snap := lasteaten.SnapshotOf(written...)

	var (
		mu      sync.Mutex
		changes = make(map[uuid.UUID]LastEatenChange, len(p.order))
	)
	report := func(c LastEatenChange) {
		mu.Lock()
		changes[c.DishID] = c
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, id := range p.order {
		days := p.departures[id]
		day, arrived := p.arrivals[id]
		if arrived && !day.After(today) {
			day = newestPlanned(written, id, day, days, today)
			g.Go(func() error {
				c, err := s.record(gctx, id, day)
				if err != nil {
					return err
				}
				report(c)
				return nil
			})
			continue
		}
		if len(days) == 0 {
			report(LastEatenChange{DishID: id, Action: ActionSkipped})
			continue
		}

		g.Go(func() error {
			need, err := s.needsRecompute(gctx, id, days, today, written)
			if err != nil {
				return err
			}
			if !need {
				if arrived {
					report(LastEatenChange{DishID: id, Action: ActionSkipped})
				}
				return nil
			}
			c, err := s.recompute(gctx, id, snap)
			if err != nil {
				return err
			}
			report(c)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.log.Error("last eaten update failed after slot write", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrLastEatenUpdate, err)
	}

	out := make([]LastEatenChange, 0, len(changes))
	for _, id := range p.order {
		if c, ok := changes[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, id uuid.UUID, day civil.Date) (LastEatenChange, error) {
	res, err := s.engine.RecordOccurrence(ctx, id, &day)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return LastEatenChange{DishID: id, Action: ActionNotFound}, nil
	case err != nil:
		return LastEatenChange{}, err
	case res.Skipped:
		return LastEatenChange{DishID: id, Action: ActionSkipped}, nil
	}
	return LastEatenChange{DishID: id, Action: ActionRecorded, LastEaten: &day}, nil
}

func (s *Service) recompute(ctx context.Context, id uuid.UUID, snap lasteaten.Snapshot) (LastEatenChange, error) {
	res, err := s.engine.RecomputeLastEaten(ctx, id, snap)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return LastEatenChange{DishID: id, Action: ActionNotFound}, nil
	case err != nil:
		return LastEatenChange{}, err
	case res.Stale:
		return LastEatenChange{DishID: id, Action: ActionStale, Warning: res.Warning}, nil
	}
	return LastEatenChange{DishID: id, Action: ActionRecomputed, LastEaten: res.LastEaten}, nil
}

// needsRecompute decides whether a dish that left the given days might have
// lost its most recent occurrence. That is the case when it left today's slot
// and is not on today's other meal, or when it left the past day currently
// stored as its last eaten date and is no longer on that day.
func (s *Service) needsRecompute(ctx context.Context, id uuid.UUID, days []civil.Date, today civil.Date, written []storage.WeekEntry) (bool, error) {
	var past []civil.Date
	for _, day := range days {
		if day.After(today) || stillPlanned(written, id, day) {
			continue
		}
		if day == today {
			return true, nil
		}
		past = append(past, day)
	}
	if len(past) == 0 {
		return false, nil
	}

	dish, err := s.dishes.GetDish(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load dish %s: %w", id, err)
	}
	return dish.LastEaten != nil && slices.Contains(past, *dish.LastEaten), nil
}

// newestPlanned picks the day to record for an arriving dish: the landing
// day, or a later day up to today it was already on and still is.
func newestPlanned(weeks []storage.WeekEntry, id uuid.UUID, landing civil.Date, departed []civil.Date, today civil.Date) civil.Date {
	best := landing
	for _, d := range departed {
		if d.After(best) && !d.After(today) && stillPlanned(weeks, id, d) {
			best = d
		}
	}
	return best
}

// stillPlanned reports whether id sits in either meal on day in the written weeks.
func stillPlanned(weeks []storage.WeekEntry, id uuid.UUID, day civil.Date) bool {
	for _, w := range weeks {
		for _, meal := range storage.MealTypes {
			if w.Contains(meal, day, id) {
				return true
			}
		}
	}
	return false
}
