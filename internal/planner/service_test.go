package planner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/lasteaten"
	"github.com/fdg312/meal-calendar/internal/mealdate"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/fdg312/meal-calendar/internal/storage/memory"
	"github.com/google/uuid"
)

// Thursday; the week starts Monday 11 March.
var (
	today     = civil.Date{Year: 2024, Month: time.March, Day: 14}
	monday    = civil.Date{Year: 2024, Month: time.March, Day: 11}
	wednesday = civil.Date{Year: 2024, Month: time.March, Day: 13}
)

// brokenDishes fails last eaten writes as if the store went away.
type brokenDishes struct {
	storage.DishesStorage
	failSetLastEaten bool
}

func (b *brokenDishes) SetLastEaten(ctx context.Context, id uuid.UUID, date *civil.Date) (storage.Dish, error) {
	if b.failSetLastEaten {
		return storage.Dish{}, fmt.Errorf("failed to set last eaten: %w", storage.ErrUnavailable)
	}
	return b.DishesStorage.SetLastEaten(ctx, id, date)
}

type testEnv struct {
	svc    *Service
	store  *memory.MemoryStorage
	dishes *brokenDishes
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store := memory.New()
	dishes := &brokenDishes{DishesStorage: store.GetDishesStorage()}
	engine := lasteaten.New(dishes, store.GetCalendarStorage(), mealdate.FixedClock{Date: today}, nil, nil)
	return &testEnv{
		svc:    NewService(dishes, store.GetCalendarStorage(), engine, opts, nil, nil),
		store:  store,
		dishes: dishes,
	}
}

func (e *testEnv) dish(t *testing.T, name string) uuid.UUID {
	t.Helper()
	d := &storage.Dish{
		Name:        name,
		Cuisine:     storage.CuisineChinese,
		Ingredients: []storage.Ingredient{storage.IngredientNoodles},
		Preferences: []storage.FamilyMember{storage.MemberRyan},
	}
	if err := e.store.GetDishesStorage().CreateDish(context.Background(), d); err != nil {
		t.Fatalf("create dish: %v", err)
	}
	return d.ID
}

// seed writes a slot directly, bypassing the editor.
func (e *testEnv) seed(t *testing.T, meal storage.MealType, day civil.Date, ids ...uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	cal := e.store.GetCalendarStorage()
	ws := mealdate.WeekStart(day)
	w, err := cal.GetWeek(ctx, ws)
	if errors.Is(err, storage.ErrNotFound) {
		w = storage.NewWeekEntry(ws)
	}
	w.SetDishes(meal, day, append(w.Dishes(meal, day), ids...))
	if err := cal.SaveWeek(ctx, &w); err != nil {
		t.Fatalf("seed week: %v", err)
	}
}

func (e *testEnv) setLastEaten(t *testing.T, id uuid.UUID, d civil.Date) {
	t.Helper()
	if _, err := e.store.GetDishesStorage().SetLastEaten(context.Background(), id, &d); err != nil {
		t.Fatalf("set last eaten: %v", err)
	}
}

func (e *testEnv) lastEaten(t *testing.T, id uuid.UUID) *civil.Date {
	t.Helper()
	d, err := e.store.GetDishesStorage().GetDish(context.Background(), id)
	if err != nil {
		t.Fatalf("get dish: %v", err)
	}
	return d.LastEaten
}

func (e *testEnv) slot(t *testing.T, meal storage.MealType, day civil.Date) []uuid.UUID {
	t.Helper()
	w, err := e.store.GetCalendarStorage().GetWeek(context.Background(), mealdate.WeekStart(day))
	if err != nil {
		t.Fatalf("get week: %v", err)
	}
	return w.Dishes(meal, day)
}

func assertDate(t *testing.T, label string, got *civil.Date, want *civil.Date) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Errorf("%s: expected nil, got %s", label, got)
	case want != nil && got == nil:
		t.Errorf("%s: expected %s, got nil", label, want)
	case want != nil && *got != *want:
		t.Errorf("%s: expected %s, got %s", label, want, got)
	}
}

func datePtr(d civil.Date) *civil.Date { return &d }

func TestAddThenRemoveTodayClears(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{Concurrency: 2})
	x := env.dish(t, "Dan Dan Noodles")
	lunch := SlotRef{Date: today, Meal: storage.MealLunch}

	res, err := env.svc.AddDish(ctx, lunch, x)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(res.LastEaten) != 1 || res.LastEaten[0].Action != ActionRecorded {
		t.Fatalf("expected one recorded change, got %+v", res.LastEaten)
	}
	assertDate(t, "after add", env.lastEaten(t, x), &today)

	res, err = env.svc.RemoveDish(ctx, lunch, x)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(res.LastEaten) != 1 || res.LastEaten[0].Action != ActionRecomputed {
		t.Fatalf("expected recompute, got %+v", res.LastEaten)
	}
	assertDate(t, "after remove", env.lastEaten(t, x), nil)
	if got := env.slot(t, storage.MealLunch, today); len(got) != 0 {
		t.Errorf("expected empty slot, got %v", got)
	}
}

func TestRemoveTodayFallsBackToPreviousWeek(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	x := env.dish(t, "Mapo Tofu")
	w1Tuesday := civil.Date{Year: 2024, Month: time.March, Day: 5}

	env.seed(t, storage.MealDinner, w1Tuesday, x)
	env.seed(t, storage.MealLunch, today, x)
	env.setLastEaten(t, x, today)

	if _, err := env.svc.RemoveDish(ctx, SlotRef{Date: today, Meal: storage.MealLunch}, x); err != nil {
		t.Fatalf("remove: %v", err)
	}
	assertDate(t, "last eaten", env.lastEaten(t, x), &w1Tuesday)
}

func TestRemoveTodayKeepsWhenSiblingHoldsDish(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	x := env.dish(t, "Fried Rice")

	env.seed(t, storage.MealLunch, today, x)
	env.seed(t, storage.MealDinner, today, x)
	env.setLastEaten(t, x, today)

	res, err := env.svc.RemoveDish(ctx, SlotRef{Date: today, Meal: storage.MealLunch}, x)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(res.LastEaten) != 0 {
		t.Errorf("expected no engine calls, got %+v", res.LastEaten)
	}
	assertDate(t, "last eaten", env.lastEaten(t, x), &today)
}

func TestRemovePastLastEatenDayRecomputes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	x := env.dish(t, "Char Siu")
	older := civil.Date{Year: 2024, Month: time.February, Day: 20}

	env.seed(t, storage.MealLunch, older, x)
	env.seed(t, storage.MealLunch, wednesday, x)
	env.setLastEaten(t, x, wednesday)

	if _, err := env.svc.RemoveDish(ctx, SlotRef{Date: wednesday, Meal: storage.MealLunch}, x); err != nil {
		t.Fatalf("remove: %v", err)
	}
	assertDate(t, "last eaten", env.lastEaten(t, x), &older)
}

func TestRemovePastDayThatIsNotLastEatenLeavesValue(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	x := env.dish(t, "Wonton Soup")

	env.seed(t, storage.MealLunch, monday, x)
	env.seed(t, storage.MealLunch, wednesday, x)
	env.setLastEaten(t, x, wednesday)

	res, err := env.svc.RemoveDish(ctx, SlotRef{Date: monday, Meal: storage.MealLunch}, x)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(res.LastEaten) != 0 {
		t.Errorf("expected no engine calls, got %+v", res.LastEaten)
	}
	assertDate(t, "last eaten", env.lastEaten(t, x), &wednesday)
}

func TestClearTodayRecomputesEachRemovedDish(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{Concurrency: 4})
	a := env.dish(t, "Ramen")
	b := env.dish(t, "Gyoza")
	c := env.dish(t, "Edamame")

	env.seed(t, storage.MealDinner, today, a, b, c)
	env.seed(t, storage.MealLunch, today, c)
	env.seed(t, storage.MealLunch, monday, b)
	for _, id := range []uuid.UUID{a, b, c} {
		env.setLastEaten(t, id, today)
	}

	res, err := env.svc.ClearSlot(ctx, SlotRef{Date: today, Meal: storage.MealDinner})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(res.LastEaten) != 2 {
		t.Fatalf("expected two recomputes, got %+v", res.LastEaten)
	}

	assertDate(t, "a", env.lastEaten(t, a), nil)
	assertDate(t, "b", env.lastEaten(t, b), &monday)
	assertDate(t, "c", env.lastEaten(t, c), &today)
	if got := env.slot(t, storage.MealDinner, today); len(got) != 0 {
		t.Errorf("expected empty slot, got %v", got)
	}
}

func TestClearEmptySlotIsNoop(t *testing.T) {
	env := newTestEnv(t, Options{})
	res, err := env.svc.ClearSlot(context.Background(), SlotRef{Date: today, Meal: storage.MealLunch})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(res.Slots) != 1 || len(res.Slots[0].DishIDs) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if _, err := env.store.GetCalendarStorage().GetWeek(context.Background(), monday); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected no week to be written, got %v", err)
	}
}

func TestSwapWithinWeek(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{Concurrency: 2})
	a := env.dish(t, "Beef Pho")
	b := env.dish(t, "Banh Mi")

	env.seed(t, storage.MealLunch, monday, a)
	env.seed(t, storage.MealDinner, wednesday, b)

	res, err := env.svc.SwapSlots(ctx,
		SlotRef{Date: monday, Meal: storage.MealLunch},
		SlotRef{Date: wednesday, Meal: storage.MealDinner})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if len(res.Slots) != 2 {
		t.Fatalf("expected two slots, got %+v", res.Slots)
	}

	assertDate(t, "a", env.lastEaten(t, a), &wednesday)
	assertDate(t, "b", env.lastEaten(t, b), &monday)

	if got := env.slot(t, storage.MealLunch, monday); len(got) != 1 || got[0] != b {
		t.Errorf("monday lunch = %v", got)
	}
	if got := env.slot(t, storage.MealDinner, wednesday); len(got) != 1 || got[0] != a {
		t.Errorf("wednesday dinner = %v", got)
	}
}

func TestSwapSameDayBothRecorded(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	a := env.dish(t, "Okonomiyaki")
	b := env.dish(t, "Takoyaki")

	env.seed(t, storage.MealLunch, today, a)
	env.seed(t, storage.MealDinner, today, b)

	if _, err := env.svc.SwapSlots(ctx,
		SlotRef{Date: today, Meal: storage.MealLunch},
		SlotRef{Date: today, Meal: storage.MealDinner}); err != nil {
		t.Fatalf("swap: %v", err)
	}
	assertDate(t, "a", env.lastEaten(t, a), &today)
	assertDate(t, "b", env.lastEaten(t, b), &today)
}

func TestSwapAcrossWeeksWithFuture(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	past := env.dish(t, "Roast Chicken")
	future := env.dish(t, "Fish Pie")

	lastThursday := civil.Date{Year: 2024, Month: time.March, Day: 7}
	nextTuesday := civil.Date{Year: 2024, Month: time.March, Day: 19}
	env.seed(t, storage.MealDinner, lastThursday, past)
	env.seed(t, storage.MealLunch, nextTuesday, future)
	env.setLastEaten(t, past, lastThursday)

	res, err := env.svc.SwapSlots(ctx,
		SlotRef{Date: lastThursday, Meal: storage.MealDinner},
		SlotRef{Date: nextTuesday, Meal: storage.MealLunch})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}

	assertDate(t, "dish moved to the past", env.lastEaten(t, future), &lastThursday)
	assertDate(t, "dish moved to the future", env.lastEaten(t, past), nil)
	if len(res.Slots) != 2 || res.Slots[1].WeekStart != mealdate.WeekStart(nextTuesday) {
		t.Errorf("unexpected slots %+v", res.Slots)
	}
	if got := env.slot(t, storage.MealLunch, nextTuesday); len(got) != 1 || got[0] != past {
		t.Errorf("next tuesday lunch = %v", got)
	}
}

func TestSwapFromTodayKeepsTodayWhenStillPlanned(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	x := env.dish(t, "Laksa")

	env.seed(t, storage.MealLunch, today, x)
	env.seed(t, storage.MealDinner, today, x)
	env.setLastEaten(t, x, today)

	// x leaves today's lunch for Monday but is still on today's dinner.
	if _, err := env.svc.SwapSlots(ctx,
		SlotRef{Date: today, Meal: storage.MealLunch},
		SlotRef{Date: monday, Meal: storage.MealLunch}); err != nil {
		t.Fatalf("swap: %v", err)
	}
	assertDate(t, "last eaten", env.lastEaten(t, x), &today)
}

func TestAddFutureLeavesLastEaten(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	x := env.dish(t, "Lasagne")
	saturday := today.AddDays(2)

	res, err := env.svc.AddDish(ctx, SlotRef{Date: saturday, Meal: storage.MealDinner}, x)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(res.LastEaten) != 1 || res.LastEaten[0].Action != ActionSkipped {
		t.Errorf("expected skipped, got %+v", res.LastEaten)
	}
	assertDate(t, "last eaten", env.lastEaten(t, x), nil)
	if got := env.slot(t, storage.MealDinner, saturday); len(got) != 1 || got[0] != x {
		t.Errorf("slot = %v", got)
	}
}

func TestAddPastOverwritesLastEaten(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	x := env.dish(t, "Steak Frites")
	env.setLastEaten(t, x, today)

	if _, err := env.svc.AddDish(ctx, SlotRef{Date: monday, Meal: storage.MealLunch}, x); err != nil {
		t.Fatalf("add: %v", err)
	}
	assertDate(t, "last eaten", env.lastEaten(t, x), &monday)
}

func TestEditValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{LockPastDays: true})
	x := env.dish(t, "Congee")
	lunch := SlotRef{Date: today, Meal: storage.MealLunch}

	t.Run("unknown dish", func(t *testing.T) {
		_, err := env.svc.AddDish(ctx, lunch, uuid.New())
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("duplicate in slot", func(t *testing.T) {
		if _, err := env.svc.AddDish(ctx, lunch, x); err != nil {
			t.Fatalf("first add: %v", err)
		}
		_, err := env.svc.AddDish(ctx, lunch, x)
		if !errors.Is(err, ErrDuplicateInSlot) {
			t.Errorf("expected ErrDuplicateInSlot, got %v", err)
		}
	})

	t.Run("slot full", func(t *testing.T) {
		dinner := SlotRef{Date: today, Meal: storage.MealDinner}
		for i := 0; i < storage.MaxDishesPerSlot; i++ {
			id := env.dish(t, fmt.Sprintf("Filler %d", i))
			if _, err := env.svc.AddDish(ctx, dinner, id); err != nil {
				t.Fatalf("add %d: %v", i, err)
			}
		}
		_, err := env.svc.AddDish(ctx, dinner, x)
		if !errors.Is(err, ErrSlotFull) {
			t.Errorf("expected ErrSlotFull, got %v", err)
		}
		if got := env.slot(t, storage.MealDinner, today); len(got) != storage.MaxDishesPerSlot {
			t.Errorf("slot grew to %d", len(got))
		}
	})

	t.Run("remove absent dish", func(t *testing.T) {
		_, err := env.svc.RemoveDish(ctx, lunch, uuid.New())
		if !errors.Is(err, ErrNotInSlot) || !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotInSlot, got %v", err)
		}
	})

	t.Run("swap with itself", func(t *testing.T) {
		_, err := env.svc.SwapSlots(ctx, lunch, lunch)
		if !errors.Is(err, ErrSameSlot) {
			t.Errorf("expected ErrSameSlot, got %v", err)
		}
	})

	t.Run("locked past day", func(t *testing.T) {
		_, err := env.svc.AddDish(ctx, SlotRef{Date: monday, Meal: storage.MealLunch}, x)
		if !errors.Is(err, ErrDateLocked) {
			t.Errorf("expected ErrDateLocked, got %v", err)
		}
		_, err = env.svc.SwapSlots(ctx, lunch, SlotRef{Date: monday, Meal: storage.MealDinner})
		if !errors.Is(err, ErrDateLocked) {
			t.Errorf("expected ErrDateLocked on swap, got %v", err)
		}
	})
}

func TestLastEatenFailureAfterSlotWrite(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	x := env.dish(t, "Bibimbap")
	env.dishes.failSetLastEaten = true

	_, err := env.svc.AddDish(ctx, SlotRef{Date: today, Meal: storage.MealLunch}, x)
	if !errors.Is(err, ErrLastEatenUpdate) {
		t.Fatalf("expected ErrLastEatenUpdate, got %v", err)
	}
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected the store error to be wrapped, got %v", err)
	}
	if got := env.slot(t, storage.MealLunch, today); len(got) != 1 || got[0] != x {
		t.Errorf("slot write should have committed, got %v", got)
	}
	assertDate(t, "last eaten", env.lastEaten(t, x), nil)
}

func TestRemoveDanglingDishIsNonFatal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	ghost := uuid.New()
	env.seed(t, storage.MealLunch, today, ghost)

	res, err := env.svc.RemoveDish(ctx, SlotRef{Date: today, Meal: storage.MealLunch}, ghost)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(res.LastEaten) != 1 || res.LastEaten[0].Action != ActionNotFound {
		t.Errorf("expected dish_not_found, got %+v", res.LastEaten)
	}
}

func TestInvariantAfterMixedEdits(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{Concurrency: 3})
	a := env.dish(t, "Katsu")
	b := env.dish(t, "Udon")

	steps := []func() error{
		func() error { _, err := env.svc.AddDish(ctx, SlotRef{Date: monday, Meal: storage.MealLunch}, a); return err },
		func() error { _, err := env.svc.AddDish(ctx, SlotRef{Date: today, Meal: storage.MealDinner}, a); return err },
		func() error { _, err := env.svc.AddDish(ctx, SlotRef{Date: wednesday, Meal: storage.MealLunch}, b); return err },
		func() error {
			_, err := env.svc.SwapSlots(ctx, SlotRef{Date: today, Meal: storage.MealDinner}, SlotRef{Date: today.AddDays(1), Meal: storage.MealDinner})
			return err
		},
		func() error { _, err := env.svc.ClearSlot(ctx, SlotRef{Date: wednesday, Meal: storage.MealLunch}); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	engine := lasteaten.New(env.store.GetDishesStorage(), env.store.GetCalendarStorage(), mealdate.FixedClock{Date: today}, nil, nil)
	for name, id := range map[string]uuid.UUID{"a": a, "b": b} {
		want, err := engine.LastOccurrence(ctx, id)
		if err != nil {
			t.Fatalf("last occurrence %s: %v", name, err)
		}
		assertDate(t, name, env.lastEaten(t, id), want)
	}
	assertDate(t, "a", env.lastEaten(t, a), datePtr(monday))
}
