package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/lasteaten"
	"github.com/fdg312/meal-calendar/internal/mealdate"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/fdg312/meal-calendar/internal/storage/memory"
	"github.com/google/uuid"
)

var (
	today  = civil.Date{Year: 2024, Month: time.March, Day: 14}
	monday = civil.Date{Year: 2024, Month: time.March, Day: 11}
)

func newTestService(t *testing.T, opts Options) (*Service, *memory.MemoryStorage) {
	t.Helper()
	store := memory.New()
	engine := lasteaten.New(store.GetDishesStorage(), store.GetCalendarStorage(), mealdate.FixedClock{Date: today}, nil, nil)
	return NewService(store.GetCalendarStorage(), store.GetDishesStorage(), engine, opts, nil), store
}

func newTestMux(svc *Service) *http.ServeMux {
	h := NewHandler(svc)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/calendar/weeks", h.HandleListWeeks)
	mux.HandleFunc("GET /v1/calendar/weeks/{week_start}", h.HandleGetWeek)
	mux.HandleFunc("PUT /v1/calendar/weeks/{week_start}", h.HandleSaveWeek)
	mux.HandleFunc("POST /v1/calendar/initialise", h.HandleInitialise)
	mux.HandleFunc("GET /v1/calendar/dishes/{id}/last-occurrence", h.HandleLastOccurrence)
	return mux
}

func createDish(t *testing.T, store *memory.MemoryStorage, name string) uuid.UUID {
	t.Helper()
	d := &storage.Dish{
		Name:        name,
		Cuisine:     storage.CuisineWestern,
		Ingredients: []storage.Ingredient{storage.IngredientPasta},
		Preferences: []storage.FamilyMember{storage.MemberMeagan},
	}
	if err := store.GetDishesStorage().CreateDish(context.Background(), d); err != nil {
		t.Fatalf("create dish: %v", err)
	}
	return d.ID
}

func lastEaten(t *testing.T, store *memory.MemoryStorage, id uuid.UUID) *civil.Date {
	t.Helper()
	d, err := store.GetDishesStorage().GetDish(context.Background(), id)
	if err != nil {
		t.Fatalf("get dish: %v", err)
	}
	return d.LastEaten
}

func TestHandleGetWeek(t *testing.T) {
	svc, store := newTestService(t, Options{})
	mux := newTestMux(svc)

	t.Run("absent week is empty", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/calendar/weeks/2024-03-14", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var dto WeekDTO
		if err := json.NewDecoder(rec.Body).Decode(&dto); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if dto.Exists || dto.WeekStart != monday || len(dto.Lunch) != 0 {
			t.Errorf("unexpected week %+v", dto)
		}
	})

	t.Run("stored week normalised to monday", func(t *testing.T) {
		id := createDish(t, store, "Carbonara")
		w := storage.NewWeekEntry(monday)
		w.SetDishes(storage.MealDinner, today, []uuid.UUID{id})
		if err := store.GetCalendarStorage().SaveWeek(context.Background(), &w); err != nil {
			t.Fatalf("save: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/v1/calendar/weeks/2024-03-16", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		var dto WeekDTO
		if err := json.NewDecoder(rec.Body).Decode(&dto); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !dto.Exists || dto.WeekStart != monday || len(dto.Dinner[today]) != 1 {
			t.Errorf("unexpected week %+v", dto)
		}
		if dto.LastUpdated == nil {
			t.Error("expected last_updated")
		}
	})

	t.Run("bad date", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/calendar/weeks/monday", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestHandleSaveWeek(t *testing.T) {
	svc, store := newTestService(t, Options{Concurrency: 2})
	mux := newTestMux(svc)
	a := createDish(t, store, "Lasagne")
	b := createDish(t, store, "Risotto")
	ghost := uuid.New()

	put := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, path, bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	body := `{"lunch":{"2024-03-12":["` + a.String() + `"],"2024-03-14":["` + b.String() + `","` + ghost.String() + `"]},` +
		`"dinner":{"2024-03-16":["` + a.String() + `"]}}`
	rec := put("/v1/calendar/weeks/2024-03-11", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res SaveWeekResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Reconciled) != 3 {
		t.Fatalf("expected 3 reconciled dishes, got %+v", res.Reconciled)
	}
	tuesday := civil.Date{Year: 2024, Month: time.March, Day: 12}
	if got := lastEaten(t, store, a); got == nil || *got != tuesday {
		t.Errorf("a: expected %s, got %v", tuesday, got)
	}
	if got := lastEaten(t, store, b); got == nil || *got != today {
		t.Errorf("b: expected today, got %v", got)
	}

	// Dropping b from today clears it; a keeps Tuesday and is not reconciled.
	body = `{"lunch":{"2024-03-12":["` + a.String() + `"]}}`
	rec = put("/v1/calendar/weeks/2024-03-11", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res = SaveWeekResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, r := range res.Reconciled {
		if r.DishID == a {
			t.Errorf("a should not be reconciled: %+v", r)
		}
	}
	if got := lastEaten(t, store, b); got != nil {
		t.Errorf("b: expected nil, got %v", got)
	}

	invalid := []struct {
		name string
		path string
		body string
	}{
		{"not monday", "/v1/calendar/weeks/2024-03-12", `{}`},
		{"day outside week", "/v1/calendar/weeks/2024-03-11", `{"lunch":{"2024-03-18":["` + a.String() + `"]}}`},
		{"bad id", "/v1/calendar/weeks/2024-03-11", `{"lunch":{"2024-03-12":["x"]}}`},
		{"duplicate id", "/v1/calendar/weeks/2024-03-11", `{"lunch":{"2024-03-12":["` + a.String() + `","` + a.String() + `"]}}`},
		{"too many", "/v1/calendar/weeks/2024-03-11", `{"dinner":{"2024-03-12":["` +
			uuid.NewString() + `","` + uuid.NewString() + `","` + uuid.NewString() + `","` +
			uuid.NewString() + `","` + uuid.NewString() + `","` + uuid.NewString() + `"]}}`},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if rec := put(tt.path, tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleInitialise(t *testing.T) {
	svc, store := newTestService(t, Options{WeeksAhead: 2})
	mux := newTestMux(svc)

	if _, err := store.GetCalendarStorage().CreateWeekIfMissing(context.Background(), monday); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/calendar/initialise", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res InitialiseResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Weeks) != 3 {
		t.Fatalf("expected 3 weeks, got %+v", res.Weeks)
	}
	if res.Weeks[0].Created || !res.Weeks[1].Created || !res.Weeks[2].Created {
		t.Errorf("unexpected created flags %+v", res.Weeks)
	}
	if res.Weeks[2].WeekStart != monday.AddDays(14) {
		t.Errorf("expected last week %s, got %s", monday.AddDays(14), res.Weeks[2].WeekStart)
	}
}

func TestHandleListWeeks(t *testing.T) {
	svc, store := newTestService(t, Options{})
	mux := newTestMux(svc)
	for i := 0; i < 4; i++ {
		if _, err := store.GetCalendarStorage().CreateWeekIfMissing(context.Background(), monday.AddDays(-7*i)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/calendar/weeks?from=2024-02-28&to=2024-03-10", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res ListWeeksResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Items) != 2 || res.Items[0].WeekStart != monday.AddDays(-7) || res.Items[1].WeekStart != monday.AddDays(-14) {
		t.Errorf("unexpected weeks %+v", res.Items)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/calendar/weeks?from=2024-03-11&to=2024-03-01", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for inverted range, got %d", rec.Code)
	}
}

func TestHandleLastOccurrence(t *testing.T) {
	svc, store := newTestService(t, Options{})
	mux := newTestMux(svc)
	id := createDish(t, store, "Minestrone")

	w := storage.NewWeekEntry(monday)
	w.SetDishes(storage.MealLunch, monday, []uuid.UUID{id})
	w.SetDishes(storage.MealLunch, today, []uuid.UUID{id})
	if err := store.GetCalendarStorage().SaveWeek(context.Background(), &w); err != nil {
		t.Fatalf("save: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/calendar/dishes/"+id.String()+"/last-occurrence", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res LastOccurrenceResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.LastOccurrence == nil || *res.LastOccurrence != monday {
		t.Errorf("expected %s, got %v", monday, res.LastOccurrence)
	}
	if got := lastEaten(t, store, id); got != nil {
		t.Errorf("lookup must not write last eaten, got %v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/calendar/dishes/"+uuid.NewString()+"/last-occurrence", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown dish, got %d", rec.Code)
	}
}

func TestChangedDishes(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	before := storage.NewWeekEntry(monday)
	before.SetDishes(storage.MealLunch, monday, []uuid.UUID{a, b})
	before.SetDishes(storage.MealLunch, today.AddDays(1), []uuid.UUID{c})

	after := before.Clone()
	after.SetDishes(storage.MealLunch, monday, []uuid.UUID{b, a})
	after.SetDishes(storage.MealDinner, today.AddDays(2), []uuid.UUID{a})
	after.SetDishes(storage.MealLunch, today.AddDays(1), nil)

	if got := changedDishes(before, after, today); len(got) != 0 {
		t.Errorf("reordering and future edits should not count, got %v", got)
	}

	after.SetDishes(storage.MealDinner, today, []uuid.UUID{c})
	got := changedDishes(before, after, today)
	if len(got) != 1 || got[0] != c {
		t.Errorf("expected only c, got %v", got)
	}
}
