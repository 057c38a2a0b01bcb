package menus

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/fdg312/meal-calendar/internal/storage/memory"
	"github.com/google/uuid"
)

var (
	monday   = civil.Date{Year: 2024, Month: time.March, Day: 11}
	thursday = civil.Date{Year: 2024, Month: time.March, Day: 14}
)

type fakeBlob struct {
	objects map[string][]byte
	types   map[string]string
	ttl     time.Duration
	failPut bool
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeBlob) PutObject(ctx context.Context, key string, data []byte, contentType string) (int64, error) {
	if f.failPut {
		return 0, errors.New("bucket gone")
	}
	f.objects[key] = data
	f.types[key] = contentType
	return int64(len(data)), nil
}

func (f *fakeBlob) GetObject(ctx context.Context, key string) ([]byte, error) {
	return f.objects[key], nil
}

func (f *fakeBlob) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	f.ttl = ttl
	return "https://blob.test/" + key + "?sig=1", nil
}

func (f *fakeBlob) DeleteObject(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

// seedWeek plans a known dish and a dangling id for Thursday.
func seedWeek(t *testing.T, store *memory.MemoryStorage) (known, ghost uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	d := &storage.Dish{Name: "Crème brûlée", Cuisine: storage.CuisineWestern}
	if err := store.GetDishesStorage().CreateDish(ctx, d); err != nil {
		t.Fatalf("create dish: %v", err)
	}
	ghost = uuid.New()

	week := storage.NewWeekEntry(monday)
	week.SetDishes(storage.MealDinner, thursday, []uuid.UUID{d.ID, ghost})
	if err := store.GetCalendarStorage().SaveWeek(ctx, &week); err != nil {
		t.Fatalf("save week: %v", err)
	}
	return d.ID, ghost
}

func TestExportCSVInline(t *testing.T) {
	store := memory.New()
	seedWeek(t, store)
	svc := NewService(store.GetCalendarStorage(), store.GetDishesStorage(), nil, 0, nil)

	exp, err := svc.Export(context.Background(), thursday, FormatCSV)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exp.WeekStart != monday {
		t.Errorf("expected week start %s, got %s", monday, exp.WeekStart)
	}
	if exp.URL != "" || exp.Data == nil {
		t.Fatalf("expected inline data, got url=%q", exp.URL)
	}

	records, err := csv.NewReader(bytes.NewReader(exp.Data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	// header + 7 days x 2 meals
	if len(records) != 15 {
		t.Fatalf("expected 15 rows, got %d", len(records))
	}

	var found bool
	for _, r := range records[1:] {
		if r[0] == "2024-03-14" && r[2] == string(storage.MealDinner) {
			found = true
			if r[3] != "Crème brûlée; "+UnknownDish {
				t.Errorf("unexpected dishes cell %q", r[3])
			}
			if r[1] != "Thursday" {
				t.Errorf("unexpected weekday %q", r[1])
			}
		}
	}
	if !found {
		t.Error("thursday dinner row missing")
	}
}

func TestExportPDFUploads(t *testing.T) {
	store := memory.New()
	seedWeek(t, store)
	blobs := newFakeBlob()
	svc := NewService(store.GetCalendarStorage(), store.GetDishesStorage(), blobs, 600, nil)

	exp, err := svc.Export(context.Background(), monday, FormatPDF)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exp.Data != nil {
		t.Error("expected no inline data when uploaded")
	}
	if !strings.HasPrefix(exp.ObjectKey, "menus/2024-03-11/") || !strings.HasSuffix(exp.ObjectKey, ".pdf") {
		t.Errorf("unexpected object key %q", exp.ObjectKey)
	}
	data, ok := blobs.objects[exp.ObjectKey]
	if !ok {
		t.Fatal("object not uploaded")
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("uploaded object is not a PDF")
	}
	if blobs.types[exp.ObjectKey] != "application/pdf" {
		t.Errorf("unexpected content type %q", blobs.types[exp.ObjectKey])
	}
	if blobs.ttl != 10*time.Minute || exp.ExpiresIn != 600 {
		t.Errorf("unexpected ttl %v / %d", blobs.ttl, exp.ExpiresIn)
	}
	if !strings.Contains(exp.URL, exp.ObjectKey) {
		t.Errorf("url %q does not reference key", exp.URL)
	}
}

func TestExportEmptyWeek(t *testing.T) {
	store := memory.New()
	svc := NewService(store.GetCalendarStorage(), store.GetDishesStorage(), nil, 0, nil)

	exp, err := svc.Export(context.Background(), thursday, FormatPDF)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !bytes.HasPrefix(exp.Data, []byte("%PDF")) {
		t.Error("expected a PDF for an unplanned week")
	}
}

func TestExportUploadFailure(t *testing.T) {
	store := memory.New()
	blobs := newFakeBlob()
	blobs.failPut = true
	svc := NewService(store.GetCalendarStorage(), store.GetDishesStorage(), blobs, 0, nil)

	if _, err := svc.Export(context.Background(), thursday, FormatCSV); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", FormatPDF, false},
		{"PDF", FormatPDF, false},
		{" csv ", FormatCSV, false},
		{"xlsx", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func newTestMux(svc *Service) *http.ServeMux {
	h := NewHandlers(svc)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/menus/{week_start}", h.HandleExport)
	return mux
}

func TestHandleExport(t *testing.T) {
	store := memory.New()
	seedWeek(t, store)

	t.Run("inline csv", func(t *testing.T) {
		mux := newTestMux(NewService(store.GetCalendarStorage(), store.GetDishesStorage(), nil, 0, nil))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/menus/2024-03-13?format=csv", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
			t.Errorf("unexpected content type %q", ct)
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "menu-2024-03-11.csv") {
			t.Errorf("unexpected disposition %q", cd)
		}
	})

	t.Run("uploaded pdf", func(t *testing.T) {
		mux := newTestMux(NewService(store.GetCalendarStorage(), store.GetDishesStorage(), newFakeBlob(), 0, nil))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/menus/2024-03-11", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body Export
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.URL == "" || body.Format != FormatPDF || body.ExpiresIn != 900 {
			t.Errorf("unexpected body %+v", body)
		}
	})

	t.Run("bad input", func(t *testing.T) {
		mux := newTestMux(NewService(store.GetCalendarStorage(), store.GetDishesStorage(), nil, 0, nil))
		for _, path := range []string{"/v1/menus/not-a-date", "/v1/menus/2024-03-11?format=docx"} {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", path, rec.Code)
			}
		}
	})
}
