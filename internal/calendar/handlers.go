package calendar

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/mealdate"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for calendar weeks.
type Handler struct {
	service *Service
}

// NewHandler creates a new calendar handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleListWeeks handles GET /v1/calendar/weeks?from=&to=
func (h *Handler) HandleListWeeks(w http.ResponseWriter, r *http.Request) {
	from, ok := optionalDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := optionalDate(w, r, "to")
	if !ok {
		return
	}

	weeks, err := h.service.ListWeeks(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err, "Failed to list weeks")
		return
	}

	items := make([]WeekDTO, len(weeks))
	for i, wk := range weeks {
		items[i] = toDTO(wk, true)
	}
	writeJSON(w, http.StatusOK, ListWeeksResponse{Items: items})
}

// HandleGetWeek handles GET /v1/calendar/weeks/{week_start}
func (h *Handler) HandleGetWeek(w http.ResponseWriter, r *http.Request) {
	day, err := mealdate.Parse(r.PathValue("week_start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	week, exists, err := h.service.GetWeek(r.Context(), day)
	if err != nil {
		writeServiceError(w, err, "Failed to get week")
		return
	}
	writeJSON(w, http.StatusOK, toDTO(week, exists))
}

// HandleSaveWeek handles PUT /v1/calendar/weeks/{week_start}
func (h *Handler) HandleSaveWeek(w http.ResponseWriter, r *http.Request) {
	weekStart, err := mealdate.Parse(r.PathValue("week_start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req SaveWeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}

	week, reconciled, err := h.service.SaveWeek(r.Context(), weekStart, req)
	if err != nil {
		writeServiceError(w, err, "Failed to save week")
		return
	}
	writeJSON(w, http.StatusOK, SaveWeekResponse{Week: toDTO(week, true), Reconciled: reconciled})
}

// HandleInitialise handles POST /v1/calendar/initialise
func (h *Handler) HandleInitialise(w http.ResponseWriter, r *http.Request) {
	weeks, err := h.service.InitialiseWeeks(r.Context())
	if err != nil {
		writeServiceError(w, err, "Failed to initialise weeks")
		return
	}
	writeJSON(w, http.StatusOK, InitialiseResponse{Weeks: weeks})
}

// HandleLastOccurrence handles GET /v1/calendar/dishes/{id}/last-occurrence
func (h *Handler) HandleLastOccurrence(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "id must be a UUID")
		return
	}

	last, err := h.service.LastOccurrence(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to look up last occurrence")
		return
	}
	writeJSON(w, http.StatusOK, LastOccurrenceResponse{DishID: id, LastOccurrence: last})
}

func optionalDate(w http.ResponseWriter, r *http.Request, key string) (civil.Date, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return civil.Date{}, true
	}
	d, err := mealdate.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", key+": "+err.Error())
		return civil.Date{}, false
	}
	return d, true
}

func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	errMsg := err.Error()
	switch {
	case strings.HasPrefix(errMsg, "validation failed: "):
		writeError(w, http.StatusBadRequest, "invalid_request", strings.TrimPrefix(errMsg, "validation failed: "))
	case errors.Is(err, ErrReconcileFailed):
		writeError(w, http.StatusServiceUnavailable, "last_eaten_update_failed", errMsg)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Not found")
	case errors.Is(err, storage.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Storage is unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
