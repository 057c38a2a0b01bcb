package dishes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for dishes.
type Handler struct {
	service *Service
}

// NewHandler creates a new dishes handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleList handles GET /v1/dishes?q=&cuisine=&ingredients=&preferences=&limit=&offset=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	filter.Limit = parseIntQuery(r, "limit", h.service.PageSize())
	filter.Offset = parseIntQuery(r, "offset", 0)

	items, total, applied, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err, "Failed to list dishes")
		return
	}

	writeJSON(w, http.StatusOK, ListDishesResponse{
		Items:  toDTOs(items),
		Total:  total,
		Limit:  applied.Limit,
		Offset: applied.Offset,
	})
}

// HandleSearch handles GET /v1/dishes/search?q=
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err, "Failed to search dishes")
		return
	}
	writeJSON(w, http.StatusOK, SearchDishesResponse{Items: toDTOs(items)})
}

// HandleGet handles GET /v1/dishes/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dish, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to get dish")
		return
	}
	writeJSON(w, http.StatusOK, toDTO(dish))
}

// HandleCreate handles POST /v1/dishes
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateDishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}

	dish, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "Failed to create dish")
		return
	}
	writeJSON(w, http.StatusCreated, toDTO(dish))
}

// HandleUpdate handles PATCH /v1/dishes/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateDishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}

	dish, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err, "Failed to update dish")
		return
	}
	writeJSON(w, http.StatusOK, toDTO(dish))
}

// HandleSetLastEaten handles PATCH /v1/dishes/{id}/last-eaten
func (h *Handler) HandleSetLastEaten(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SetLastEatenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}

	dish, skipped, err := h.service.SetLastEaten(r.Context(), id, req.LastEaten)
	if err != nil {
		writeServiceError(w, err, "Failed to update last eaten")
		return
	}
	writeJSON(w, http.StatusOK, SetLastEatenResponse{Dish: toDTO(dish), Skipped: skipped})
}

// HandleDelete handles DELETE /v1/dishes/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "Failed to delete dish")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseFilter(r *http.Request) (storage.DishFilter, error) {
	q := r.URL.Query()
	filter := storage.DishFilter{Query: strings.TrimSpace(q.Get("q"))}

	if raw := q.Get("cuisine"); strings.TrimSpace(raw) != "" {
		c, err := storage.ParseCuisine(raw)
		if err != nil {
			return filter, err
		}
		filter.Cuisine = c
	}

	ingredients, err := storage.ParseIngredients(listQuery(r, "ingredients"))
	if err != nil {
		return filter, err
	}
	filter.Ingredients = ingredients

	preferences, err := storage.ParsePreferences(listQuery(r, "preferences"))
	if err != nil {
		return filter, err
	}
	filter.Preferences = preferences

	return filter, nil
}

// listQuery accepts both repeated keys and comma separated values.
func listQuery(r *http.Request, key string) []string {
	var out []string
	for _, raw := range r.URL.Query()[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	errMsg := err.Error()
	switch {
	case strings.HasPrefix(errMsg, "validation failed: "):
		writeError(w, http.StatusBadRequest, "invalid_request", strings.TrimPrefix(errMsg, "validation failed: "))
	case errors.Is(err, ErrNoDishesFound):
		writeError(w, http.StatusNotFound, "no_dishes_found", "No dishes found")
	case errors.Is(err, storage.ErrDuplicateName):
		writeError(w, http.StatusConflict, "duplicate_name", "A dish with this name already exists")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Dish not found")
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
