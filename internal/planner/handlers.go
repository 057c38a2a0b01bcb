package planner

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for slot edits.
type Handler struct {
	service *Service
}

// NewHandler creates a new planner handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleAddDish handles POST /v1/planner/slots/{date}/{meal}/dishes
func (h *Handler) HandleAddDish(w http.ResponseWriter, r *http.Request) {
	slot, err := ParseSlotRef(r.PathValue("date"), r.PathValue("meal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req AddDishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}
	dishID, err := req.Validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := h.service.AddDish(r.Context(), slot, dishID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRemoveDish handles DELETE /v1/planner/slots/{date}/{meal}/dishes/{dish_id}
func (h *Handler) HandleRemoveDish(w http.ResponseWriter, r *http.Request) {
	slot, err := ParseSlotRef(r.PathValue("date"), r.PathValue("meal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	dishID, err := uuid.Parse(r.PathValue("dish_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "dish_id must be a UUID")
		return
	}

	res, err := h.service.RemoveDish(r.Context(), slot, dishID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleClearSlot handles DELETE /v1/planner/slots/{date}/{meal}
func (h *Handler) HandleClearSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := ParseSlotRef(r.PathValue("date"), r.PathValue("meal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := h.service.ClearSlot(r.Context(), slot)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSwap handles POST /v1/planner/swap
func (h *Handler) HandleSwap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}
	from, to, err := req.Validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := h.service.SwapSlots(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSlotFull):
		writeError(w, http.StatusBadRequest, "slot_full", ErrSlotFull.Error())
	case errors.Is(err, ErrDuplicateInSlot):
		writeError(w, http.StatusBadRequest, "duplicate_in_slot", ErrDuplicateInSlot.Error())
	case errors.Is(err, ErrDateLocked):
		writeError(w, http.StatusBadRequest, "date_locked", ErrDateLocked.Error())
	case strings.HasPrefix(err.Error(), "validation failed: "):
		writeError(w, http.StatusBadRequest, "invalid_request", strings.TrimPrefix(err.Error(), "validation failed: "))
	case errors.Is(err, ErrLastEatenUpdate):
		writeError(w, http.StatusServiceUnavailable, "last_eaten_update_failed", err.Error())
	case errors.Is(err, ErrNotInSlot):
		writeError(w, http.StatusNotFound, "not_in_slot", ErrNotInSlot.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Dish not found")
	case errors.Is(err, storage.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Storage is unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to update meal plan")
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
