package menus

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fdg312/meal-calendar/internal/mealdate"
	"github.com/fdg312/meal-calendar/internal/storage"
)

// Handlers handles HTTP requests for menu exports.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new menus handler.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleExport handles GET /v1/menus/{week_start}?format=pdf|csv
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	day, err := mealdate.Parse(r.PathValue("week_start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_format", err.Error())
		return
	}

	exp, err := h.service.Export(r.Context(), day, format)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Storage is unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to export menu")
		return
	}

	if exp.Data == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(exp)
		return
	}

	w.Header().Set("Content-Type", exp.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+exp.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(exp.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(exp.Data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
