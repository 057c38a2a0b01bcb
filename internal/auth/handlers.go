package auth

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleLogin handles POST /v1/auth/login
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Password == "" {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "password is required")
		return
	}

	resp, err := h.service.Login(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrAuthDisabled):
			writeErrorResponse(w, http.StatusNotFound, "auth_disabled", err.Error())
		case errors.Is(err, ErrInvalidPassword):
			writeErrorResponse(w, http.StatusUnauthorized, "invalid_credentials", "Invalid password")
		default:
			writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to issue token")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
