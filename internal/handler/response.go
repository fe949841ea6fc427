package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/validation"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// handleServiceError maps the domain error taxonomy onto HTTP statuses
func handleServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	var formErr *validation.FormError
	switch {
	case errors.As(err, &formErr):
		status := http.StatusUnprocessableEntity
		if len(formErr.Conflicts) > 0 {
			status = http.StatusConflict
		}
		writeJSON(w, status, ErrorResponse{Error: "validation failed", Fields: formErr.Errors})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrNotAuthenticated), errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrBackendUnavailable):
		log.Error("backend unavailable", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "backend unavailable")
	default:
		log.Error("request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// public strips credentials from records leaving the API
func public(rec domain.Record) domain.Record {
	if _, ok := rec["password_hash"]; !ok {
		return rec
	}
	out := rec.Clone()
	delete(out, "password_hash")
	return out
}
