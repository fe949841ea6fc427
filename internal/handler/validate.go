package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onoacademic/campusid/internal/validation"
)

// ValidateHandler serves field and form validation without writing anything
type ValidateHandler struct {
	forms  *validation.FormValidator
	logger *slog.Logger
}

func NewValidateHandler(forms *validation.FormValidator, logger *slog.Logger) *ValidateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidateHandler{forms: forms, logger: logger}
}

// FieldRequest carries the value of a single field
type FieldRequest struct {
	Value string `json:"value"`
}

// Field handles POST /api/validate/{field}
func (h *ValidateHandler) Field(w http.ResponseWriter, r *http.Request) {
	var req FieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	writeJSON(w, http.StatusOK, validation.ValidateField(chi.URLParam(r, "field"), req.Value))
}

// Form handles POST /api/forms/{form}?excludeId=...
func (h *ValidateHandler) Form(w http.ResponseWriter, r *http.Request) {
	excludeID := r.URL.Query().Get("excludeId")
	dec := json.NewDecoder(r.Body)

	var res validation.FormResult
	switch chi.URLParam(r, "form") {
	case "students":
		var form validation.StudentForm
		if err := dec.Decode(&form); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		res = h.forms.ValidateStudentForm(r.Context(), form, excludeID)
	case "lecturers":
		var form validation.LecturerForm
		if err := dec.Decode(&form); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		res = h.forms.ValidateLecturerForm(r.Context(), form, excludeID)
	case "courses":
		var form validation.CourseForm
		if err := dec.Decode(&form); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		res = h.forms.ValidateCourseForm(r.Context(), form, excludeID)
	default:
		writeError(w, http.StatusNotFound, "unknown form")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
