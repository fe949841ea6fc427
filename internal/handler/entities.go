package handler

import (
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/entity"
	"github.com/onoacademic/campusid/internal/security"
	"github.com/onoacademic/campusid/internal/security/middleware"
	"github.com/onoacademic/campusid/internal/service"
)

// EntityHandler exposes the entity accessors over HTTP. Students, lecturers
// and courses are written through the roster service so their forms validate.
type EntityHandler struct {
	entities *entity.Client
	roster   *service.RosterService
	authz    *security.AuthorizationService
	logger   *slog.Logger
}

func NewEntityHandler(entities *entity.Client, roster *service.RosterService, authz *security.AuthorizationService, logger *slog.Logger) *EntityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityHandler{entities: entities, roster: roster, authz: authz, logger: logger}
}

// DeleteResponse reports whether a record existed
type DeleteResponse struct {
	Success bool `json:"success"`
}

// List handles GET /api/entities/{collection}; query parameters filter by equality
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	a, _, ok := h.accessor(w, r, false)
	if !ok {
		return
	}

	var (
		recs []domain.Record
		err  error
	)
	if q := r.URL.Query(); len(q) > 0 {
		predicate := make(map[string]string, len(q))
		for k := range q {
			predicate[k] = q.Get(k)
		}
		recs, err = a.Filter(r.Context(), predicate)
	} else {
		recs, err = a.List(r.Context())
	}
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	out := make([]domain.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, public(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/entities/{collection}/{id}
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, _, ok := h.accessor(w, r, false)
	if !ok {
		return
	}
	rec, err := a.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, public(rec))
}

// Create handles POST /api/entities/{collection}
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, actor, ok := h.accessor(w, r, true)
	if !ok {
		return
	}
	body, ok := decodeRecord(w, r)
	if !ok {
		return
	}

	ctx := service.WithActor(r.Context(), actor)
	var (
		rec domain.Record
		err error
	)
	if service.Validated(a.Collection()) {
		rec, err = h.roster.Create(ctx, a.Collection(), body)
	} else {
		rec, err = a.Create(ctx, body)
	}
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, public(rec))
}

// Update handles PATCH /api/entities/{collection}/{id}
func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	a, actor, ok := h.accessor(w, r, true)
	if !ok {
		return
	}
	patch, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	ctx := service.WithActor(r.Context(), actor)

	if service.Validated(a.Collection()) {
		current, err := a.Get(ctx, id)
		if err != nil {
			handleServiceError(w, h.logger, err)
			return
		}
		merged := current.Clone()
		maps.Copy(merged, patch)
		rec, err := h.roster.Update(ctx, a.Collection(), id, merged)
		if err != nil {
			handleServiceError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, public(rec))
		return
	}

	rec, found, err := a.Update(ctx, id, patch)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, public(rec))
}

// Delete handles DELETE /api/entities/{collection}/{id}
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a, actor, ok := h.accessor(w, r, true)
	if !ok {
		return
	}
	ctx := service.WithActor(r.Context(), actor)
	id := chi.URLParam(r, "id")

	var (
		deleted bool
		err     error
	)
	switch a.Collection() {
	case domain.CollectionStudents:
		deleted, err = h.roster.DeleteStudent(ctx, id)
	case domain.CollectionLecturers:
		deleted, err = h.roster.DeleteLecturer(ctx, id)
	case domain.CollectionCourses:
		deleted, err = h.roster.DeleteCourse(ctx, id)
	default:
		deleted, err = a.Delete(ctx, id)
	}
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Success: deleted})
}

// accessor resolves the collection and checks the caller's permission on it
func (h *EntityHandler) accessor(w http.ResponseWriter, r *http.Request, write bool) (*entity.Accessor, service.Actor, bool) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, service.Actor{}, false
	}
	actor := service.Actor{UserID: claims.UserID, Role: claims.Role}

	collection := chi.URLParam(r, "collection")
	a, ok := h.entities.Collection(collection)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown collection")
		return nil, actor, false
	}

	perm := security.PermReadEntities
	switch {
	case write:
		perm = security.WritePermission(collection)
	case collection == domain.CollectionUsers:
		perm = security.PermManageUsers
	}
	if err := h.authz.ValidatePermission(claims.Role, perm); err != nil {
		handleServiceError(w, h.logger, err)
		return nil, actor, false
	}
	return a, actor, true
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (domain.Record, bool) {
	var body domain.Record
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return nil, false
	}
	return body, true
}
