package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/observability/metrics"
	"github.com/onoacademic/campusid/internal/security/audit"
	"github.com/onoacademic/campusid/internal/security/auth"
	"github.com/onoacademic/campusid/internal/service"
)

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse contains the JWT token and the resolved user
type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      domain.User    `json:"user"`
	Source    service.Source `json:"source"`
}

// LoginHandler handles stateless logins: credentials in, signed token out
type LoginHandler struct {
	authn        *service.FallbackAuthenticator
	tokenManager *auth.TokenManager
	ttl          time.Duration
	audit        *audit.Logger
	logger       *slog.Logger
}

func NewLoginHandler(authn *service.FallbackAuthenticator, tm *auth.TokenManager, ttl time.Duration, auditLog *audit.Logger, logger *slog.Logger) *LoginHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginHandler{authn: authn, tokenManager: tm, ttl: ttl, audit: auditLog, logger: logger}
}

// Login handles POST /api/auth/login
func (h *LoginHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}

	user, source, err := h.authn.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		metrics.ObserveLogin("none", false)
		h.audit.LogLogin(r.Context(), "", "", "none", "failure")
		// generic message so accounts cannot be enumerated
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if len(user.Roles) == 0 {
		user.AddRoles(domain.RoleStudent)
	}
	user.ReconcileCurrentRole()

	expiresAt := time.Now().Add(h.ttl)
	token, err := h.tokenManager.GenerateToken(user.ID, user.Email, user.CurrentRole, h.ttl)
	if err != nil {
		h.logger.Error("failed to generate token",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	metrics.ObserveLogin(string(source), true)
	h.audit.LogLogin(r.Context(), user.ID, string(user.CurrentRole), string(source), "success")

	user.PasswordHash = ""
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt, User: user, Source: source})
}
