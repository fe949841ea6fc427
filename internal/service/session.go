package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/entity"
	"github.com/onoacademic/campusid/internal/featureflags"
	"github.com/onoacademic/campusid/internal/infrastructure/bolt"
	"github.com/onoacademic/campusid/internal/observability/metrics"
	"github.com/onoacademic/campusid/internal/security/audit"
	"github.com/onoacademic/campusid/internal/security/auth"
	"github.com/onoacademic/campusid/internal/theme"
	"github.com/onoacademic/campusid/internal/validation"
)

// Local cache keys owned by the session manager
const (
	TokenKey      = "session_token"
	SessionKey    = "session"
	UserKeyPrefix = "user:"
)

// ErrNoSessionTheme is returned when confirming a theme that was never set
var ErrNoSessionTheme = errors.New("no session theme to confirm")

// protected from self-service updates
var lockedUserFields = []string{"id", "email", "roles", "password_hash", "created_date", "updated_date"}

// cannot be cleared with a null
var requiredUserFields = []string{"full_name"}

// SessionConfig holds the tunables of the session manager
type SessionConfig struct {
	SessionTTL       time.Duration
	AdminEmailMarker string
	DemoPassword     string
}

// LoginResult is returned by a successful login
type LoginResult struct {
	User   domain.User `json:"user"`
	Token  string      `json:"token"`
	Source Source      `json:"source"`
}

// sessionRecord is the session echo kept in the local cache
type sessionRecord struct {
	Session      domain.Session `json:"session"`
	SessionTheme *domain.Theme  `json:"session_theme,omitempty"`
}

// SessionManager owns the authenticated identity of one client: login with
// demo fallback, role discovery and switching, logout and theme preferences.
type SessionManager struct {
	mu sync.Mutex

	authn    *FallbackAuthenticator
	entities *entity.Client
	local    domain.LocalStorage
	tokens   *auth.TokenManager
	prefs    *theme.Preferences
	resolver *theme.Resolver
	audit    *audit.Logger
	cfg      SessionConfig
	logger   *slog.Logger
}

// NewSessionManager creates a session manager over the given backends
func NewSessionManager(
	authn *FallbackAuthenticator,
	entities *entity.Client,
	local domain.LocalStorage,
	tokens *auth.TokenManager,
	resolver *theme.Resolver,
	auditLog *audit.Logger,
	cfg SessionConfig,
	logger *slog.Logger,
) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.AdminEmailMarker == "" {
		cfg.AdminEmailMarker = "admin"
	}
	return &SessionManager{
		authn:    authn,
		entities: entities,
		local:    local,
		tokens:   tokens,
		prefs:    theme.NewPreferences(local),
		resolver: resolver,
		audit:    auditLog,
		cfg:      cfg,
		logger:   logger,
	}
}

// Login authenticates, merges any cached copy of a demo account, discovers
// missing roles and stores the new session identity
func (s *SessionManager) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, source, err := s.authn.Authenticate(ctx, email, password)
	if err != nil {
		metrics.ObserveLogin("none", false)
		s.audit.LogLogin(ctx, "", "", "none", "failure")
		return nil, fmt.Errorf("login failed: %w", err)
	}

	if source == SourceDemo {
		if err := s.mergeStored(ctx, &u); err != nil {
			s.logger.Warn("failed to read stored user record", slog.String("user_id", u.ID), slog.String("error", err.Error()))
		}
		cached, ok, err := bolt.Load[domain.User](s.local, userKey(u.Email))
		if err != nil {
			s.logger.Warn("failed to read cached user copy", slog.String("email", u.Email), slog.String("error", err.Error()))
		} else if ok {
			u = overlayUser(u, cached)
		}
	}

	if len(u.Roles) == 0 {
		s.discoverRoles(ctx, &u)
	}
	u.ReconcileCurrentRole()
	s.persistUser(ctx, &u)

	token, err := s.tokens.GenerateToken(u.ID, u.Email, u.CurrentRole, s.cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}
	if err := s.local.Write(TokenKey, []byte(token)); err != nil {
		return nil, fmt.Errorf("failed to store session token: %w", err)
	}
	s.prefs.ClearSession(u.ID)
	if err := s.remember(u, nil); err != nil {
		return nil, err
	}

	metrics.ObserveLogin(string(source), true)
	s.audit.LogLogin(ctx, u.ID, string(u.CurrentRole), string(source), "success")
	s.logger.Info("user logged in",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.CurrentRole)),
		slog.String("source", string(source)),
	)

	u.PasswordHash = ""
	return &LoginResult{User: u, Token: token, Source: source}, nil
}

// Me returns the authenticated user, correcting a stale current role
func (s *SessionManager) Me(ctx context.Context) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, _, err := s.current(ctx)
	return u, err
}

// CurrentSession returns the rebuilt session view
func (s *SessionManager) CurrentSession(ctx context.Context) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, _, err := s.current(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.NewSession(u), nil
}

// Token returns the stored session token
func (s *SessionManager) Token() (string, error) {
	raw, ok, err := s.local.Read(TokenKey)
	if err != nil {
		return "", err
	}
	if !ok || len(raw) == 0 {
		return "", domain.ErrNotAuthenticated
	}
	return string(raw), nil
}

// SwitchRole makes role the active role. A role the user does not hold
// leaves the session unchanged and returns false.
func (s *SessionManager) SwitchRole(ctx context.Context, role domain.Role) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, rec, err := s.current(ctx)
	if err != nil {
		return false, err
	}
	from := u.CurrentRole
	if !u.HasRole(role) {
		metrics.ObserveRoleSwitch(string(role), false)
		s.audit.LogRoleSwitch(ctx, u.ID, string(from), string(role), "denied")
		return false, fmt.Errorf("%w: %s", domain.ErrRoleNotAvailable, role)
	}

	if featureflags.EnabledOr(featureflags.LazyRoleProfiles, true) {
		s.ensureProfile(ctx, u, role)
	}

	u.CurrentRole = role
	s.persistUser(ctx, &u)

	token, err := s.tokens.GenerateToken(u.ID, u.Email, u.CurrentRole, s.cfg.SessionTTL)
	if err != nil {
		return false, fmt.Errorf("failed to reissue session token: %w", err)
	}
	if err := s.local.Write(TokenKey, []byte(token)); err != nil {
		return false, fmt.Errorf("failed to store session token: %w", err)
	}
	if err := s.remember(u, rec.SessionTheme); err != nil {
		return false, err
	}

	metrics.ObserveRoleSwitch(string(role), true)
	s.audit.LogRoleSwitch(ctx, u.ID, string(from), string(role), "success")
	return true, nil
}

// Logout drops the token and session echo. The cached user copy and the
// permanent theme stay so a later fallback login picks them up.
func (s *SessionManager) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := bolt.Load[sessionRecord](s.local, SessionKey)
	if err == nil && ok {
		s.prefs.ClearSession(rec.Session.User.ID)
		s.audit.LogLogout(ctx, rec.Session.User.ID)
	}
	if err := s.local.Remove(TokenKey); err != nil {
		return fmt.Errorf("failed to clear session token: %w", err)
	}
	if err := s.local.Remove(SessionKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// UpdateMyUserData merges patch into the authenticated user's record.
// Identity, roles and credentials cannot be changed through it.
func (s *SessionManager) UpdateMyUserData(ctx context.Context, patch domain.Record) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, rec, err := s.current(ctx)
	if err != nil {
		return domain.User{}, err
	}

	errs := map[string]string{}
	for field, v := range patch {
		if field == "theme_preference" {
			if v != nil {
				if _, err := domain.ParseTheme(fmt.Sprint(v)); err != nil {
					errs[field] = err.Error()
				}
			}
			continue
		}
		if v == nil {
			if slices.Contains(requiredUserFields, field) {
				errs[field] = validation.ValidateField(field, "").Error
			}
			continue
		}
		if res := validation.ValidateField(field, fmt.Sprint(v)); !res.IsValid {
			errs[field] = res.Error
		}
	}
	if len(errs) > 0 {
		return domain.User{}, &validation.FormError{Errors: errs}
	}

	merged, err := domain.EncodeRecord(u)
	if err != nil {
		return domain.User{}, err
	}
	for field, v := range patch {
		if !slices.Contains(lockedUserFields, field) {
			merged[field] = v
		}
	}
	next, err := domain.DecodeRecord[domain.User](merged)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	next.ReconcileCurrentRole()

	s.persistUser(ctx, &next)
	if err := s.remember(next, rec.SessionTheme); err != nil {
		return domain.User{}, err
	}
	if _, err := s.prefs.Permanent(&next); err != nil {
		s.logger.Warn("failed to sync theme preference", slog.String("error", err.Error()))
	}
	next.PasswordHash = ""
	return next, nil
}

// ChangePassword checks the current password and stores a new bcrypt hash on
// the user record
func (s *SessionManager) ChangePassword(ctx context.Context, current, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, _, err := s.current(ctx)
	if err != nil {
		return err
	}
	if res := validation.ValidatePassword(next); !res.IsValid {
		return &validation.FormError{Errors: map[string]string{"password": res.Error}}
	}

	users := s.entities.Users()
	var stored string
	rec, err := users.Get(ctx, u.ID)
	switch {
	case err == nil:
		stored = rec.String("password_hash")
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	if stored != "" {
		if bcrypt.CompareHashAndPassword([]byte(stored), []byte(current)) != nil {
			return domain.ErrInvalidCredentials
		}
	} else if subtle.ConstantTimeCompare([]byte(current), []byte(s.cfg.DemoPassword)) != 1 {
		return domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	_, ok, err := users.Update(ctx, u.ID, domain.Record{"password_hash": string(hash)})
	if err != nil {
		return err
	}
	if !ok {
		full, err := domain.EncodeRecord(u)
		if err != nil {
			return err
		}
		full["password_hash"] = string(hash)
		if _, err := users.Upsert(ctx, full); err != nil {
			return err
		}
	}
	s.audit.LogAction(ctx, u.ID, string(u.CurrentRole), "change_password", "user", u.ID, "success", "")
	return nil
}

// Theme resolves the effective theme. Without a session only the durable
// preference and the automatic default apply.
func (s *SessionManager) Theme(ctx context.Context) (domain.Theme, theme.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, _, err := s.current(ctx)
	if errors.Is(err, domain.ErrNotAuthenticated) {
		perm, err := s.prefs.Permanent(nil)
		if err != nil {
			return "", "", err
		}
		t, src := s.resolver.Resolve(nil, perm)
		return t, src, nil
	}
	if err != nil {
		return "", "", err
	}

	perm, err := s.prefs.Permanent(&u)
	if err != nil {
		return "", "", err
	}
	t, src := s.resolver.Resolve(s.prefs.Session(u.ID), perm)
	return t, src, nil
}

// SetTheme applies t for the current session only
func (s *SessionManager) SetTheme(ctx context.Context, t domain.Theme) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown theme %q", domain.ErrValidation, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, _, err := s.current(ctx)
	if err != nil {
		return err
	}
	s.prefs.SetSession(u.ID, t)
	return s.remember(u, &t)
}

// ConfirmTheme promotes the session theme to the permanent preference on
// both the user record and the durable cache
func (s *SessionManager) ConfirmTheme(ctx context.Context) (domain.Theme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, _, err := s.current(ctx)
	if err != nil {
		return "", err
	}
	pending := s.prefs.Session(u.ID)
	if pending == nil {
		return "", ErrNoSessionTheme
	}
	t := *pending
	u.ThemePreference = &t
	s.persistUser(ctx, &u)
	if err := s.prefs.SetDurable(&t); err != nil {
		return "", err
	}
	if err := s.remember(u, &t); err != nil {
		return "", err
	}
	return t, nil
}

// ForgetTheme clears the permanent and session layers
func (s *SessionManager) ForgetTheme(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, _, err := s.current(ctx)
	if err != nil {
		return err
	}
	u.ThemePreference = nil
	s.persistUser(ctx, &u)
	s.prefs.ClearSession(u.ID)
	if err := s.prefs.SetDurable(nil); err != nil {
		return err
	}
	return s.remember(u, nil)
}

// current loads the session identity; callers hold mu
func (s *SessionManager) current(ctx context.Context) (domain.User, sessionRecord, error) {
	raw, ok, err := s.local.Read(TokenKey)
	if err != nil {
		return domain.User{}, sessionRecord{}, fmt.Errorf("failed to read session token: %w", err)
	}
	if !ok || len(raw) == 0 {
		return domain.User{}, sessionRecord{}, domain.ErrNotAuthenticated
	}
	claims, err := s.tokens.ValidateToken(string(raw))
	if err != nil {
		return domain.User{}, sessionRecord{}, fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, err)
	}

	rec, ok, err := bolt.Load[sessionRecord](s.local, SessionKey)
	if err != nil {
		return domain.User{}, sessionRecord{}, fmt.Errorf("failed to read session: %w", err)
	}
	u := rec.Session.User
	if cached, found, err := bolt.Load[domain.User](s.local, userKey(claims.Email)); err == nil && found {
		u = cached
	}
	if !ok || u.ID != claims.UserID {
		return domain.User{}, sessionRecord{}, domain.ErrNotAuthenticated
	}
	if err := s.mergeStored(ctx, &u); err != nil {
		return domain.User{}, sessionRecord{}, err
	}

	if u.ReconcileCurrentRole() {
		s.logger.Info("corrected stale current role",
			slog.String("user_id", u.ID),
			slog.String("role", string(u.CurrentRole)),
		)
		s.persistUser(ctx, &u)
	}
	if rec.SessionTheme != nil && s.prefs.Session(u.ID) == nil {
		s.prefs.SetSession(u.ID, *rec.SessionTheme)
	}
	if err := s.remember(u, rec.SessionTheme); err != nil {
		return domain.User{}, sessionRecord{}, err
	}
	rec.Session = domain.NewSession(u)
	return u, rec, nil
}

// remember writes the local user copy and the session echo, never the password hash
func (s *SessionManager) remember(u domain.User, sessionTheme *domain.Theme) error {
	u.PasswordHash = ""
	if err := bolt.Save(s.local, userKey(u.Email), u); err != nil {
		return fmt.Errorf("failed to cache user: %w", err)
	}
	rec := sessionRecord{Session: domain.NewSession(u), SessionTheme: sessionTheme}
	if err := bolt.Save(s.local, SessionKey, rec); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// persistUser writes u to the users collection. Backend failures only warn;
// the local copy keeps the session usable.
func (s *SessionManager) persistUser(ctx context.Context, u *domain.User) {
	if u.ID == "" {
		return
	}
	if err := s.mergeStored(ctx, u); err != nil {
		s.logger.Warn("skipping user write, stored record unreadable", slog.String("user_id", u.ID), slog.String("error", err.Error()))
		return
	}
	rec, err := domain.EncodeRecord(u)
	if err != nil {
		s.logger.Warn("failed to encode user", slog.String("user_id", u.ID), slog.String("error", err.Error()))
		return
	}

	users := s.entities.Users()
	out, ok, err := users.Update(ctx, u.ID, rec)
	if err == nil && !ok {
		out, err = users.Upsert(ctx, rec)
	}
	if err != nil {
		s.logger.Warn("failed to persist user record",
			slog.String("user_id", u.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if saved, err := domain.DecodeRecord[domain.User](out); err == nil {
		*u = saved
	}
}

// mergeStored folds the canonical users record into u. Roles only grow, and
// the stored current role applies when u has none. A missing record or an
// unreachable backend leaves u unchanged.
func (s *SessionManager) mergeStored(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		return nil
	}
	rec, err := s.entities.Users().Get(ctx, u.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case errors.Is(err, domain.ErrBackendUnavailable):
		s.logger.Debug("users backend unavailable, using cached copy", slog.String("user_id", u.ID))
		return nil
	case err != nil:
		return fmt.Errorf("failed to load user %s: %w", u.ID, err)
	}
	stored, err := domain.DecodeRecord[domain.User](rec)
	if err != nil {
		return fmt.Errorf("malformed user record %s: %w", u.ID, err)
	}
	u.AddRoles(stored.Roles...)
	if u.CurrentRole == "" && u.HasRole(stored.CurrentRole) {
		u.CurrentRole = stored.CurrentRole
	}
	return nil
}

// discoverRoles infers roles from matching profiles and the admin email marker.
// An account with no evidence of any role becomes a student.
func (s *SessionManager) discoverRoles(ctx context.Context, u *domain.User) {
	for _, role := range []domain.Role{domain.RoleStudent, domain.RoleLecturer} {
		coll, _ := domain.ProfileCollection(role)
		accessor, _ := s.entities.Collection(coll)
		if s.hasProfile(ctx, accessor, u.Email) {
			u.AddRoles(role)
		}
	}
	if strings.Contains(strings.ToLower(u.Email), strings.ToLower(s.cfg.AdminEmailMarker)) {
		u.AddRoles(domain.RoleAdmin)
	}
	if len(u.Roles) == 0 {
		u.AddRoles(domain.RoleStudent)
	}
	s.logger.Info("discovered roles", slog.String("user_id", u.ID), slog.Any("roles", u.Roles))
}

func (s *SessionManager) hasProfile(ctx context.Context, accessor *entity.Accessor, email string) bool {
	recs, err := accessor.List(ctx)
	if err != nil {
		s.logger.Warn("failed to probe role profiles",
			slog.String("collection", accessor.Collection()),
			slog.String("error", err.Error()),
		)
		return false
	}
	for _, rec := range recs {
		if strings.EqualFold(rec.String("email"), email) {
			return true
		}
	}
	return false
}

// ensureProfile creates a minimal role profile when none matches the user
func (s *SessionManager) ensureProfile(ctx context.Context, u domain.User, role domain.Role) {
	coll, ok := domain.ProfileCollection(role)
	if !ok {
		return
	}
	accessor, _ := s.entities.Collection(coll)
	recs, err := accessor.List(ctx)
	if err != nil {
		s.logger.Warn("failed to look up role profile", slog.String("collection", coll), slog.String("error", err.Error()))
		return
	}
	for _, rec := range recs {
		if strings.EqualFold(rec.String("email"), u.Email) {
			return
		}
	}
	created, err := accessor.Create(ctx, domain.Record{
		"full_name":          u.FullName,
		"email":              u.Email,
		"academic_track_ids": []string{},
	})
	if err != nil {
		s.logger.Warn("failed to create role profile", slog.String("collection", coll), slog.String("error", err.Error()))
		return
	}
	s.audit.LogEntityChange(ctx, u.ID, string(role), "create", coll, created.ID(), "success")
}

// overlayUser applies the cached copy over a directory record, field by field
func overlayUser(base, cached domain.User) domain.User {
	if cached.FullName != "" {
		base.FullName = cached.FullName
	}
	if cached.NationalID != "" {
		base.NationalID = cached.NationalID
	}
	base.AddRoles(cached.Roles...)
	if cached.CurrentRole != "" {
		base.CurrentRole = cached.CurrentRole
	}
	if cached.ThemePreference != nil {
		t := *cached.ThemePreference
		base.ThemePreference = &t
	}
	if !cached.CreatedDate.IsZero() {
		base.CreatedDate = cached.CreatedDate
	}
	return base
}

func userKey(email string) string {
	return UserKeyPrefix + strings.ToLower(strings.TrimSpace(email))
}
