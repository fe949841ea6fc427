package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/entity"
	"github.com/onoacademic/campusid/internal/infrastructure/bolt"
	"github.com/onoacademic/campusid/internal/repository"
	"github.com/onoacademic/campusid/internal/security/audit"
	"github.com/onoacademic/campusid/internal/security/auth"
	"github.com/onoacademic/campusid/internal/theme"
	"github.com/onoacademic/campusid/internal/validation"
)

const demoPassword = "123456"

// downStore behaves like an unreachable backend
type downStore struct{}

func (downStore) List(context.Context, string) ([]domain.Record, error) {
	return nil, domain.ErrBackendUnavailable
}
func (downStore) Get(context.Context, string, string) (domain.Record, error) {
	return nil, domain.ErrBackendUnavailable
}
func (downStore) Put(context.Context, string, domain.Record) error {
	return domain.ErrBackendUnavailable
}
func (downStore) Delete(context.Context, string, string) (bool, error) {
	return false, domain.ErrBackendUnavailable
}
func (downStore) Ping(context.Context) error { return domain.ErrBackendUnavailable }

type harness struct {
	sessions *SessionManager
	entities *entity.Client
	local    *bolt.Storage
	tokens   *auth.TokenManager
}

func newHarness(t *testing.T, store domain.Store) *harness {
	t.Helper()
	local, err := bolt.Open(filepath.Join(t.TempDir(), "campusid.db"))
	if err != nil {
		t.Fatalf("bolt.Open: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	entities := entity.NewClient(store, entity.WithLogger(logger))
	tokens := auth.NewTokenManager("test-secret", "campusid-test")
	authn := NewFallbackAuthenticator(NewStoreAuthenticator(entities.Users()), auth.NewDirectory(demoPassword), logger)
	resolver := &theme.Resolver{DayStartHour: 7, DayEndHour: 19, Now: func() time.Time {
		return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	}}
	sessions := NewSessionManager(authn, entities, local, tokens, resolver, audit.NewLogger(logger), SessionConfig{
		SessionTTL:       time.Hour,
		AdminEmailMarker: "admin",
		DemoPassword:     demoPassword,
	}, logger)
	return &harness{sessions: sessions, entities: entities, local: local, tokens: tokens}
}

func TestLoginFallsBackWhenBackendIsDown(t *testing.T) {
	h := newHarness(t, downStore{})
	ctx := context.Background()

	res, err := h.sessions.Login(ctx, "student@ono.ac.il", demoPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Source != SourceDemo {
		t.Fatalf("expected demo source, got %s", res.Source)
	}
	if !slices.Contains(res.User.Roles, domain.RoleStudent) || res.User.CurrentRole != domain.RoleStudent {
		t.Fatalf("unexpected roles %v current %s", res.User.Roles, res.User.CurrentRole)
	}
	if res.Token == "" {
		t.Fatal("expected a session token")
	}

	me, err := h.sessions.Me(ctx)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.ID != res.User.ID {
		t.Fatalf("Me returned %s, want %s", me.ID, res.User.ID)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	h := newHarness(t, repository.NewMemoryStore())
	ctx := context.Background()

	_, err := h.sessions.Login(ctx, "student@ono.ac.il", "nope")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := h.sessions.Me(ctx); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestFallbackLoginKeepsCachedEdits(t *testing.T) {
	h := newHarness(t, downStore{})
	ctx := context.Background()

	if _, err := h.sessions.Login(ctx, "student@ono.ac.il", demoPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := h.sessions.UpdateMyUserData(ctx, domain.Record{"full_name": "יוסי לוי"}); err != nil {
		t.Fatalf("UpdateMyUserData: %v", err)
	}
	if err := h.sessions.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := h.sessions.Me(ctx); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated after logout, got %v", err)
	}

	res, err := h.sessions.Login(ctx, "student@ono.ac.il", demoPassword)
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if res.User.FullName != "יוסי לוי" {
		t.Fatalf("cached name lost, got %q", res.User.FullName)
	}
}

func TestUpdateMyUserDataRejectsInvalidAndLockedFields(t *testing.T) {
	h := newHarness(t, repository.NewMemoryStore())
	ctx := context.Background()
	if _, err := h.sessions.Login(ctx, "student@ono.ac.il", demoPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, err := h.sessions.UpdateMyUserData(ctx, domain.Record{"full_name": "John"})
	var formErr *validation.FormError
	if !errors.Is(err, domain.ErrValidation) || !errors.As(err, &formErr) || formErr.Errors["full_name"] == "" {
		t.Fatalf("expected a full_name validation error, got %v", err)
	}

	u, err := h.sessions.UpdateMyUserData(ctx, domain.Record{"roles": []string{"admin"}, "national_id": "000000018"})
	if err != nil {
		t.Fatalf("UpdateMyUserData: %v", err)
	}
	if u.HasRole(domain.RoleAdmin) {
		t.Fatal("roles must not be self-assigned")
	}
	if u.NationalID != "000000018" {
		t.Fatalf("national_id not applied, got %q", u.NationalID)
	}
}

func TestLoginAgainstStoredUserDiscoversRoles(t *testing.T) {
	h := newHarness(t, repository.NewMemoryStore())
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if _, err := h.entities.Users().Upsert(ctx, domain.Record{
		"id":            "u1",
		"full_name":     "דנה לוי",
		"email":         "Dana@ono.ac.il",
		"roles":         []string{},
		"password_hash": string(hash),
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := h.entities.Lecturers().Create(ctx, domain.Record{"full_name": "דנה לוי", "email": "dana@ono.ac.il"}); err != nil {
		t.Fatalf("seed lecturer: %v", err)
	}

	res, err := h.sessions.Login(ctx, "dana@ono.ac.il", "s3cret!")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Source != SourceBackend {
		t.Fatalf("expected backend source, got %s", res.Source)
	}
	if !slices.Equal(res.User.Roles, []domain.Role{domain.RoleLecturer}) || res.User.CurrentRole != domain.RoleLecturer {
		t.Fatalf("unexpected roles %v current %s", res.User.Roles, res.User.CurrentRole)
	}
	if res.User.PasswordHash != "" {
		t.Fatal("login result must not carry the password hash")
	}

	stored, err := h.entities.Users().Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	u, _ := domain.DecodeRecord[domain.User](stored)
	if !u.HasRole(domain.RoleLecturer) || u.PasswordHash == "" {
		t.Fatalf("discovered roles must be persisted without dropping the hash, got %+v", u)
	}
}

func TestRoleDiscoveryUsesAdminMarkerAndDefaultsToStudent(t *testing.T) {
	h := newHarness(t, repository.NewMemoryStore())
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	for id, email := range map[string]string{"a1": "ops.admin@ono.ac.il", "s1": "nobody@ono.ac.il"} {
		if _, err := h.entities.Users().Upsert(ctx, domain.Record{"id": id, "email": email, "password_hash": string(hash)}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	res, err := h.sessions.Login(ctx, "ops.admin@ono.ac.il", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.CurrentRole != domain.RoleAdmin {
		t.Fatalf("expected admin, got %v", res.User.Roles)
	}

	res, err = h.sessions.Login(ctx, "nobody@ono.ac.il", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !slices.Equal(res.User.Roles, []domain.Role{domain.RoleStudent}) {
		t.Fatalf("expected student default, got %v", res.User.Roles)
	}
}

func TestSwitchRole(t *testing.T) {
	h := newHarness(t, repository.NewMemoryStore())
	ctx := context.Background()

	res, err := h.sessions.Login(ctx, "multi@ono.ac.il", demoPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.CurrentRole != domain.RoleLecturer {
		t.Fatalf("expected lecturer by priority, got %s", res.User.CurrentRole)
	}

	ok, err := h.sessions.SwitchRole(ctx, domain.RoleStudent)
	if err != nil || !ok {
		t.Fatalf("SwitchRole: ok=%v err=%v", ok, err)
	}
	sess, err := h.sessions.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("CurrentSession: %v", err)
	}
	if sess.CurrentRole != domain.RoleStudent || sess.User.CurrentRole != domain.RoleStudent {
		t.Fatalf("session not updated: %+v", sess)
	}
	token, _ := h.sessions.Token()
	claims, err := h.tokens.ValidateToken(token)
	if err != nil || claims.Role != domain.RoleStudent {
		t.Fatalf("token not reissued for the new role: %v %v", claims, err)
	}

	profiles, _ := h.entities.Students().Filter(ctx, map[string]string{"email": "multi@ono.ac.il"})
	if len(profiles) != 1 {
		t.Fatalf("expected a lazily created student profile, got %d", len(profiles))
	}

	ok, err = h.sessions.SwitchRole(ctx, domain.RoleAdmin)
	if ok || !errors.Is(err, domain.ErrRoleNotAvailable) {
		t.Fatalf("expected ErrRoleNotAvailable, got ok=%v err=%v", ok, err)
	}
	me, _ := h.sessions.Me(ctx)
	if me.CurrentRole != domain.RoleStudent {
		t.Fatalf("a refused switch must leave the role unchanged, got %s", me.CurrentRole)
	}
}

func TestMeCorrectsStaleCurrentRole(t *testing.T) {
	h := newHarness(t, repository.NewMemoryStore())
	ctx := context.Background()

	res, err := h.sessions.Login(ctx, "student@ono.ac.il", demoPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	stale := res.User
	stale.CurrentRole = domain.RoleAdmin
	if err := bolt.Save(h.local, UserKeyPrefix+"student@ono.ac.il", stale); err != nil {
		t.Fatalf("Save: %v", err)
	}

	me, err := h.sessions.Me(ctx)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.CurrentRole != domain.RoleStudent {
		t.Fatalf("expected corrected role student, got %s", me.CurrentRole)
	}
}

func TestThemeLifecycle(t *testing.T) {
	h := newHarness(t, repository.NewMemoryStore())
	ctx := context.Background()

	got, src, err := h.sessions.Theme(ctx)
	if err != nil || got != domain.ThemeLight || src != theme.SourceAuto {
		t.Fatalf("expected auto light before login, got %s/%s err=%v", got, src, err)
	}
	if err := h.sessions.SetTheme(ctx, domain.ThemeDark); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("SetTheme requires a session, got %v", err)
	}

	if _, err := h.sessions.Login(ctx, "lecturer@ono.ac.il", demoPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := h.sessions.ConfirmTheme(ctx); !errors.Is(err, ErrNoSessionTheme) {
		t.Fatalf("expected ErrNoSessionTheme, got %v", err)
	}
	if err := h.sessions.SetTheme(ctx, domain.ThemeDark); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	got, src, _ = h.sessions.Theme(ctx)
	if got != domain.ThemeDark || src != theme.SourceSession {
		t.Fatalf("expected session dark, got %s/%s", got, src)
	}
	if durable, _ := theme.NewPreferences(h.local).Durable(); durable != nil {
		t.Fatal("setting a theme must not touch the permanent preference")
	}

	if _, err := h.sessions.ConfirmTheme(ctx); err != nil {
		t.Fatalf("ConfirmTheme: %v", err)
	}
	if err := h.sessions.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	got, src, _ = h.sessions.Theme(ctx)
	if got != domain.ThemeDark || src != theme.SourcePermanent {
		t.Fatalf("permanent preference must survive logout, got %s/%s", got, src)
	}

	res, err := h.sessions.Login(ctx, "lecturer@ono.ac.il", demoPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.ThemePreference == nil || *res.User.ThemePreference != domain.ThemeDark {
		t.Fatalf("user record must carry the confirmed theme, got %v", res.User.ThemePreference)
	}

	if err := h.sessions.ForgetTheme(ctx); err != nil {
		t.Fatalf("ForgetTheme: %v", err)
	}
	got, src, _ = h.sessions.Theme(ctx)
	if got != domain.ThemeLight || src != theme.SourceAuto {
		t.Fatalf("expected auto light after forget, got %s/%s", got, src)
	}
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t, repository.NewMemoryStore())
	ctx := context.Background()

	if _, err := h.sessions.Login(ctx, "student@ono.ac.il", demoPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := h.sessions.ChangePassword(ctx, "wrong", "N3w!Secret9"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := h.sessions.ChangePassword(ctx, demoPassword, "short"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := h.sessions.ChangePassword(ctx, demoPassword, "N3w!Secret9"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if err := h.sessions.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := h.sessions.Login(ctx, "student@ono.ac.il", demoPassword); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("the shared demo password must stop working after a change, got %v", err)
	}
	res, err := h.sessions.Login(ctx, "student@ono.ac.il", "N3w!Secret9")
	if err != nil {
		t.Fatalf("Login with new password: %v", err)
	}
	if res.Source != SourceBackend {
		t.Fatalf("expected the stored hash to authenticate, got %s", res.Source)
	}
}

func storedRoles(t *testing.T, h *harness, id string) []domain.Role {
	t.Helper()
	rec, err := h.entities.Users().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get %s: %v", id, err)
	}
	u, err := domain.DecodeRecord[domain.User](rec)
	if err != nil {
		t.Fatalf("decode %s: %v", id, err)
	}
	return u.Roles
}

func TestDemoLoginKeepsRolesGrantedOnBackend(t *testing.T) {
	h := newHarness(t, repository.NewMemoryStore())
	ctx := context.Background()

	if _, err := h.entities.Users().Upsert(ctx, domain.Record{
		"id":    "demo_student",
		"email": "student@ono.ac.il",
		"roles": []string{"student", "lecturer"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := h.sessions.Login(ctx, "student@ono.ac.il", demoPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Source != SourceDemo {
		t.Fatalf("expected demo source, got %s", res.Source)
	}
	if !res.User.HasRole(domain.RoleLecturer) {
		t.Fatalf("login dropped the backend lecturer role: %v", res.User.Roles)
	}
	if roles := storedRoles(t, h, "demo_student"); !slices.Contains(roles, domain.RoleLecturer) {
		t.Fatalf("lecturer role revoked on the backend: %v", roles)
	}

	sess, err := h.sessions.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("CurrentSession: %v", err)
	}
	if !slices.Contains(sess.AvailableRoles, domain.RoleLecturer) {
		t.Fatalf("expected lecturer to be available, got %v", sess.AvailableRoles)
	}
}

func TestRoleGrantedMidSessionSurvivesWrites(t *testing.T) {
	h := newHarness(t, repository.NewMemoryStore())
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret!"), bcrypt.MinCost)
	if _, err := h.entities.Users().Upsert(ctx, domain.Record{
		"id":            "u1",
		"full_name":     "דנה לוי",
		"email":         "dana@ono.ac.il",
		"roles":         []string{"student"},
		"password_hash": string(hash),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := h.sessions.Login(ctx, "dana@ono.ac.il", "s3cret!"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, ok, err := h.entities.Users().Update(ctx, "u1", domain.Record{"roles": []string{"student", "lecturer"}}); err != nil || !ok {
		t.Fatalf("grant lecturer: ok=%v err=%v", ok, err)
	}

	if err := h.sessions.SetTheme(ctx, domain.ThemeDark); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if _, err := h.sessions.ConfirmTheme(ctx); err != nil {
		t.Fatalf("ConfirmTheme: %v", err)
	}
	if roles := storedRoles(t, h, "u1"); !slices.Contains(roles, domain.RoleLecturer) {
		t.Fatalf("ConfirmTheme erased the lecturer grant: %v", roles)
	}

	if _, err := h.sessions.UpdateMyUserData(ctx, domain.Record{"full_name": "דנה כהן"}); err != nil {
		t.Fatalf("UpdateMyUserData: %v", err)
	}
	if roles := storedRoles(t, h, "u1"); !slices.Contains(roles, domain.RoleLecturer) {
		t.Fatalf("UpdateMyUserData erased the lecturer grant: %v", roles)
	}

	sess, err := h.sessions.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("CurrentSession: %v", err)
	}
	if !slices.Contains(sess.AvailableRoles, domain.RoleLecturer) {
		t.Fatalf("session did not pick up the grant: %v", sess.AvailableRoles)
	}
	if ok, err := h.sessions.SwitchRole(ctx, domain.RoleLecturer); !ok || err != nil {
		t.Fatalf("SwitchRole(lecturer): ok=%v err=%v", ok, err)
	}
}

func TestUpdateMyUserDataClearsOptionalFieldsWithNull(t *testing.T) {
	h := newHarness(t, repository.NewMemoryStore())
	ctx := context.Background()
	if _, err := h.sessions.Login(ctx, "student@ono.ac.il", demoPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := h.sessions.UpdateMyUserData(ctx, domain.Record{"national_id": "000000018"}); err != nil {
		t.Fatalf("set national_id: %v", err)
	}
	u, err := h.sessions.UpdateMyUserData(ctx, domain.Record{"national_id": nil})
	if err != nil {
		t.Fatalf("clear national_id: %v", err)
	}
	if u.NationalID != "" {
		t.Fatalf("expected national_id cleared, got %q", u.NationalID)
	}

	_, err = h.sessions.UpdateMyUserData(ctx, domain.Record{"full_name": nil})
	var formErr *validation.FormError
	if !errors.As(err, &formErr) || formErr.Errors["full_name"] == "" {
		t.Fatalf("full_name must not be clearable, got %v", err)
	}
}
