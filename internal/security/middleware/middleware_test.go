package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/security/audit"
	"github.com/onoacademic/campusid/internal/security/auth"
	"github.com/onoacademic/campusid/internal/security/ratelimit"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func claimsEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := GetClaimsFromContext(r.Context()); c != nil {
			io.WriteString(w, c.UserID)
			return
		}
		io.WriteString(w, "anonymous")
	})
}

func TestJWTMiddleware(t *testing.T) {
	tm := auth.NewTokenManager("secret", "campusid")
	token, err := tm.GenerateToken("u1", "u1@ono.ac.il", domain.RoleStudent, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	h := JWTMiddleware(tm, discard())(claimsEcho())

	tests := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"public path", "/healthz", "", http.StatusOK, "anonymous"},
		{"field validation is public", "/api/validate/email", "", http.StatusOK, "anonymous"},
		{"missing header", "/api/entities/courses", "", http.StatusUnauthorized, ""},
		{"bad scheme", "/api/entities/courses", "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", "/api/entities/courses", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid token", "/api/entities/courses", "Bearer " + token, http.StatusOK, "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = audit.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "req-42" || rec.Header().Get("X-Request-ID") != "req-42" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "req-42" {
		t.Fatalf("expected a generated request id, got %q", seen)
	}
}

func TestRateLimitMiddlewareKeysByAddress(t *testing.T) {
	limiter := ratelimit.NewLimiter(2, time.Minute)
	defer limiter.Stop()
	h := RateLimitMiddleware(limiter, discard())(claimsEcho())

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/entities/courses", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	for i := 0; i < 2; i++ {
		if code := do("10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, code)
		}
	}
	if code := do("10.0.0.1:5678"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for the same host, got %d", code)
	}
	if code := do("10.0.0.2:1234"); code != http.StatusOK {
		t.Fatalf("other hosts keep their own budget, got %d", code)
	}
}

func TestJSONBody(t *testing.T) {
	h := JSONBody(discard(), 16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		status      int
	}{
		{"get passes", http.MethodGet, "", "", http.StatusNoContent},
		{"json post", http.MethodPost, "application/json; charset=utf-8", `{"a":1}`, http.StatusNoContent},
		{"form post", http.MethodPost, "application/x-www-form-urlencoded", "a=1", http.StatusUnsupportedMediaType},
		{"oversized", http.MethodPatch, "application/json", `{"a":"0123456789abcdef"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/entities/files", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://campus.ono.ac.il"})(claimsEcho())
	req := httptest.NewRequest(http.MethodOptions, "/api/entities/courses", nil)
	req.Header.Set("Origin", "https://campus.ono.ac.il")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://campus.ono.ac.il" {
		t.Fatalf("allow origin = %q", got)
	}
}
