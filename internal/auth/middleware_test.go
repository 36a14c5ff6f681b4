package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:alice:exporter|analyst, k2:bob:analyst")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	if validator.Len() != 2 {
		t.Fatalf("Len() = %d", validator.Len())
	}
	identity, ok := validator.Validate(context.Background(), "k1")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.Principal != "alice" {
		t.Fatalf("Principal = %q", identity.Principal)
	}
	if !identity.HasRole(RoleExporter) || identity.Roles[0] != RoleAnalyst {
		t.Fatalf("Roles = %#v", identity.Roles)
	}
	if _, ok := validator.Validate(context.Background(), "nope"); ok {
		t.Fatal("unknown key should not validate")
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{"invalid", "k1::analyst", "k1:alice:", "k1:a:analyst,k1:b:analyst"} {
		if _, err := NewStaticAPIKeyValidator(spec); err == nil {
			t.Fatalf("expected parse error for %q", spec)
		}
	}
}

func newTestHandler(t *testing.T, spec string, public ...string) http.Handler {
	t.Helper()
	validator, err := NewStaticAPIKeyValidator(spec)
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator, public...)
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Principal", PrincipalFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestMiddlewareRequiresKey(t *testing.T) {
	handler := newTestHandler(t, "k1:alice:analyst")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/analyst/query", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	handler := newTestHandler(t, "k1:alice:analyst")
	req := httptest.NewRequest(http.MethodPost, "/api/analyst/query", nil)
	req.Header.Set("Authorization", "bearer k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Principal") != "alice" {
		t.Fatalf("principal = %q", rr.Header().Get("X-Principal"))
	}
}

func TestMiddlewareRequiresAnalystRole(t *testing.T) {
	handler := newTestHandler(t, "k1:carol:exporter")
	req := httptest.NewRequest(http.MethodPost, "/api/analyst/query", nil)
	req.Header.Set("X-API-Key", "k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestMiddlewareSkipsPublicPathsAndPreflight(t *testing.T) {
	handler := newTestHandler(t, "k1:alice:analyst", "/api/health")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("health status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/analyst/query", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rr.Code)
	}
}
