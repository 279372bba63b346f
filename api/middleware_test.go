package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"civicwatch/config"
	"civicwatch/core/identity"
	"civicwatch/core/rbac"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.AppConfig{}
	return NewServer(cfg, ServerDeps{Policy: rbac.MustPolicy(rbac.DefaultRoles())}, nil)
}

func requestAs(principal identity.Principal, method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	return req.WithContext(identity.WithPrincipal(req.Context(), principal))
}

func TestSessionTokenSources(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/incidents/", nil)
	if got := sessionToken(req); got != "" {
		t.Fatalf("no credential: got %q", got)
	}

	req.Header.Set("Authorization", "Bearer abc123")
	if got := sessionToken(req); got != "abc123" {
		t.Fatalf("bearer token: got %q", got)
	}

	cookieReq := httptest.NewRequest(http.MethodGet, "/api/incidents/", nil)
	cookieReq.AddCookie(&http.Cookie{Name: sessionCookie, Value: "cookie-token"})
	if got := sessionToken(cookieReq); got != "cookie-token" {
		t.Fatalf("cookie token: got %q", got)
	}
}

func TestRequirePermission(t *testing.T) {
	s := testServer(t)
	called := false
	h := s.requirePermission(rbac.PermDepartmentsManage, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	h(rr, requestAs(identity.Principal{ID: "u1", Role: rbac.RoleAdmin}, http.MethodPost, "/api/departments/"))
	if rr.Code != http.StatusOK || !called {
		t.Fatalf("admin: status %d, called %v", rr.Code, called)
	}

	rr = httptest.NewRecorder()
	h(rr, requestAs(identity.Principal{ID: "u2", Role: rbac.RoleCitizen}, http.MethodPost, "/api/departments/"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("citizen: status %d, want 403", rr.Code)
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/api/departments/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no principal: status %d, want 401", rr.Code)
	}
}

func TestRequireScopedPermissionAcceptsAnyVariant(t *testing.T) {
	s := testServer(t)
	h := s.requireScopedPermission(rbac.PermIncidentsView, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Citizens only hold incidents.view.own; the route gate still passes
	// and the orchestrator applies the ownership check.
	rr := httptest.NewRecorder()
	h(rr, requestAs(identity.Principal{ID: "u1", Role: rbac.RoleCitizen}, http.MethodGet, "/api/incidents/"))
	if rr.Code != http.StatusOK {
		t.Fatalf("citizen scoped view: status %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	h(rr, requestAs(identity.Principal{ID: "u2", Role: "ghost"}, http.MethodGet, "/api/incidents/"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unknown role: status %d, want 403", rr.Code)
	}
}

func TestLoginLimiter(t *testing.T) {
	limiter := newLimiter(3, time.Hour)
	for i := 0; i < 3; i++ {
		if !limiter.allow("10.0.0.1") {
			t.Fatalf("attempt %d should pass", i+1)
		}
	}
	if limiter.allow("10.0.0.1") {
		t.Fatalf("fourth attempt should be limited")
	}
	if !limiter.allow("10.0.0.2") {
		t.Fatalf("other key must not be limited")
	}
}

func TestStatusRecorder(t *testing.T) {
	rr := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: rr, status: http.StatusOK}
	rec.WriteHeader(http.StatusTeapot)
	if _, err := rec.Write([]byte("short and stout")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if rec.status != http.StatusTeapot || rec.size != len("short and stout") {
		t.Fatalf("recorder status=%d size=%d", rec.status, rec.size)
	}
}
