package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler(hit *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireDatabaseRejectsWhenUnhealthy(t *testing.T) {
	a := newTestApp(t)
	seedHealth(a, false, true)

	hit := false
	rec := httptest.NewRecorder()
	a.RequireDatabase(okHandler(&hit)).ServeHTTP(rec, httptest.NewRequest("GET", "/listings", nil))

	if hit {
		t.Error("handler ran despite unhealthy database")
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["error"] == "" {
		t.Error("missing error message in body")
	}
}

func TestRequireDatabasePassesWhenHealthy(t *testing.T) {
	a := newTestApp(t)
	seedHealth(a, true, true)

	hit := false
	rec := httptest.NewRecorder()
	a.RequireDatabase(okHandler(&hit)).ServeHTTP(rec, httptest.NewRequest("GET", "/listings", nil))

	if !hit {
		t.Error("handler did not run with healthy database")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestWithCacheNeverBlocks(t *testing.T) {
	a := newTestApp(t)
	seedHealth(a, true, false)

	hit := false
	rec := httptest.NewRecorder()
	a.WithCache(okHandler(&hit)).ServeHTTP(rec, httptest.NewRequest("GET", "/listings", nil))

	if !hit {
		t.Error("handler did not run with unhealthy cache")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Cache-Degraded") != "true" {
		t.Error("missing degraded-cache marker")
	}
}

func TestRequestID(t *testing.T) {
	var got string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	RequestID(inner).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got == "" {
		t.Error("request ID missing from context")
	}
	if rec.Header().Get("X-Request-ID") != got {
		t.Error("response header does not match context request ID")
	}

	// An inbound ID is kept, not replaced.
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec = httptest.NewRecorder()
	RequestID(inner).ServeHTTP(rec, req)
	if got != "upstream-id" {
		t.Errorf("request ID = %q, want upstream-id", got)
	}
}

func TestHealthEndpointStatuses(t *testing.T) {
	tests := []struct {
		name       string
		db, redis  bool
		wantCode   int
		wantStatus string
	}{
		{"all healthy", true, true, http.StatusOK, "healthy"},
		{"cache degraded", true, false, http.StatusOK, "degraded"},
		{"database down", false, true, http.StatusServiceUnavailable, "critical"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t)
			seedHealth(a, tt.db, tt.redis)
			srv := NewServer(a, 0)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %q, want %q", body["status"], tt.wantStatus)
			}
		})
	}
}

func TestDetailedHealthEndpoint(t *testing.T) {
	a := newTestApp(t)
	seedHealth(a, true, false)
	srv := NewServer(a, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health/detailed", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	var snap HealthSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if !snap.Database || snap.Redis {
		t.Errorf("snapshot = %+v, want db healthy and redis unhealthy", snap)
	}
}
