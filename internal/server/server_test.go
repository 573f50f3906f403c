// internal/server/server_test.go
package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"CoverLedger/internal/observability"
	"CoverLedger/internal/server"
)

// newTestServer wires a server with no engine or database behind it.
// The routes exercised here reject the request before either is
// touched, so the plumbing can be tested in isolation.
func newTestServer() http.Handler {
	health := observability.NewHealthChecker()
	health.SetReady(true)
	return server.NewServer(":0", nil, nil, health).Handler()
}

// ===== Test: Health endpoints =====

func TestHealthEndpoints(t *testing.T) {
	handler := newTestServer()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, want 200", rec.Code)
	}
}

// ===== Test: Readiness gate =====

func TestReadinessGate(t *testing.T) {
	health := observability.NewHealthChecker()
	handler := server.NewServer(":0", nil, nil, health).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before recovery = %d, want 503", rec.Code)
	}
}

// ===== Test: Missing caller header =====

func TestMutationWithoutCallerHeader(t *testing.T) {
	handler := newTestServer()

	body := strings.NewReader(`{"cover_limit": 1000}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/policies/purchase", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var resp struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Category != "authorization" {
		t.Fatalf("category = %q, want authorization", resp.Category)
	}
}

// ===== Test: Malformed caller header =====

func TestMutationWithMalformedCallerHeader(t *testing.T) {
	handler := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/policies/purchase",
		strings.NewReader(`{"cover_limit": 1000}`))
	req.Header.Set("X-Caller-Address", "not-a-uuid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// ===== Test: Body validation =====

func TestMutationBodyValidation(t *testing.T) {
	handler := newTestServer()

	// cover_limit is required and must be positive.
	req := httptest.NewRequest(http.MethodPost, "/v1/policies/purchase",
		strings.NewReader(`{"cover_limit": 0}`))
	req.Header.Set("X-Caller-Address", "a81bc81b-dead-4e5d-abff-90865d1e13b1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// ===== Test: Asset decimals bound =====

func TestAddAssetRejectsUnsupportedDecimals(t *testing.T) {
	handler := newTestServer()

	// The registry supports at most 18 decimals; the API must agree.
	req := httptest.NewRequest(http.MethodPost, "/v1/assets",
		strings.NewReader(`{"symbol": "WBTC", "decimals": 19, "stable": false}`))
	req.Header.Set("X-Caller-Address", "a81bc81b-dead-4e5d-abff-90865d1e13b1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// ===== Test: Registry removal routes =====

func TestRemoveMoverRequiresCallerAndAddress(t *testing.T) {
	handler := newTestServer()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete,
		"/v1/movers/a81bc81b-dead-4e5d-abff-90865d1e13b1", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status without caller = %d, want 403", rec.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/v1/retainers/zzz", nil)
	req.Header.Set("X-Caller-Address", "a81bc81b-dead-4e5d-abff-90865d1e13b1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status with malformed address = %d, want 400", rec.Code)
	}
}

// ===== Test: Malformed path address =====

func TestMalformedPathAddress(t *testing.T) {
	handler := newTestServer()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/accounts/zzz", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
