package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sponsorlabs/gasrelay/security"
)

func newTestStore(t *testing.T, cfg *security.FileConfig) *security.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "security-config.json")
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	store, err := security.NewStore(path)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func gateConfig() *security.FileConfig {
	return &security.FileConfig{
		APIKeys: []security.APIKeyConfig{
			{Key: "valid-key", Name: "tester", Enabled: true},
			{Key: "cidr-key", Name: "cidr", Enabled: true, AllowedIPs: []string{"10.0.0.0/24"}},
		},
		Settings: security.Settings{
			RequireAPIKey:      true,
			EnforceIPWhitelist: true,
			LogFailedAttempts:  true,
		},
	}
}

// passthrough records whether the gate let the request reach the handler and
// which tenant it attached.
func passthrough(t *testing.T, gate *Gate, req *http.Request) (*httptest.ResponseRecorder, bool, string) {
	t.Helper()
	reached := false
	tenantName := ""
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		if tenant := TenantFrom(r.Context()); tenant != nil {
			tenantName = tenant.APIKeyName
		}
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, reached, tenantName
}

func TestGate_BypassPaths(t *testing.T) {
	gate := NewGate(newTestStore(t, gateConfig()), true)
	for _, path := range []string{"/health", "/ping", "/status", "/actuator/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		_, reached, _ := passthrough(t, gate, req)
		if !reached {
			t.Errorf("%s should bypass authentication", path)
		}
	}
}

func TestGate_MissingKey(t *testing.T) {
	gate := NewGate(newTestStore(t, gateConfig()), true)
	req := httptest.NewRequest(http.MethodPost, "/api/nft/mint", nil)
	rec, reached, _ := passthrough(t, gate, req)
	if reached {
		t.Fatal("Request without a key must not pass")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Rejection body is not JSON: %v", err)
	}
	for _, field := range []string{"error", "message", "timestamp"} {
		if body[field] == "" {
			t.Errorf("Rejection body missing %q", field)
		}
	}
}

func TestGate_KeyExtraction(t *testing.T) {
	gate := NewGate(newTestStore(t, gateConfig()), true)
	cases := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"header", func(r *http.Request) { r.Header.Set("X-API-Key", "valid-key") }},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer valid-key") }},
		{"query", func(r *http.Request) { r.URL.RawQuery = "api_key=valid-key" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/nft/mint", nil)
			req.RemoteAddr = "127.0.0.1:50000"
			tc.setup(req)
			_, reached, tenant := passthrough(t, gate, req)
			if !reached {
				t.Fatal("Valid key should pass")
			}
			if tenant != "tester" {
				t.Errorf("Tenant name %q, expected tester", tenant)
			}
		})
	}
}

func TestGate_InvalidKey(t *testing.T) {
	gate := NewGate(newTestStore(t, gateConfig()), true)
	req := httptest.NewRequest(http.MethodPost, "/api/nft/mint", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	rec, reached, _ := passthrough(t, gate, req)
	if reached || rec.Code != http.StatusUnauthorized {
		t.Errorf("Invalid key must be rejected with 401, got %d (reached=%v)", rec.Code, reached)
	}
}

func TestGate_IPWhitelist(t *testing.T) {
	gate := NewGate(newTestStore(t, gateConfig()), true)

	req := httptest.NewRequest(http.MethodPost, "/api/nft/mint", nil)
	req.Header.Set("X-API-Key", "cidr-key")
	req.RemoteAddr = "10.0.0.7:1234"
	if _, reached, _ := passthrough(t, gate, req); !reached {
		t.Error("IP inside the key's CIDR should pass")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/nft/mint", nil)
	req.Header.Set("X-API-Key", "cidr-key")
	req.RemoteAddr = "192.0.2.1:1234"
	if rec, reached, _ := passthrough(t, gate, req); reached || rec.Code != http.StatusUnauthorized {
		t.Error("IP outside the key's CIDR must be rejected")
	}
}

func TestGate_Disabled(t *testing.T) {
	gate := NewGate(newTestStore(t, gateConfig()), false)
	req := httptest.NewRequest(http.MethodPost, "/api/nft/mint", nil)
	if _, reached, _ := passthrough(t, gate, req); !reached {
		t.Error("Disabled gate should pass everything through")
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(r *http.Request)
		remote string
		want   string
	}{
		{
			"forwarded-for first token",
			func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1") },
			"10.0.0.2:999", "203.0.113.5",
		},
		{
			"real-ip",
			func(r *http.Request) { r.Header.Set("X-Real-IP", "198.51.100.7") },
			"10.0.0.2:999", "198.51.100.7",
		},
		{
			"cf-connecting-ip",
			func(r *http.Request) { r.Header.Set("CF-Connecting-IP", "192.0.2.33") },
			"10.0.0.2:999", "192.0.2.33",
		},
		{
			"remote addr fallback",
			func(r *http.Request) {},
			"192.0.2.99:1234", "192.0.2.99",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.RemoteAddr = tc.remote
			tc.setup(req)
			if got := ClientIP(req); got != tc.want {
				t.Errorf("ClientIP = %q, expected %q", got, tc.want)
			}
		})
	}
}

func TestLimiterPool(t *testing.T) {
	pool := newLimiterPool()
	// Burst equals the per-minute budget; the 61st immediate request fails.
	allowed := 0
	for i := 0; i < 61; i++ {
		if pool.allow("k", 60) {
			allowed++
		}
	}
	if allowed != 60 {
		t.Errorf("Expected 60 immediate requests allowed, got %d", allowed)
	}
	if !pool.allow("other", 60) {
		t.Error("A different key must have its own bucket")
	}
}
