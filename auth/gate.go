// Package auth implements the HTTP authentication gate: credential and
// client-IP extraction, validation against the security store, rate
// limiting, and TenantContext injection.
package auth

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sponsorlabs/gasrelay"
	"github.com/sponsorlabs/gasrelay/logging"
	"github.com/sponsorlabs/gasrelay/security"
)

type contextKey struct{}

// bypassPaths are served without authentication.
var bypassPaths = map[string]struct{}{
	"/health":          {},
	"/ping":            {},
	"/status":          {},
	"/actuator/health": {},
}

// Gate is the authentication middleware.
type Gate struct {
	store    *security.Store
	limiters *limiterPool
	enabled  bool
	logger   logging.Logger
}

// NewGate creates the gate. When enabled is false every request passes
// through unchanged.
func NewGate(store *security.Store, enabled bool) *Gate {
	return &Gate{
		store:    store,
		limiters: newLimiterPool(),
		enabled:  enabled,
		logger:   logging.New("auth"),
	}
}

// Middleware wraps next with authentication. On success the resolved
// TenantContext is attached to the request context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := bypassPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		snap := g.store.Snapshot()
		if !g.enabled || !snap.Settings.RequireAPIKey {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := ClientIP(r)
		key := extractAPIKey(r)
		if key == "" {
			g.reject(w, r, snap, clientIP, "missing API key")
			return
		}
		rec, ok := snap.Index[key]
		if !ok {
			g.reject(w, r, snap, clientIP, "invalid API key")
			return
		}
		if snap.Settings.EnforceIPWhitelist && !snap.IsAllowed(clientIP, rec) {
			g.reject(w, r, snap, clientIP, "IP address not allowed")
			return
		}
		if snap.Settings.RateLimitEnabled && !g.limiters.allow(rec.Key, snap.Settings.RateLimitRequestsPerMinute) {
			g.reject(w, r, snap, clientIP, "rate limit exceeded")
			return
		}

		tenant := &gasrelay.TenantContext{
			APIKeyName: rec.Name,
			ClientIP:   clientIP,
			Wallet:     rec.Wallet,
		}
		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenant)))
	})
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, snap *security.Snapshot, clientIP, message string) {
	if snap.Settings.LogFailedAttempts {
		g.logger.Warnf("rejected %s %s from %s: %s", r.Method, r.URL.Path, clientIP, message)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":     gasrelay.KindAuth.String(),
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// extractAPIKey pulls the key from the X-API-Key header, an Authorization
// bearer token, or the api_key query parameter, in that order.
func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if authz := r.Header.Get("Authorization"); authz != "" {
		if token, ok := strings.CutPrefix(authz, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("api_key")
}

// forwardHeaders are tried in order for the original client IP behind
// proxies.
var forwardHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"X-Client-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
}

// ClientIP extracts the client address from the first non-empty forwarding
// header, falling back to the transport peer.
func ClientIP(r *http.Request) string {
	for _, h := range forwardHeaders {
		v := strings.TrimSpace(r.Header.Get(h))
		if v == "" {
			continue
		}
		// X-Forwarded-For may carry a proxy chain; the first token is the
		// original client.
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = strings.TrimSpace(v[:i])
		}
		if v != "" {
			return v
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WithTenant attaches a tenant context.
func WithTenant(ctx context.Context, tenant *gasrelay.TenantContext) context.Context {
	return context.WithValue(ctx, contextKey{}, tenant)
}

// TenantFrom returns the tenant attached by the gate, or nil when the
// request bypassed authentication.
func TenantFrom(ctx context.Context) *gasrelay.TenantContext {
	tenant, _ := ctx.Value(contextKey{}).(*gasrelay.TenantContext)
	return tenant
}
