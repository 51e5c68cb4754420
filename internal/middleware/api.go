// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for API-key authentication,
// org scoping, permissions and rate limiting.
package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/olegiv/fieldops-go/internal/model"
	"github.com/olegiv/fieldops-go/internal/store"
)

// ContextKey is the type for request-context keys set by this package.
type ContextKey string

const (
	// ContextKeyAPIKey holds the authenticated model.APIKey.
	ContextKeyAPIKey ContextKey = "api_key"

	// ContextKeyOrgID holds the request's tenant org id.
	ContextKeyOrgID ContextKey = "org_id"
)

// OrgIDHeader is the tenant header devices send on every request.
const OrgIDHeader = "X-Org-ID"

// APIError is the JSON error envelope for middleware-level failures.
type APIError struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// WriteAPIError writes a JSON error response.
func WriteAPIError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	apiErr := APIError{}
	apiErr.Error.Code = code
	apiErr.Error.Message = message
	apiErr.Error.Details = details
	_ = json.NewEncoder(w).Encode(apiErr)
}

// APIKeyAuth validates the Bearer API key, checks it against the X-Org-ID
// tenant header, and puts both on the request context. Keys may be
// org-scoped; a key with an empty org id works for any org.
func APIKeyAuth(db *sql.DB) func(http.Handler) http.Handler {
	queries := store.New(db)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, ok := validateAPIKey(w, r, queries)
			if !ok {
				return
			}

			orgID := r.Header.Get(OrgIDHeader)
			if orgID == "" {
				orgID = apiKey.OrgID
			}
			if orgID == "" {
				WriteAPIError(w, http.StatusBadRequest, "missing_org", "Missing "+OrgIDHeader+" header", nil)
				return
			}
			if apiKey.OrgID != "" && apiKey.OrgID != orgID {
				slog.Warn("api key used for wrong org",
					"category", model.EventCategoryAuth,
					"key_prefix", apiKey.KeyPrefix,
					"org_id", orgID)
				WriteAPIError(w, http.StatusForbidden, "org_mismatch", "API key is not valid for this org", nil)
				return
			}

			updateAPIKeyLastUsed(queries, apiKey.ID)

			ctx := context.WithValue(r.Context(), ContextKeyAPIKey, *apiKey)
			ctx = context.WithValue(ctx, ContextKeyOrgID, orgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateAPIKey checks the Authorization header. On failure it writes the
// error response and returns false.
func validateAPIKey(w http.ResponseWriter, r *http.Request, queries *store.Queries) (*model.APIKey, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Missing Authorization header", nil)
		return nil, false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Invalid Authorization header format. Use: Bearer <api_key>", nil)
		return nil, false
	}

	apiKey, err := queries.GetAPIKeyByHash(r.Context(), model.HashAPIKey(parts[1]))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Invalid API key", nil)
		} else {
			slog.Error("failed to validate API key", "error", err)
			WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to validate API key", nil)
		}
		return nil, false
	}

	if !apiKey.IsActive {
		WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "API key is inactive", nil)
		return nil, false
	}
	if apiKey.IsExpired() {
		WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "API key has expired", nil)
		return nil, false
	}

	return &apiKey, true
}

// GetAPIKey retrieves the API key from the request context, or nil.
func GetAPIKey(r *http.Request) *model.APIKey {
	apiKey, ok := r.Context().Value(ContextKeyAPIKey).(model.APIKey)
	if !ok {
		return nil
	}
	return &apiKey
}

// GetOrgID retrieves the tenant org id from the request context.
func GetOrgID(r *http.Request) string {
	orgID, _ := r.Context().Value(ContextKeyOrgID).(string)
	return orgID
}

// updateAPIKeyLastUsed records key usage without blocking the request.
func updateAPIKeyLastUsed(queries *store.Queries, keyID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queries.UpdateAPIKeyLastUsed(ctx, keyID, time.Now())
	}()
}

// RequirePermission requires one specific permission. Use after APIKeyAuth.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := GetAPIKey(r)
			if apiKey == nil {
				WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "API key required", nil)
				return
			}
			if !apiKey.HasPermission(permission) {
				WriteAPIError(w, http.StatusForbidden, "forbidden", "API key lacks required permission: "+permission, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission requires any one of the given permissions. Use
// after APIKeyAuth.
func RequireAnyPermission(requiredPerms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := GetAPIKey(r)
			if apiKey == nil {
				WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "API key required", nil)
				return
			}
			for _, p := range requiredPerms {
				if apiKey.HasPermission(p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteAPIError(w, http.StatusForbidden, "forbidden", "API key lacks required permissions", nil)
		})
	}
}

// limiterCache is a per-key rate limiter map with double-check locking.
type limiterCache[K comparable] struct {
	limiters map[K]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

func newLimiterCache[K comparable](rps float64, burst int) *limiterCache[K] {
	return &limiterCache[K]{
		limiters: make(map[K]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (lc *limiterCache[K]) get(key K) *rate.Limiter {
	lc.mu.RLock()
	limiter, exists := lc.limiters[key]
	lc.mu.RUnlock()
	if exists {
		return limiter
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	if limiter, exists = lc.limiters[key]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(lc.rate, lc.burst)
	lc.limiters[key] = limiter
	return limiter
}

// APIRateLimit limits requests per API key. Use after APIKeyAuth.
func APIRateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	cache := newLimiterCache[int64](rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := GetAPIKey(r)
			if apiKey == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !cache.get(apiKey.ID).Allow() {
				WriteAPIError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Rate limit exceeded. Please slow down.", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GlobalRateLimit limits unauthenticated requests per client IP.
func GlobalRateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	cache := newLimiterCache[string](rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !cache.get(ip).Allow() {
				WriteAPIError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Rate limit exceeded. Please slow down.", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
