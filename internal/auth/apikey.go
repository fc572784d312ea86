// Package auth provides HTTP authentication middleware for API-key and
// JWT-based owner identification.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// APIKeyHeader is the header carrying a static API key.
	APIKeyHeader = "X-API-Key"

	ownerContextKey contextKey = "owner"
)

// OwnerInfo holds the identity extracted from authentication — the owner_id
// every pipeline operation (retrieval, ingestion, graph) is scoped to.
type OwnerInfo struct {
	ID   string
	Name string
}

// APIKeyStore resolves a static API key to the owner it belongs to.
// Implementations back this with whatever the deployment uses for owner
// provisioning; omnirag only depends on the interface.
type APIKeyStore interface {
	Lookup(ctx context.Context, apiKey string) (OwnerInfo, bool, error)
}

// APIKeyAuth returns HTTP middleware that resolves the X-API-Key header
// through store and stashes the owner in the request context. adminKey, if
// set, is accepted in place of a store lookup and resolves to OwnerInfo{ID:
// "admin"}.
func APIKeyAuth(store APIKeyStore, adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if key == "" {
				http.Error(w, "missing API key", http.StatusUnauthorized)
				return
			}

			if adminKey != "" && key == adminKey {
				ctx := context.WithValue(r.Context(), ownerContextKey, OwnerInfo{ID: "admin", Name: "admin"})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			owner, ok, err := store.Lookup(r.Context(), key)
			if err != nil {
				http.Error(w, "failed to validate API key", http.StatusInternalServerError)
				return
			}
			if !ok {
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ownerContextKey, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// JWTAuth returns HTTP middleware that validates a bearer JWT via manager and
// stashes the resulting owner in the request context.
func JWTAuth(manager *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := manager.ValidateToken(token)
			if err != nil {
				http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
				return
			}

			owner := OwnerInfo{ID: claims.OwnerID, Name: claims.OwnerName}
			ctx := context.WithValue(r.Context(), ownerContextKey, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext extracts owner info set by APIKeyAuth or JWTAuth.
func OwnerFromContext(ctx context.Context) (OwnerInfo, bool) {
	owner, ok := ctx.Value(ownerContextKey).(OwnerInfo)
	return owner, ok
}

// RequireOwner extracts owner info or reports that the caller never passed
// through an auth middleware.
func RequireOwner(ctx context.Context) (OwnerInfo, error) {
	owner, ok := OwnerFromContext(ctx)
	if !ok {
		return OwnerInfo{}, ErrInvalidClaims
	}
	return owner, nil
}
