package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"genquota/internal/models"
)

// PermissionAdmin grants access to the admin endpoints.
const PermissionAdmin = "admin"

// adminAuthMiddleware authenticates admin requests against the configured
// API keys. Keys are compared in constant time. The public quota endpoints
// never pass through here; a caller's bearer session token is a different
// credential entirely.
func adminAuthMiddleware(keys []models.APIKey) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeMiddlewareError(w, http.StatusUnauthorized, "Authorization required", models.ErrorCodeUnauthorized)
				return
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				writeMiddlewareError(w, http.StatusUnauthorized, "Invalid authorization format", models.ErrorCodeUnauthorized)
				return
			}

			token := authHeader[len(prefix):]
			key := matchAPIKey(keys, token)
			if key == nil {
				slog.Warn("Admin authentication failed", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				writeMiddlewareError(w, http.StatusUnauthorized, "Invalid API key", models.ErrorCodeUnauthorized)
				return
			}

			if !key.HasPermission(PermissionAdmin) {
				writeMiddlewareError(w, http.StatusForbidden, "Permission denied", models.ErrorCodeForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchAPIKey returns the enabled key matching token, or nil. Every
// configured key is compared so timing does not reveal which key failed.
func matchAPIKey(keys []models.APIKey, token string) *models.APIKey {
	var matched *models.APIKey
	for i := range keys {
		if subtle.ConstantTimeCompare([]byte(keys[i].Key), []byte(token)) == 1 && keys[i].Enabled {
			matched = &keys[i]
		}
	}
	return matched
}

func writeMiddlewareError(w http.ResponseWriter, statusCode int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorResp := models.NewErrorResponse(message, code)
	json.NewEncoder(w).Encode(errorResp)
}
