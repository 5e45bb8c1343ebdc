package httputil

import (
	"net/http"
	"strings"
)

// ExtractAPIKey extracts an API key from various sources:
// 1. X-API-Key header (highest priority)
// 2. Authorization header with "ApiKey" scheme
// 3. Authorization header with "Bearer" scheme
// 4. Query parameter "api_key"
// 5. Query parameter "token"
//
// The query parameter fallbacks exist for WebSocket clients, which
// cannot set custom headers from browsers.
func ExtractAPIKey(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
		return v
	}

	auth := r.Header.Get("Authorization")
	if auth != "" {
		lower := strings.ToLower(auth)
		switch {
		case strings.HasPrefix(lower, "bearer "):
			return strings.TrimSpace(auth[len("Bearer "):])
		case strings.HasPrefix(lower, "apikey "):
			return strings.TrimSpace(auth[len("ApiKey "):])
		case !strings.Contains(auth, " "):
			return strings.TrimSpace(auth)
		}
	}

	if v := strings.TrimSpace(r.URL.Query().Get("api_key")); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
