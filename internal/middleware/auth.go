package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/Netflix/dispatch-sub003/internal/api"
)

// APIKeyConfig holds static-key authentication configuration for the
// webhook surface. Detection sources posting signals cannot do an
// interactive JWT login, so they present one of these keys instead.
type APIKeyConfig struct {
	// Keys is the list of accepted API keys.
	Keys []string

	// Enabled determines if key checking is enforced. With no keys
	// configured the webhook surface stays open.
	Enabled bool
}

// APIKeyMiddleware guards the webhook endpoints with static API keys.
type APIKeyMiddleware struct {
	mu     sync.RWMutex
	config *APIKeyConfig
}

// NewAPIKeyMiddleware creates a new API key middleware.
func NewAPIKeyMiddleware(config *APIKeyConfig) *APIKeyMiddleware {
	return &APIKeyMiddleware{config: config}
}

// Wrap wraps an http.Handler with API key authentication.
func (m *APIKeyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		enabled := m.config.Enabled
		keys := m.config.Keys
		m.mu.RUnlock()

		if !enabled {
			next.ServeHTTP(w, r)
			return
		}

		key := m.extractKey(r)
		if key == "" {
			m.unauthorized(w, "Missing API key")
			return
		}
		if !validKey(key, keys) {
			log.Printf("APIKeyMiddleware: Invalid API key attempt from %s", r.RemoteAddr)
			m.unauthorized(w, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WrapFunc wraps an http.HandlerFunc with API key authentication.
func (m *APIKeyMiddleware) WrapFunc(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.Wrap(http.HandlerFunc(next)).ServeHTTP(w, r)
	}
}

// extractKey pulls the API key from the request. Supported carriers:
// "Authorization: ApiKey <key>", the X-API-Key header, and the api_key
// query parameter for sources that cannot set headers.
func (m *APIKeyMiddleware) extractKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "ApiKey ") {
		return strings.TrimPrefix(auth, "ApiKey ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// validKey compares the provided key against every accepted key in
// constant time.
func validKey(provided string, keys []string) bool {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(provided), []byte(k)) == 1 {
			return true
		}
	}
	return false
}

func (m *APIKeyMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "ApiKey realm=\"webhook\"")
	api.RespondError(w, http.StatusUnauthorized, message)
}

// SetEnabled enables or disables key checking.
func (m *APIKeyMiddleware) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Enabled = enabled
}

// AddKey accepts an additional key, for rotation without restart.
func (m *APIKeyMiddleware) AddKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Keys = append(m.config.Keys, key)
}

// RemoveKey revokes a key.
func (m *APIKeyMiddleware) RemoveKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.config.Keys))
	for _, k := range m.config.Keys {
		if k != key {
			keys = append(keys, k)
		}
	}
	m.config.Keys = keys
}
