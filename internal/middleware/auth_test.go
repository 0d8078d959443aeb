package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyMiddleware_Disabled(t *testing.T) {
	m := NewAPIKeyMiddleware(&APIKeyConfig{Enabled: false, Keys: []string{"secret"}})
	handler := m.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/webhook/default/signals/ingest", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when disabled", w.Code)
	}
}

func TestAPIKeyMiddleware_MissingKey(t *testing.T) {
	m := NewAPIKeyMiddleware(&APIKeyConfig{Enabled: true, Keys: []string{"secret"}})
	handler := m.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/webhook/default/signals/ingest", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate challenge")
	}
}

func TestAPIKeyMiddleware_KeyCarriers(t *testing.T) {
	m := NewAPIKeyMiddleware(&APIKeyConfig{Enabled: true, Keys: []string{"secret"}})
	handler := m.Wrap(okHandler())

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    int
	}{
		{"authorization header", func(r *http.Request) {
			r.Header.Set("Authorization", "ApiKey secret")
		}, http.StatusOK},
		{"x-api-key header", func(r *http.Request) {
			r.Header.Set("X-API-Key", "secret")
		}, http.StatusOK},
		{"query parameter", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("api_key", "secret")
			r.URL.RawQuery = q.Encode()
		}, http.StatusOK},
		{"wrong key", func(r *http.Request) {
			r.Header.Set("X-API-Key", "guess")
		}, http.StatusUnauthorized},
		{"bearer is not an api key", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer secret")
		}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook/default/signals/ingest", nil)
			tt.prepare(req)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAPIKeyMiddleware_Rotation(t *testing.T) {
	m := NewAPIKeyMiddleware(&APIKeyConfig{Enabled: true, Keys: []string{"old"}})
	handler := m.Wrap(okHandler())

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhook/default/signals/ingest", nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	m.AddKey("new")
	if got := send("old"); got != http.StatusOK {
		t.Errorf("old key before revocation: status = %d", got)
	}
	if got := send("new"); got != http.StatusOK {
		t.Errorf("new key: status = %d", got)
	}

	m.RemoveKey("old")
	if got := send("old"); got != http.StatusUnauthorized {
		t.Errorf("revoked key: status = %d, want 401", got)
	}
	if got := send("new"); got != http.StatusOK {
		t.Errorf("surviving key: status = %d", got)
	}
}
