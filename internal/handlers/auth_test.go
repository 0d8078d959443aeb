package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Netflix/dispatch-sub003/internal/api"
	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/middleware"
)

func seedUser(t *testing.T, f *fixture, email, password string) {
	t.Helper()
	hash, err := middleware.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := database.DispatchUser{Email: email, PasswordHash: hash}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	seedUser(t, f, "user@example.com", "hunter2")

	w := f.do(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "user@example.com", "password": "hunter2"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp api.LoginResponse
	decode(t, w, &resp)
	if resp.Token == "" {
		t.Fatal("expected a token")
	}
	if resp.Email != "user@example.com" {
		t.Errorf("email = %q", resp.Email)
	}

	claims, err := f.jwt.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.Email != "user@example.com" {
		t.Errorf("claims email = %q", claims.Email)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newFixture(t)
	seedUser(t, f, "user@example.com", "hunter2")

	w := f.do(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "user@example.com", "password": "hunter3"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "stranger@example.com", "password": "whatever"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestLogin_Validation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "not-an-email"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	seedUser(t, f, "user@example.com", "hunter2")
	f.jwt.SetEnabled(true)

	// The verify endpoint reads the principal the JWT middleware put in
	// context, so route through the wrapped handler.
	wrapped := f.jwt.Wrap(f.mux)

	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without token", w.Code)
	}

	token, err := f.jwt.GenerateToken("user@example.com")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	decode(t, w, &resp)
	if resp["valid"] != true || resp["email"] != "user@example.com" {
		t.Errorf("response = %v", resp)
	}
}
