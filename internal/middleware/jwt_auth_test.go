package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/testhelpers"
)

func newJWTAuth(t *testing.T, db *gorm.DB, enabled bool) *JWTAuthMiddleware {
	t.Helper()
	return NewJWTAuthMiddleware(db, &JWTAuthConfig{
		Enabled:        enabled,
		JWTSecret:      "test-secret",
		JWTExpiryHours: 1,
		SkipPaths:      []string{"/health", "/auth/login", "/webhook/*"},
	})
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "hunter2" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword("hunter2", hash) {
		t.Error("correct password rejected")
	}
	if CheckPassword("hunter3", hash) {
		t.Error("wrong password accepted")
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	db := testhelpers.SetupDB(t)
	m := newJWTAuth(t, db, true)

	token, err := m.GenerateToken("user@example.com")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Email != "user@example.com" {
		t.Errorf("email = %q", claims.Email)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	db := testhelpers.SetupDB(t)
	m := newJWTAuth(t, db, true)

	other := NewJWTAuthMiddleware(db, &JWTAuthConfig{
		JWTSecret: "different-secret", JWTExpiryHours: 1,
	})
	token, err := other.GenerateToken("user@example.com")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := m.ValidateToken(token); err == nil {
		t.Error("token signed with another secret must be rejected")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	db := testhelpers.SetupDB(t)
	m := newJWTAuth(t, db, true)

	claims := UserClaims{
		Email: "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			Issuer:    "dispatch",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ValidateToken(token); err == nil {
		t.Error("expired token must be rejected")
	}
}

func TestValidateCredentials(t *testing.T) {
	db := testhelpers.SetupDB(t)
	m := newJWTAuth(t, db, true)

	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	user := database.DispatchUser{Email: "user@example.com", PasswordHash: hash}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	if !m.ValidateCredentials("user@example.com", "correct-horse") {
		t.Error("valid credentials rejected")
	}
	if m.ValidateCredentials("user@example.com", "wrong") {
		t.Error("wrong password accepted")
	}
	if m.ValidateCredentials("stranger@example.com", "whatever") {
		t.Error("unknown principal accepted with registration disabled")
	}
}

func TestValidateCredentials_Registration(t *testing.T) {
	db := testhelpers.SetupDB(t)
	m := NewJWTAuthMiddleware(db, &JWTAuthConfig{
		Enabled: true, JWTSecret: "test-secret", JWTExpiryHours: 1,
		AllowRegistration: true,
	})

	if !m.ValidateCredentials("new@example.com", "first-password") {
		t.Fatal("first login should register the principal")
	}

	var user database.DispatchUser
	if err := db.Where("email = ?", "new@example.com").First(&user).Error; err != nil {
		t.Fatalf("registered user not persisted: %v", err)
	}
	if user.PasswordHash == "first-password" {
		t.Error("password stored in plaintext")
	}

	// Subsequent logins authenticate against the stored hash.
	if !m.ValidateCredentials("new@example.com", "first-password") {
		t.Error("second login with the registered password rejected")
	}
	if m.ValidateCredentials("new@example.com", "other-password") {
		t.Error("wrong password accepted after registration")
	}
}

func TestJWTWrap_EnforcesAuth(t *testing.T) {
	db := testhelpers.SetupDB(t)
	m := newJWTAuth(t, db, true)

	var seenUser string
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = GetUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// No token.
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/default/incidents", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without token", w.Code)
	}

	// Garbage token.
	req := httptest.NewRequest(http.MethodGet, "/api/default/incidents", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for malformed token", w.Code)
	}

	// Valid token reaches the handler with the principal in context.
	token, err := m.GenerateToken("user@example.com")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/default/incidents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with valid token", w.Code)
	}
	if seenUser != "user@example.com" {
		t.Errorf("context user = %q", seenUser)
	}
}

func TestJWTWrap_SkipPaths(t *testing.T) {
	db := testhelpers.SetupDB(t)
	m := newJWTAuth(t, db, true)

	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/auth/login", http.StatusOK},
		{"/webhook/default/signals/ingest", http.StatusOK}, // wildcard prefix
		{"/api/default/incidents", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestJWTWrap_Disabled(t *testing.T) {
	db := testhelpers.SetupDB(t)
	m := newJWTAuth(t, db, false)

	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/default/incidents", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", w.Code)
	}
}
