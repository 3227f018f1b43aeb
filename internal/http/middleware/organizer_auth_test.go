package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, secret, subject, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func organizerRouter(secret string) http.Handler {
	r := chi.NewRouter()
	r.Route("/organizers/{organizerID}", func(r chi.Router) {
		r.Use(OrganizerJWT(secret, "organizerID"))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			if _, ok := ClaimsFromContext(r.Context()); !ok && secret != "" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

func TestOrganizerJWT(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		token  string
		status int
	}{
		{"disabled without secret", "", "", http.StatusOK},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"wrong signature", "secret", signedToken(t, "other", "org-1", ""), http.StatusUnauthorized},
		{"own organizer", "secret", signedToken(t, "secret", "org-1", ""), http.StatusOK},
		{"other organizer", "secret", signedToken(t, "secret", "org-2", ""), http.StatusForbidden},
		{"admin", "secret", signedToken(t, "secret", "ops", RoleAdmin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/organizers/org-1/", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			organizerRouter(tt.secret).ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestOrganizerJWTRejectsExpiredToken(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "org-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/organizers/org-1/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	organizerRouter("secret").ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) })
	mw := RequireAdmin("secret")

	req := httptest.NewRequest(http.MethodPost, "/organizers", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", "org-1", ""))
	rec := httptest.NewRecorder()
	mw(ok).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for organizer token, got %d", rec.Code)
	}

	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", "ops", RoleAdmin))
	rec = httptest.NewRecorder()
	mw(ok).ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected admin to pass, got %d", rec.Code)
	}
}
