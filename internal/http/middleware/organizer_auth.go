package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/availability-engine/internal/http/render"
)

type contextKey string

const claimsKey contextKey = "organizerClaims"

// RoleAdmin may manage every organizer.
const RoleAdmin = "admin"

// Claims are the bearer token claims of the management API. Subject is the
// organizer id the token was issued for.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token carries the admin role.
func (c Claims) IsAdmin() bool { return c.Role == RoleAdmin }

var errMissingBearer = errors.New("missing bearer token")

func parseBearer(r *http.Request, secret string) (*Claims, error) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil, errMissingBearer
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// OrganizerJWT authenticates HS256 bearer tokens. When paramName is set the
// token subject must equal that URL parameter unless the token is an admin
// token. An empty secret disables the check.
func OrganizerJWT(secret, paramName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := parseBearer(r, secret)
			if err != nil {
				if errors.Is(err, errMissingBearer) {
					render.Message(w, http.StatusUnauthorized, "missing authorization header")
					return
				}
				render.Message(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if paramName != "" && !claims.IsAdmin() && claims.Subject != chi.URLParam(r, paramName) {
				render.Message(w, http.StatusForbidden, "token does not grant access to this organizer")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, *claims)))
		})
	}
}

// RequireAdmin admits only admin tokens. An empty secret disables the check.
func RequireAdmin(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := parseBearer(r, secret)
			if err != nil {
				render.Message(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if !claims.IsAdmin() {
				render.Message(w, http.StatusForbidden, "admin role required")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, *claims)))
		})
	}
}

// ClaimsFromContext returns the authenticated claims if present.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(Claims)
	return claims, ok
}
