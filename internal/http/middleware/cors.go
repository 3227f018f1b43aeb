package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	corsAllowedHeaders = "Authorization, Content-Type, X-Request-Id"
	corsAllowedMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
)

type corsPolicy struct {
	allowAny bool
	origins  map[string]struct{}
	expose   []string
	maxAge   time.Duration
}

// CORSOption adjusts the CORS policy.
type CORSOption func(*corsPolicy)

// WithCORSMaxAge sets how long browsers may cache a preflight answer.
// Zero omits Access-Control-Max-Age.
func WithCORSMaxAge(d time.Duration) CORSOption {
	return func(p *corsPolicy) {
		if d >= 0 {
			p.maxAge = d
		}
	}
}

// WithExposedHeaders adds response headers readable by browser scripts.
func WithExposedHeaders(headers ...string) CORSOption {
	return func(p *corsPolicy) {
		for _, h := range headers {
			if h = strings.TrimSpace(h); h != "" {
				p.expose = append(p.expose, http.CanonicalHeaderKey(h))
			}
		}
	}
}

// CORS lets booking pages and organizer dashboards call the API from their
// own origins. "*" in allowedOrigins echoes any Origin back. Request ids and
// Retry-After are always exposed so pages can report rate limiting.
//
// Preflights are answered here and never reach the routes. A preflight from
// an origin outside the list gets 403.
func CORS(allowedOrigins []string, opts ...CORSOption) func(http.Handler) http.Handler {
	p := &corsPolicy{
		origins: map[string]struct{}{},
		expose:  []string{"X-Request-Id", "Retry-After"},
		maxAge:  10 * time.Minute,
	}
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			p.allowAny = true
		default:
			p.origins[origin] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	exposed := strings.Join(p.expose, ", ")
	maxAge := ""
	if p.maxAge > 0 {
		maxAge = strconv.Itoa(int(p.maxAge / time.Second))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			preflight := r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != ""
			allowed := origin != "" && p.allows(origin)

			if origin != "" {
				w.Header().Add("Vary", "Origin")
			}
			if preflight {
				w.Header().Add("Vary", "Access-Control-Request-Method")
				w.Header().Add("Vary", "Access-Control-Request-Headers")
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
				if maxAge != "" {
					w.Header().Set("Access-Control-Max-Age", maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Expose-Headers", exposed)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p *corsPolicy) allows(origin string) bool {
	if p.allowAny {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}
