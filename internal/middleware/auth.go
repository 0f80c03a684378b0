package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type contextKey string

const principalKey contextKey = "principal"

// Claims are the bearer token claims the manager reads. Tokens are issued
// and verified by the identity provider in front of the service.
type Claims struct {
	PreferredUsername string                    `json:"preferred_username"`
	ResourceAccess    map[string]ResourceAccess `json:"resource_access"`
	jwt.RegisteredClaims
}

type ResourceAccess struct {
	Roles []string `json:"roles"`
}

// Principal is the caller of a request
type Principal struct {
	Name        string
	Authorities []string
}

// HasAuthority reports whether p was granted authority
func (p *Principal) HasAuthority(authority string) bool {
	return slices.Contains(p.Authorities, authority)
}

// Authorities reads the bearer token of the request and stores the caller
// with its ROLE_ authorities granted on resource. Requests without a token
// pass through anonymously.
func Authorities(resource string) func(http.Handler) http.Handler {
	parser := jwt.NewParser()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				http.Error(w, "Unsupported authorization scheme", http.StatusUnauthorized)
				return
			}

			var claims Claims
			if _, _, err := parser.ParseUnverified(strings.TrimSpace(raw), &claims); err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("Malformed bearer token")
				http.Error(w, "Invalid bearer token", http.StatusUnauthorized)
				return
			}

			p := &Principal{Name: claims.PreferredUsername}
			if p.Name == "" {
				p.Name = claims.Subject
			}
			for _, role := range claims.ResourceAccess[resource].Roles {
				p.Authorities = append(p.Authorities, "ROLE_"+role)
			}

			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthority rejects callers lacking authority
func RequireAuthority(authority string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r.Context())
			if !ok {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			if !p.HasAuthority(authority) {
				log.Warn().Str("principal", p.Name).Str("authority", authority).Msg("Access denied")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the caller from context
func GetPrincipal(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}
