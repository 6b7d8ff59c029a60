package policy

import (
	"context"
	"net/http"
	"strings"
)

// Principal is the caller a request acts for.
type Principal struct {
	ID    string
	Roles []string
}

// Request headers carrying the principal.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal of ctx, or the anonymous
// principal.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

// PrincipalFromRequest reads the principal headers of r. Roles are comma
// separated.
func PrincipalFromRequest(r *http.Request) Principal {
	p := Principal{ID: strings.TrimSpace(r.Header.Get(HeaderUserID))}
	for _, role := range strings.Split(r.Header.Get(HeaderUserRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			p.Roles = append(p.Roles, role)
		}
	}
	return p
}

// Middleware attaches the principal of each request to its context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), PrincipalFromRequest(r))))
	})
}
