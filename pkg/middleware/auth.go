// Package middleware provides the HTTP middleware chain: identity
// resolution, request IDs, request logging and metrics.
package middleware

import (
	"net/http"
	"strings"

	"github.com/quillcms/quill/pkg/auth"
	"github.com/quillcms/quill/pkg/httputil"
	"github.com/quillcms/quill/pkg/observability"
)

// Authenticator resolves bearer tokens into request identities
type Authenticator struct {
	service *auth.Service
	logger  *observability.Logger
	exempt  map[string]struct{}
}

// NewAuthenticator creates a new authenticator. Exempt paths carry their
// own credential handling (the refresh endpoint presents a refresh token,
// not an access token) and are passed through untouched.
func NewAuthenticator(service *auth.Service, logger *observability.Logger, exemptPaths ...string) *Authenticator {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}
	return &Authenticator{service: service, logger: logger, exempt: exempt}
}

// Middleware attaches the caller's identity to the context. Requests
// without an Authorization header pass through anonymously; the guards
// decide whether that is acceptable. A present but invalid token is
// rejected here.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.exempt[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			httputil.WriteUnauthorized(w, "malformed authorization header")
			return
		}

		identity, err := a.service.Authenticate(r.Context(), token)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}
