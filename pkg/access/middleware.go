package access

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quillcms/quill/pkg/auth"
	"github.com/quillcms/quill/pkg/httputil"
)

// Guard wraps handlers with one of the three authorization modes. The
// identity middleware must run first; a request with no identity is
// answered 401 before any decision is attempted.
type Guard struct {
	checker *Checker
}

// NewGuard creates a new guard around the checker
func NewGuard(checker *Checker) *Guard {
	return &Guard{checker: checker}
}

// LoginOnly admits any authenticated identity without an authorization
// decision.
func (g *Guard) LoginOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.IdentityFromContext(r.Context()); !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminOnly admits only users with root membership
func (g *Guard) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if err := g.checker.CheckAdmin(r.Context(), identity.UserID); err != nil {
			httputil.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GroupPermission runs the full grant evaluation for the matched route.
// The route's path template is the registry key, so the decision is tied
// to the declaration made at registration time.
func (g *Guard) GroupPermission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if err := g.checker.Check(r.Context(), identity.UserID, r.Method, routeKey(r)); err != nil {
			httputil.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// routeKey returns the matched route's path template, or the raw path when
// the request did not go through mux matching (tests calling handlers
// directly).
func routeKey(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
