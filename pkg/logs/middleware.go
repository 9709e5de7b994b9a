package logs

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quillcms/quill/pkg/access"
	"github.com/quillcms/quill/pkg/auth"
	"github.com/quillcms/quill/pkg/middleware"
	"github.com/quillcms/quill/pkg/observability"
)

// Recorder writes one audit entry per authenticated mutating request.
// Reads are not recorded. Failures to persist an entry are logged and
// never fail the request that triggered them.
type Recorder struct {
	store    *Store
	registry *access.Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewRecorder creates a new audit recorder
func NewRecorder(store *Store, registry *access.Registry, logger *observability.Logger, metrics *observability.Metrics) *Recorder {
	return &Recorder{
		store:    store,
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
}

// Middleware records the request after the handler has answered
func (rec *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := middleware.NewStatusRecorder(w)
		next.ServeHTTP(recorder, r)

		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			return
		}
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			return
		}

		permission := ""
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				if meta, found := rec.registry.Lookup(r.Method, tpl); found {
					permission = meta.Permission
				}
			}
		}

		entry := &Entry{
			Message:    fmt.Sprintf("%s %s %s", identity.Username, r.Method, r.URL.Path),
			UserID:     identity.UserID,
			Username:   identity.Username,
			StatusCode: recorder.Status(),
			Method:     r.Method,
			Path:       r.URL.Path,
			Permission: permission,
		}
		if err := rec.store.Insert(r.Context(), entry); err != nil {
			rec.logger.WithError(err).Error("failed to record audit entry")
			return
		}
		if rec.metrics != nil {
			rec.metrics.LogEntriesTotal.Inc()
		}
	})
}
