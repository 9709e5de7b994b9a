// Package api assembles the HTTP server: every route declaration, the
// middleware chain and the permission registry the routes feed.
package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quillcms/quill/pkg/access"
	"github.com/quillcms/quill/pkg/auth"
	"github.com/quillcms/quill/pkg/books"
	"github.com/quillcms/quill/pkg/config"
	"github.com/quillcms/quill/pkg/files"
	"github.com/quillcms/quill/pkg/logs"
	"github.com/quillcms/quill/pkg/middleware"
	"github.com/quillcms/quill/pkg/observability"
	"github.com/quillcms/quill/pkg/users"
)

// Server wires stores, services and handlers around one router. After
// New returns, the registry is frozen and ready for synchronization.
type Server struct {
	router   *mux.Router
	registry *access.Registry

	accessStore   *access.Store
	accessService *access.Service
	authService   *auth.Service
	checker       *access.Checker
	logStore      *logs.Store

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewServer builds the full application around the database handle
func NewServer(db *sql.DB, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*Server, error) {
	registry := access.NewRegistry()

	accessStore := access.NewStore(db)
	accessService := access.NewService(accessStore, logger)
	checker := access.NewChecker(accessStore, registry, metrics)
	guard := access.NewGuard(checker)

	authStore := auth.NewStore(db)
	authService, err := auth.NewService(authStore, cfg.Auth.TokenCacheSize, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, logger)
	if err != nil {
		return nil, err
	}

	userService := users.NewService(authService, accessService, checker, logger)
	bookStore := books.NewStore(db)
	bookService := books.NewService(bookStore, logger)
	logStore := logs.NewStore(db)
	fileStore := files.NewStore(db)
	uploader := files.NewLocalUploader(cfg.Upload, fileStore, logger, metrics)

	router := mux.NewRouter()
	router.Use(middleware.RequestID(logger))
	router.Use(middleware.Metrics(metrics))

	authenticator := middleware.NewAuthenticator(authService, logger, "/cms/user/login", "/cms/user/refresh")
	router.Use(authenticator.Middleware)

	recorder := logs.NewRecorder(logStore, registry, logger, metrics)
	router.Use(recorder.Middleware)

	access.NewHandler(accessService, logger).RegisterRoutes(router, guard)
	users.NewHandler(userService, authService, logger).RegisterRoutes(router, guard)
	users.NewAdminHandler(userService, logger).RegisterRoutes(router, guard)
	books.NewHandler(bookService, logger).RegisterRoutes(router, guard, registry)
	logs.NewHandler(logStore, logger).RegisterRoutes(router, guard, registry)
	files.NewHandler(uploader, cfg.Upload.MaxFileBytes, logger).RegisterRoutes(router, guard)

	// Uploaded assets are served straight off disk.
	router.PathPrefix("/assets/").Handler(
		http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.Upload.Dir))))

	registry.Freeze()

	return &Server{
		router:        router,
		registry:      registry,
		accessStore:   accessStore,
		accessService: accessService,
		authService:   authService,
		checker:       checker,
		logStore:      logStore,
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Router returns the assembled HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}

// Registry returns the frozen permission registry
func (s *Server) Registry() *access.Registry {
	return s.registry
}

// AccessStore returns the access store for seeding
func (s *Server) AccessStore() *access.Store {
	return s.accessStore
}

// AuthService returns the auth service for seeding and token upkeep
func (s *Server) AuthService() *auth.Service {
	return s.authService
}

// LogStore returns the log store for retention upkeep
func (s *Server) LogStore() *logs.Store {
	return s.logStore
}

// HealthRouter builds the probe and metrics endpoints served on the
// separate health port.
func HealthRouter(db *sql.DB, registry *prometheus.Registry, metricsEnabled bool) http.Handler {
	router := mux.NewRouter()
	health := observability.NewHealthChecker(db)
	router.HandleFunc("/healthz", health.Liveness).Methods("GET")
	router.HandleFunc("/readyz", health.Readiness).Methods("GET")
	if metricsEnabled {
		router.Handle("/metrics", observability.Handler(registry)).Methods("GET")
	}
	return router
}
