package users

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quillcms/quill/pkg/access"
	"github.com/quillcms/quill/pkg/auth"
	"github.com/quillcms/quill/pkg/httputil"
	"github.com/quillcms/quill/pkg/observability"
)

// Handler exposes the account API under /cms/user. These routes carry no
// registry declarations: login is public, registration is root-only and
// the rest only require a valid identity.
type Handler struct {
	service     *Service
	authService *auth.Service
	logger      *observability.Logger
}

// NewHandler creates a new user handler
func NewHandler(service *Service, authService *auth.Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, authService: authService, logger: logger}
}

// RegisterRoutes registers the account routes
func (h *Handler) RegisterRoutes(router *mux.Router, guard *access.Guard) {
	sub := router.PathPrefix("/cms/user").Subrouter()

	sub.HandleFunc("/login", h.Login).Methods("POST")
	sub.HandleFunc("/refresh", h.Refresh).Methods("GET")
	sub.Handle("/register", guard.AdminOnly(http.HandlerFunc(h.Register))).Methods("POST")
	sub.Handle("", guard.LoginOnly(http.HandlerFunc(h.UpdateSelf))).Methods("PUT")
	sub.Handle("/change_password", guard.LoginOnly(http.HandlerFunc(h.ChangePassword))).Methods("PUT")
	sub.Handle("/information", guard.LoginOnly(http.HandlerFunc(h.Information))).Methods("GET")
	sub.Handle("/permissions", guard.LoginOnly(http.HandlerFunc(h.Permissions))).Methods("GET")
}

type registerRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Email    string  `json:"email"`
	GroupIDs []int64 `json:"group_ids"`
}

// Register handles POST /cms/user/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Username, "username") {
		return
	}
	if len(req.Password) < 6 {
		httputil.WriteValidationError(w, "password must be at least 6 characters")
		return
	}
	if _, err := h.service.Register(r.Context(), req.Username, req.Password, req.Email, req.GroupIDs); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 11, "user created")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /cms/user/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Username, "username") {
		return
	}
	pair, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, pair)
}

// Refresh handles GET /cms/user/refresh. The refresh token arrives as a
// bearer credential, same as an access token would.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		httputil.WriteUnauthorized(w, "refresh token required")
		return
	}
	pair, err := h.authService.Refresh(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, pair)
}

type updateSelfRequest struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Email    string `json:"email"`
}

// UpdateSelf handles PUT /cms/user
func (h *Handler) UpdateSelf(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	var req updateSelfRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.service.UpdateSelf(r.Context(), identity.UserID, req.Nickname, req.Avatar, req.Email); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 6, "user updated")
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword handles PUT /cms/user/change_password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	var req changePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.NewPassword) < 6 {
		httputil.WriteValidationError(w, "new password must be at least 6 characters")
		return
	}
	if err := h.authService.ChangePassword(r.Context(), identity.UserID, identity.Username, req.OldPassword, req.NewPassword); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 4, "password changed")
}

// Information handles GET /cms/user/information
func (h *Handler) Information(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	info, err := h.service.Information(r.Context(), identity.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, info)
}

// Permissions handles GET /cms/user/permissions
func (h *Handler) Permissions(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	view, err := h.service.Permissions(r.Context(), identity.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, view)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
