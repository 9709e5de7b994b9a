package users

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quillcms/quill/pkg/access"
	"github.com/quillcms/quill/pkg/httputil"
	"github.com/quillcms/quill/pkg/observability"
)

// AdminHandler exposes the root-only user-management API. It lives under
// the same /cms/admin prefix as the group and permission handlers.
type AdminHandler struct {
	service *Service
	logger  *observability.Logger
}

// NewAdminHandler creates a new admin user handler
func NewAdminHandler(service *Service, logger *observability.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: logger}
}

// RegisterRoutes registers the admin user routes behind the admin guard
func (h *AdminHandler) RegisterRoutes(router *mux.Router, guard *access.Guard) {
	admin := router.PathPrefix("/cms/admin").Subrouter()
	admin.Use(guard.AdminOnly)

	admin.HandleFunc("/users", h.ListUsers).Methods("GET")
	admin.HandleFunc("/user/{id:[0-9]+}/password", h.ChangeUserPassword).Methods("PUT")
	admin.HandleFunc("/user/{id:[0-9]+}", h.UpdateUserGroups).Methods("PUT")
	admin.HandleFunc("/user/{id:[0-9]+}", h.DeleteUser).Methods("DELETE")
}

// ListUsers handles GET /cms/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := httputil.ParsePaginationOrError(w, r)
	if !ok {
		return
	}
	groupID, err := httputil.ParseQueryInt(r, "group_id", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	users, total, err := h.service.ListUsers(r.Context(), int64(groupID), p.Count, p.Offset())
	if err != nil {
		h.logger.WithError(err).Error("failed to list users")
		httputil.WriteError(w, err)
		return
	}
	httputil.WritePage(w, users, total, p.Page, p.Count)
}

type adminPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// ChangeUserPassword handles PUT /cms/admin/user/{id}/password
func (h *AdminHandler) ChangeUserPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}
	var req adminPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.NewPassword) < 6 {
		httputil.WriteValidationError(w, "new password must be at least 6 characters")
		return
	}
	if err := h.service.ChangeUserPassword(r.Context(), id, req.NewPassword); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 4, "password changed")
}

type updateUserGroupsRequest struct {
	GroupIDs []int64 `json:"group_ids"`
}

// UpdateUserGroups handles PUT /cms/admin/user/{id}
func (h *AdminHandler) UpdateUserGroups(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}
	var req updateUserGroupsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.GroupIDs) == 0 {
		httputil.WriteValidationError(w, "group_ids is required")
		return
	}
	if err := h.service.UpdateUserGroups(r.Context(), id, req.GroupIDs); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 5, "user groups updated")
}

// DeleteUser handles DELETE /cms/admin/user/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 5, "user deleted")
}
