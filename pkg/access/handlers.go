package access

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quillcms/quill/pkg/httputil"
	"github.com/quillcms/quill/pkg/observability"
)

// Handler exposes the administrative group and permission API. Every route
// here is root-only; fine-grained grants play no part in reaching these
// endpoints.
type Handler struct {
	service *Service
	logger  *observability.Logger
}

// NewHandler creates a new admin handler
func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the admin API routes behind the admin guard
func (h *Handler) RegisterRoutes(router *mux.Router, guard *Guard) {
	admin := router.PathPrefix("/cms/admin").Subrouter()
	admin.Use(guard.AdminOnly)

	admin.HandleFunc("/permission", h.ListPermissions).Methods("GET")
	admin.HandleFunc("/permission/dispatch", h.DispatchPermission).Methods("POST")
	admin.HandleFunc("/permission/dispatch/batch", h.DispatchPermissions).Methods("POST")
	admin.HandleFunc("/permission/remove", h.RemovePermissions).Methods("POST")

	admin.HandleFunc("/group", h.ListGroups).Methods("GET")
	admin.HandleFunc("/group/all", h.ListAllGroups).Methods("GET")
	admin.HandleFunc("/group", h.CreateGroup).Methods("POST")
	admin.HandleFunc("/group/{id:[0-9]+}", h.GetGroup).Methods("GET")
	admin.HandleFunc("/group/{id:[0-9]+}", h.UpdateGroup).Methods("PUT")
	admin.HandleFunc("/group/{id:[0-9]+}", h.DeleteGroup).Methods("DELETE")
}

// ListPermissions handles GET /cms/admin/permission
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	grouped, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list permissions")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, grouped)
}

// ListGroups handles GET /cms/admin/group
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	p, ok := httputil.ParsePaginationOrError(w, r)
	if !ok {
		return
	}
	groups, total, err := h.service.ListGroups(r.Context(), p.Count, p.Offset())
	if err != nil {
		h.logger.WithError(err).Error("failed to list groups")
		httputil.WriteError(w, err)
		return
	}
	if groups == nil {
		groups = []Group{}
	}
	httputil.WritePage(w, groups, total, p.Page, p.Count)
}

// ListAllGroups handles GET /cms/admin/group/all
func (h *Handler) ListAllGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListAllGroups(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list groups")
		httputil.WriteError(w, err)
		return
	}
	if groups == nil {
		groups = []Group{}
	}
	httputil.WriteSuccess(w, groups)
}

// GetGroup handles GET /cms/admin/group/{id}
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}
	group, err := h.service.GetGroup(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, group)
}

type createGroupRequest struct {
	Name          string  `json:"name"`
	Info          string  `json:"info"`
	PermissionIDs []int64 `json:"permission_ids"`
}

// CreateGroup handles POST /cms/admin/group
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	group, err := h.service.CreateGroup(r.Context(), req.Name, req.Info, req.PermissionIDs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, group)
}

type updateGroupRequest struct {
	Name string `json:"name"`
	Info string `json:"info"`
}

// UpdateGroup handles PUT /cms/admin/group/{id}
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}
	var req updateGroupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if err := h.service.UpdateGroup(r.Context(), id, req.Name, req.Info); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 2, "group updated")
}

// DeleteGroup handles DELETE /cms/admin/group/{id}
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteGroup(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 3, "group deleted")
}

type dispatchRequest struct {
	GroupID      int64 `json:"group_id"`
	PermissionID int64 `json:"permission_id"`
}

// DispatchPermission handles POST /cms/admin/permission/dispatch
func (h *Handler) DispatchPermission(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.GroupID <= 0 || req.PermissionID <= 0 {
		httputil.WriteBadRequest(w, "group_id and permission_id are required")
		return
	}
	if err := h.service.DispatchPermission(r.Context(), req.GroupID, req.PermissionID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 6, "permission granted")
}

type dispatchBatchRequest struct {
	GroupID       int64   `json:"group_id"`
	PermissionIDs []int64 `json:"permission_ids"`
}

// DispatchPermissions handles POST /cms/admin/permission/dispatch/batch
func (h *Handler) DispatchPermissions(w http.ResponseWriter, r *http.Request) {
	var req dispatchBatchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.GroupID <= 0 || len(req.PermissionIDs) == 0 {
		httputil.WriteBadRequest(w, "group_id and permission_ids are required")
		return
	}
	if err := h.service.DispatchPermissions(r.Context(), req.GroupID, req.PermissionIDs); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 6, "permissions granted")
}

// RemovePermissions handles POST /cms/admin/permission/remove
func (h *Handler) RemovePermissions(w http.ResponseWriter, r *http.Request) {
	var req dispatchBatchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.GroupID <= 0 || len(req.PermissionIDs) == 0 {
		httputil.WriteBadRequest(w, "group_id and permission_ids are required")
		return
	}
	if err := h.service.RemovePermissions(r.Context(), req.GroupID, req.PermissionIDs); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 7, "permissions removed")
}
