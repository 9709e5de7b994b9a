package logs

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quillcms/quill/pkg/access"
	"github.com/quillcms/quill/pkg/httputil"
	"github.com/quillcms/quill/pkg/observability"
)

const timeLayout = "2006-01-02 15:04:05"

// Handler exposes the admin log-browsing API
type Handler struct {
	store  *Store
	logger *observability.Logger
}

// NewHandler creates a new log handler
func NewHandler(store *Store, logger *observability.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes declares the log routes and their required permissions
func (h *Handler) RegisterRoutes(router *mux.Router, guard *access.Guard, registry *access.Registry) {
	sub := router.PathPrefix("/cms/log").Subrouter()
	sub.Use(guard.GroupPermission)

	registry.MustRegister("GET", "/cms/log", "查询所有日志", "日志")
	sub.HandleFunc("", h.ListLogs).Methods("GET")

	registry.MustRegister("GET", "/cms/log/search", "搜索日志", "日志")
	sub.HandleFunc("/search", h.SearchLogs).Methods("GET")

	registry.MustRegister("GET", "/cms/log/users", "查询日志记录的用户", "日志")
	sub.HandleFunc("/users", h.ListUsernames).Methods("GET")
}

func (h *Handler) parseFilter(w http.ResponseWriter, r *http.Request) (Filter, bool) {
	p, ok := httputil.ParsePaginationOrError(w, r)
	if !ok {
		return Filter{}, false
	}
	filter := Filter{
		Username: httputil.ParseQueryString(r, "name", ""),
		Limit:    p.Count,
		Offset:   p.Offset(),
	}

	startStr := httputil.ParseQueryString(r, "start", "")
	endStr := httputil.ParseQueryString(r, "end", "")
	if startStr != "" && endStr != "" {
		start, err := time.Parse(timeLayout, startStr)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid start time")
			return Filter{}, false
		}
		end, err := time.Parse(timeLayout, endStr)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid end time")
			return Filter{}, false
		}
		filter.Start = &start
		filter.End = &end
	}
	return filter, true
}

// ListLogs handles GET /cms/log
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	entries, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("failed to list logs")
		httputil.WriteError(w, err)
		return
	}
	if len(entries) == 0 {
		httputil.WriteNotFoundError(w, 10220, "no logs found")
		return
	}
	httputil.WritePage(w, entries, total, filter.Offset/filter.Limit, filter.Limit)
}

// SearchLogs handles GET /cms/log/search
func (h *Handler) SearchLogs(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	filter.Keyword = httputil.ParseQueryString(r, "keyword", "")
	entries, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("failed to search logs")
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httputil.WritePage(w, entries, total, filter.Offset/filter.Limit, filter.Limit)
}

// ListUsernames handles GET /cms/log/users
func (h *Handler) ListUsernames(w http.ResponseWriter, r *http.Request) {
	p, ok := httputil.ParsePaginationOrError(w, r)
	if !ok {
		return
	}
	names, err := h.store.ListUsernames(r.Context(), p.Count, p.Offset())
	if err != nil {
		h.logger.WithError(err).Error("failed to list log usernames")
		httputil.WriteError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	httputil.WritePage(w, names, int64(len(names)), p.Page, p.Count)
}
