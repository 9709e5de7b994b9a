package books

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quillcms/quill/pkg/access"
	"github.com/quillcms/quill/pkg/httputil"
	"github.com/quillcms/quill/pkg/observability"
)

// Handler exposes the book API under /v1/book. Reads are public;
// mutations declare permissions in the 图书 module and run behind the
// group-permission guard.
type Handler struct {
	service *Service
	logger  *observability.Logger
}

// NewHandler creates a new book handler
func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes declares the book routes and their required permissions
func (h *Handler) RegisterRoutes(router *mux.Router, guard *access.Guard, registry *access.Registry) {
	sub := router.PathPrefix("/v1/book").Subrouter()

	sub.HandleFunc("", h.ListBooks).Methods("GET")
	sub.HandleFunc("/search/one", h.SearchBook).Methods("GET")
	sub.HandleFunc("/{id:[0-9]+}", h.GetBook).Methods("GET")

	registry.MustRegister("POST", "/v1/book", "创建图书", "图书")
	sub.Handle("", guard.GroupPermission(http.HandlerFunc(h.CreateBook))).Methods("POST")

	registry.MustRegister("PUT", "/v1/book/{id:[0-9]+}", "更新图书", "图书")
	sub.Handle("/{id:[0-9]+}", guard.GroupPermission(http.HandlerFunc(h.UpdateBook))).Methods("PUT")

	registry.MustRegister("DELETE", "/v1/book/{id:[0-9]+}", "删除图书", "图书")
	sub.Handle("/{id:[0-9]+}", guard.GroupPermission(http.HandlerFunc(h.DeleteBook))).Methods("DELETE")
}

// GetBook handles GET /v1/book/{id}
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}
	book, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, book)
}

// ListBooks handles GET /v1/book
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list books")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, books)
}

// SearchBook handles GET /v1/book/search/one
func (h *Handler) SearchBook(w http.ResponseWriter, r *http.Request) {
	keyword := httputil.ParseQueryString(r, "q", "")
	if !httputil.RequireNonEmpty(w, keyword, "q") {
		return
	}
	book, err := h.service.Search(r.Context(), keyword)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, book)
}

type bookRequest struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	Summary string `json:"summary"`
	Image   string `json:"image"`
}

// CreateBook handles POST /v1/book
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Title, "title") {
		return
	}
	book := &Book{Title: req.Title, Author: req.Author, Summary: req.Summary, Image: req.Image}
	if err := h.service.Create(r.Context(), book); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 12, "book created")
}

// UpdateBook handles PUT /v1/book/{id}
func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}
	var req bookRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Title, "title") {
		return
	}
	book := &Book{ID: id, Title: req.Title, Author: req.Author, Summary: req.Summary, Image: req.Image}
	if err := h.service.Update(r.Context(), book); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 13, "book updated")
}

// DeleteBook handles DELETE /v1/book/{id}
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteMessage(w, 14, "book deleted")
}
