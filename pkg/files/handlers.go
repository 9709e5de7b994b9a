package files

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quillcms/quill/pkg/access"
	"github.com/quillcms/quill/pkg/httputil"
	"github.com/quillcms/quill/pkg/observability"
)

// Handler exposes the upload endpoint under /cms/file
type Handler struct {
	uploader *LocalUploader
	maxBytes int64
	logger   *observability.Logger
}

// NewHandler creates a new file handler
func NewHandler(uploader *LocalUploader, maxBytes int64, logger *observability.Logger) *Handler {
	return &Handler{uploader: uploader, maxBytes: maxBytes, logger: logger}
}

// RegisterRoutes registers the file routes. Any authenticated user may
// upload.
func (h *Handler) RegisterRoutes(router *mux.Router, guard *access.Guard) {
	sub := router.PathPrefix("/cms/file").Subrouter()
	sub.Handle("", guard.LoginOnly(http.HandlerFunc(h.UploadFiles))).Methods("POST")
}

// UploadFiles handles POST /cms/file
func (h *Handler) UploadFiles(w http.ResponseWriter, r *http.Request) {
	// One extra MaxFiles factor plus slack for the multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes*int64(h.uploader.cfg.MaxFiles)+1<<20)
	reader, err := r.MultipartReader()
	if err != nil {
		httputil.WriteBadRequest(w, "multipart form data required")
		return
	}

	var uploads []Upload
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			httputil.WriteBadRequest(w, "malformed multipart body")
			return
		}
		if part.FileName() == "" {
			part.Close()
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part, h.maxBytes+1))
		part.Close()
		if err != nil {
			httputil.WriteBadRequest(w, "failed to read upload")
			return
		}
		uploads = append(uploads, Upload{
			FieldName: part.FormName(),
			FileName:  part.FileName(),
			Data:      data,
		})
	}

	results, err := h.uploader.Upload(r.Context(), uploads)
	if err != nil {
		h.logger.WithError(err).Warn("upload rejected")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, results)
}
