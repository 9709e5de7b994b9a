package files

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillcms/quill/pkg/apperr"
	"github.com/quillcms/quill/pkg/config"
	"github.com/quillcms/quill/pkg/observability"
)

// Upload is one incoming multipart part, already read into memory.
// Uploads are bounded by config well below anything worth streaming.
type Upload struct {
	FieldName string
	FileName  string
	Data      []byte
}

// LocalUploader stores uploads on the local filesystem under
// dir/year/month/day with random names, deduplicating by MD5.
type LocalUploader struct {
	cfg     config.UploadConfig
	store   *Store
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewLocalUploader creates a new local uploader
func NewLocalUploader(cfg config.UploadConfig, store *Store, logger *observability.Logger, metrics *observability.Metrics) *LocalUploader {
	return &LocalUploader{cfg: cfg, store: store, logger: logger, metrics: metrics}
}

// Upload validates and stores each part, returning one result per part in
// input order. Validation failures reject the whole batch before anything
// is written.
func (u *LocalUploader) Upload(ctx context.Context, uploads []Upload) ([]UploadResult, error) {
	if len(uploads) == 0 {
		return nil, apperr.BadRequest(10033, "no files in request")
	}
	if len(uploads) > u.cfg.MaxFiles {
		return nil, apperr.BadRequest(10033, fmt.Sprintf("at most %d files per request", u.cfg.MaxFiles))
	}
	for _, up := range uploads {
		if int64(len(up.Data)) > u.cfg.MaxFileBytes {
			return nil, apperr.BadRequest(apperr.CodeFileTooLarge, fmt.Sprintf("file %s exceeds the size limit", up.FileName))
		}
		if !u.extensionAllowed(filepath.Ext(up.FileName)) {
			return nil, apperr.BadRequest(apperr.CodeFileExtension, fmt.Sprintf("file type of %s is not allowed", up.FileName))
		}
	}

	results := make([]UploadResult, 0, len(uploads))
	for _, up := range uploads {
		result, err := u.storeOne(ctx, up)
		if err != nil {
			if u.metrics != nil {
				u.metrics.FileUploadsTotal.WithLabelValues("error").Inc()
			}
			return nil, err
		}
		if u.metrics != nil {
			u.metrics.FileUploadsTotal.WithLabelValues("ok").Inc()
			u.metrics.FileUploadedBytes.Add(float64(len(up.Data)))
		}
		results = append(results, *result)
	}
	return results, nil
}

func (u *LocalUploader) storeOne(ctx context.Context, up Upload) (*UploadResult, error) {
	sum := md5.Sum(up.Data)
	digest := hex.EncodeToString(sum[:])

	existing, err := u.store.GetByMD5(ctx, digest)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &UploadResult{
			ID:   existing.ID,
			Key:  up.FieldName,
			Path: existing.Path,
			URL:  u.publicURL(existing.Path),
		}, nil
	}

	ext := strings.ToLower(filepath.Ext(up.FileName))
	now := time.Now()
	relDir := filepath.Join(now.Format("2006"), now.Format("01"), now.Format("02"))
	relPath := filepath.Join(relDir, uuid.NewString()+ext)

	absDir := filepath.Join(u.cfg.Dir, relDir)
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(u.cfg.Dir, relPath), up.Data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}

	record := &File{
		Path:      relPath,
		Type:      TypeLocal,
		Name:      up.FileName,
		Extension: ext,
		Size:      int64(len(up.Data)),
		MD5:       digest,
	}
	if err := u.store.Create(ctx, record); err != nil {
		return nil, err
	}

	u.logger.WithFields(map[string]interface{}{
		"file_id": record.ID,
		"path":    relPath,
		"size":    record.Size,
	}).Debug("file stored")

	return &UploadResult{
		ID:   record.ID,
		Key:  up.FieldName,
		Path: relPath,
		URL:  u.publicURL(relPath),
	}, nil
}

// extensionAllowed applies the include/exclude policy. An empty policy
// admits everything.
func (u *LocalUploader) extensionAllowed(ext string) bool {
	ext = strings.ToLower(ext)
	if len(u.cfg.Include) > 0 {
		for _, allowed := range u.cfg.Include {
			if strings.EqualFold(allowed, ext) {
				return true
			}
		}
		return false
	}
	for _, denied := range u.cfg.Exclude {
		if strings.EqualFold(denied, ext) {
			return false
		}
	}
	return true
}

func (u *LocalUploader) publicURL(relPath string) string {
	return strings.TrimSuffix(u.cfg.SiteDomain, "/") + "/assets/" + filepath.ToSlash(relPath)
}
