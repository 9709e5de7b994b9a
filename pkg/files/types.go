// Package files implements multipart upload with content-addressed
// deduplication: a file whose MD5 is already known is answered from the
// existing record without touching disk again.
package files

import "time"

// TypeLocal marks files stored on the local filesystem
const TypeLocal = "LOCAL"

// File is one stored upload
type File struct {
	ID         int64     `json:"id"`
	Path       string    `json:"path"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	Extension  string    `json:"extension"`
	Size       int64     `json:"size"`
	MD5        string    `json:"md5"`
	CreateTime time.Time `json:"create_time"`
}

// UploadResult is what the upload endpoint returns per part
type UploadResult struct {
	ID   int64  `json:"id"`
	Key  string `json:"key"`
	Path string `json:"path"`
	URL  string `json:"url"`
}
