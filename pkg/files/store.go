package files

import (
	"context"
	"database/sql"
	"fmt"
)

// Store persists file records
type Store struct {
	db *sql.DB
}

// NewStore creates a new file store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a file record
func (s *Store) Create(ctx context.Context, file *File) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO files (path, type, name, extension, size, md5)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, create_time
	`, file.Path, file.Type, file.Name, file.Extension, file.Size, file.MD5).Scan(&file.ID, &file.CreateTime)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	return nil
}

// GetByMD5 retrieves a file by content hash, or (nil, nil) if unknown
func (s *Store) GetByMD5(ctx context.Context, md5 string) (*File, error) {
	var f File
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, type, name, extension, size, md5, create_time
		FROM files
		WHERE md5 = $1
	`, md5).Scan(&f.ID, &f.Path, &f.Type, &f.Name, &f.Extension, &f.Size, &f.MD5, &f.CreateTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file by md5: %w", err)
	}
	return &f, nil
}
