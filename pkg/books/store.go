package books

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists books. Lookups return (nil, nil) when the row is absent.
type Store struct {
	db *sql.DB
}

// NewStore creates a new book store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a book
func (s *Store) Create(ctx context.Context, book *Book) error {
	now := time.Now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO books (title, author, summary, image, create_time, update_time)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`, book.Title, book.Author, book.Summary, book.Image, now).Scan(&book.ID)
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	book.CreateTime = now
	book.UpdateTime = now
	return nil
}

// Get retrieves a book by id
func (s *Store) Get(ctx context.Context, id int64) (*Book, error) {
	return s.scanBook(s.db.QueryRowContext(ctx, `
		SELECT id, title, author, summary, image, create_time, update_time
		FROM books
		WHERE id = $1 AND delete_time IS NULL
	`, id))
}

// GetByTitle retrieves a book by exact title
func (s *Store) GetByTitle(ctx context.Context, title string) (*Book, error) {
	return s.scanBook(s.db.QueryRowContext(ctx, `
		SELECT id, title, author, summary, image, create_time, update_time
		FROM books
		WHERE title = $1 AND delete_time IS NULL
	`, title))
}

// SearchOne retrieves the first book whose title contains the keyword
func (s *Store) SearchOne(ctx context.Context, keyword string) (*Book, error) {
	return s.scanBook(s.db.QueryRowContext(ctx, `
		SELECT id, title, author, summary, image, create_time, update_time
		FROM books
		WHERE title LIKE $1 AND delete_time IS NULL
		ORDER BY id
		LIMIT 1
	`, "%"+keyword+"%"))
}

func (s *Store) scanBook(row *sql.Row) (*Book, error) {
	var b Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Summary, &b.Image, &b.CreateTime, &b.UpdateTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return &b, nil
}

// List returns all books
func (s *Store) List(ctx context.Context) ([]Book, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, author, summary, image, create_time, update_time
		FROM books
		WHERE delete_time IS NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Summary, &b.Image, &b.CreateTime, &b.UpdateTime); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate books: %w", err)
	}
	return books, nil
}

// Update replaces a book's fields
func (s *Store) Update(ctx context.Context, book *Book) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE books
		SET title = $1, author = $2, summary = $3, image = $4, update_time = $5
		WHERE id = $6 AND delete_time IS NULL
	`, book.Title, book.Author, book.Summary, book.Image, time.Now(), book.ID)
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}
	return nil
}

// Delete soft-deletes a book
func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE books SET delete_time = $1 WHERE id = $2 AND delete_time IS NULL
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return nil
}
