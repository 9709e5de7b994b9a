package books

import (
	"context"

	"github.com/quillcms/quill/pkg/apperr"
	"github.com/quillcms/quill/pkg/observability"
)

// Service implements the book operations with their business rules
type Service struct {
	store  *Store
	logger *observability.Logger
}

// NewService creates a new book service
func NewService(store *Store, logger *observability.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Get returns one book
func (s *Service) Get(ctx context.Context, id int64) (*Book, error) {
	book, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, apperr.NotFound(apperr.CodeBookNotFound, "book not found")
	}
	return book, nil
}

// List returns all books
func (s *Service) List(ctx context.Context) ([]Book, error) {
	books, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if books == nil {
		books = []Book{}
	}
	return books, nil
}

// Search returns the first book matching the keyword
func (s *Service) Search(ctx context.Context, keyword string) (*Book, error) {
	book, err := s.store.SearchOne(ctx, keyword)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, apperr.NotFound(apperr.CodeBookNotFound, "book not found")
	}
	return book, nil
}

// Create adds a book. Titles are unique among live books.
func (s *Service) Create(ctx context.Context, book *Book) error {
	existing, err := s.store.GetByTitle(ctx, book.Title)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.Conflict(apperr.CodeBookTitleTaken, "a book with this title already exists")
	}
	if err := s.store.Create(ctx, book); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"book_id": book.ID,
		"title":   book.Title,
	}).Info("book created")
	return nil
}

// Update replaces a book's fields
func (s *Service) Update(ctx context.Context, book *Book) error {
	existing, err := s.store.Get(ctx, book.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperr.NotFound(apperr.CodeBookNotFound, "book not found")
	}
	if book.Title != existing.Title {
		other, err := s.store.GetByTitle(ctx, book.Title)
		if err != nil {
			return err
		}
		if other != nil {
			return apperr.Conflict(apperr.CodeBookTitleTaken, "a book with this title already exists")
		}
	}
	return s.store.Update(ctx, book)
}

// Delete removes a book
func (s *Service) Delete(ctx context.Context, id int64) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperr.NotFound(apperr.CodeBookNotFound, "book not found")
	}
	return s.store.Delete(ctx, id)
}
