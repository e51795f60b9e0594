// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"

	"booktracker/internal/domain"
)

// Service defines the interface for the catalog service.
type Service interface {
	CreateBook(ctx context.Context, in CreateBookInput) (*BookDetail, error)
	GetBook(ctx context.Context, id uuid.UUID) (*BookDetail, error)
	ListBooks(ctx context.Context, f domain.BookFilter) ([]BookSummary, error)
	UpdateBook(ctx context.Context, id uuid.UUID, in UpdateBookInput) (*BookDetail, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error
	AdjustCopies(ctx context.Context, id uuid.UUID, delta int) (*BookDetail, error)

	CreateAuthor(ctx context.Context, in CreateAuthorInput) (*domain.Author, error)
	GetAuthor(ctx context.Context, id uuid.UUID) (*domain.Author, error)
	ListAuthors(ctx context.Context, limit, offset int) ([]domain.Author, error)
	DeleteAuthor(ctx context.Context, id uuid.UUID) error

	CreateGenre(ctx context.Context, in CreateGenreInput) (*domain.Genre, error)
	ListGenres(ctx context.Context) ([]domain.Genre, error)
	DeleteGenre(ctx context.Context, id uuid.UUID) error
}
