// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"booktracker/internal/domain"
	"booktracker/internal/guard"
	"booktracker/internal/ledger"
)

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type bookRepo interface {
	Create(ctx context.Context, b *domain.Book) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error)
	List(ctx context.Context, f domain.BookFilter) ([]domain.Book, error)
	Update(ctx context.Context, b *domain.Book) error
	Delete(ctx context.Context, id uuid.UUID) error
	LinkAuthors(ctx context.Context, bookID uuid.UUID, authorIDs []uuid.UUID) error
	AuthorsOf(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID][]domain.Author, error)
}

type authorRepo interface {
	Create(ctx context.Context, a *domain.Author) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Author, error)
	List(ctx context.Context, limit, offset int) ([]domain.Author, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type genreRepo interface {
	Create(ctx context.Context, g *domain.Genre) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Genre, error)
	List(ctx context.Context) ([]domain.Genre, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Deps are the collaborators of the catalog service.
type Deps struct {
	Tx      txManager
	Books   bookRepo
	Authors authorRepo
	Genres  genreRepo
	Guard   *guard.Guard
	Ledger  *ledger.Ledger
	Logger  *slog.Logger
	Now     func() time.Time
}

// service implements the Service interface.
type service struct {
	tx      txManager
	books   bookRepo
	authors authorRepo
	genres  genreRepo
	guard   *guard.Guard
	ledger  *ledger.Ledger
	log     *slog.Logger
	now     func() time.Time
}

// NewService creates a new catalog service instance.
func NewService(d Deps) Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:      d.Tx,
		books:   d.Books,
		authors: d.Authors,
		genres:  d.Genres,
		guard:   d.Guard,
		ledger:  d.Ledger,
		log:     d.Logger.With("service", "catalog"),
		now:     now,
	}
}

// CreateBook validates the request as a whole, then stores the book and its author
// links in one unit of work.
func (s *service) CreateBook(ctx context.Context, in CreateBookInput) (*BookDetail, error) {
	total := 1
	if in.TotalCopies != nil {
		total = *in.TotalCopies
	}
	b := domain.NewBook(strings.TrimSpace(in.ISBN), strings.TrimSpace(in.Title), total, s.now())
	b.GenreID = in.GenreID
	b.PublicationYear = in.PublicationYear
	b.Publisher = in.Publisher
	b.NumberOfPages = in.NumberOfPages
	b.Edition = in.Edition
	b.CoverImageURL = in.CoverImageURL
	b.Description = in.Description

	var detail *BookDetail
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		authorIDs, err := s.guard.CheckNewBook(ctx, &b, in.AuthorIDs)
		if err != nil {
			return err
		}
		if err := s.books.Create(ctx, &b); err != nil {
			return fmt.Errorf("create book: %w", err)
		}
		if err := s.books.LinkAuthors(ctx, b.ID, authorIDs); err != nil {
			return fmt.Errorf("link authors: %w", err)
		}
		detail, err = s.detail(ctx, &b)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "book created",
		slog.String("book_id", b.ID.String()),
		slog.String("isbn", b.ISBN),
		slog.Int("total_copies", b.TotalCopies),
		slog.Int("authors", len(detail.Authors)),
	)
	return detail, nil
}

// GetBook returns the detail view of a book.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*BookDetail, error) {
	b, err := s.books.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, b)
}

func (s *service) detail(ctx context.Context, b *domain.Book) (*BookDetail, error) {
	var genre *domain.Genre
	if b.GenreID != nil {
		g, err := s.genres.GetByID(ctx, *b.GenreID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load genre: %w", err)
		}
		genre = g
	}
	authors, err := s.books.AuthorsOf(ctx, []uuid.UUID{b.ID})
	if err != nil {
		return nil, fmt.Errorf("load authors: %w", err)
	}
	return newDetail(b, genre, authors[b.ID]), nil
}

// ListBooks returns book summaries ordered by title.
func (s *service) ListBooks(ctx context.Context, f domain.BookFilter) ([]BookSummary, error) {
	books, err := s.books.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	ids := make([]uuid.UUID, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}
	authors, err := s.books.AuthorsOf(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load authors: %w", err)
	}

	out := make([]BookSummary, 0, len(books))
	for _, b := range books {
		out = append(out, newSummary(b, authors[b.ID]))
	}
	return out, nil
}

// UpdateBook replaces the descriptive fields of a book.
func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, in UpdateBookInput) (*BookDetail, error) {
	var detail *BookDetail
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.books.GetByID(ctx, id)
		if err != nil {
			return err
		}
		b.ISBN = strings.TrimSpace(in.ISBN)
		b.Title = strings.TrimSpace(in.Title)
		b.GenreID = in.GenreID
		b.PublicationYear = in.PublicationYear
		b.Publisher = in.Publisher
		b.NumberOfPages = in.NumberOfPages
		b.Edition = in.Edition
		b.CoverImageURL = in.CoverImageURL
		b.Description = in.Description

		if err := s.guard.CheckBookUpdate(ctx, b); err != nil {
			return err
		}
		if err := s.books.Update(ctx, b); err != nil {
			return fmt.Errorf("update book: %w", err)
		}
		detail, err = s.detail(ctx, b)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// DeleteBook removes a book that has never been borrowed. Author links go with it.
func (s *service) DeleteBook(ctx context.Context, id uuid.UUID) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.CheckBookDeletion(ctx, id); err != nil {
			return err
		}
		return s.books.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "book deleted", slog.String("book_id", id.String()))
	return nil
}

// AdjustCopies adds or withdraws copies of a book.
func (s *service) AdjustCopies(ctx context.Context, id uuid.UUID, delta int) (*BookDetail, error) {
	var detail *BookDetail
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.ledger.AdjustTotal(ctx, id, delta)
		if err != nil {
			return err
		}
		detail, err = s.detail(ctx, b)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *service) CreateAuthor(ctx context.Context, in CreateAuthorInput) (*domain.Author, error) {
	a := &domain.Author{
		ID:          uuid.New(),
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Biography:   in.Biography,
		DateOfBirth: in.DateOfBirth,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.guard.CheckNewAuthor(a); err != nil {
		return nil, err
	}
	if err := s.authors.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create author: %w", err)
	}
	s.log.InfoContext(ctx, "author created", slog.String("author_id", a.ID.String()))
	return a, nil
}

func (s *service) GetAuthor(ctx context.Context, id uuid.UUID) (*domain.Author, error) {
	return s.authors.GetByID(ctx, id)
}

func (s *service) ListAuthors(ctx context.Context, limit, offset int) ([]domain.Author, error) {
	return s.authors.List(ctx, limit, offset)
}

// DeleteAuthor removes an author and every link to the author's books.
func (s *service) DeleteAuthor(ctx context.Context, id uuid.UUID) error {
	if err := s.authors.Delete(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "author deleted", slog.String("author_id", id.String()))
	return nil
}

func (s *service) CreateGenre(ctx context.Context, in CreateGenreInput) (*domain.Genre, error) {
	g := &domain.Genre{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		CreatedAt:   s.now().UTC(),
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.CheckNewGenre(ctx, g); err != nil {
			return err
		}
		if err := s.genres.Create(ctx, g); err != nil {
			return fmt.Errorf("create genre: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "genre created", slog.String("genre_id", g.ID.String()), slog.String("name", g.Name))
	return g, nil
}

func (s *service) ListGenres(ctx context.Context) ([]domain.Genre, error) {
	return s.genres.List(ctx)
}

// DeleteGenre removes a genre; its books keep existing without a genre.
func (s *service) DeleteGenre(ctx context.Context, id uuid.UUID) error {
	if err := s.genres.Delete(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "genre deleted", slog.String("genre_id", id.String()))
	return nil
}
