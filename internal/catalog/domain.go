// internal/catalog/domain.go
package catalog

import (
	"time"

	"github.com/google/uuid"

	"booktracker/internal/domain"
)

// CreateBookInput is the create-book request. TotalCopies defaults to 1 when absent.
type CreateBookInput struct {
	ISBN            string      `json:"isbn"`
	Title           string      `json:"title"`
	GenreID         *uuid.UUID  `json:"genre_id,omitempty"`
	AuthorIDs       []uuid.UUID `json:"author_ids,omitempty"`
	PublicationYear *int        `json:"publication_year,omitempty"`
	Publisher       *string     `json:"publisher,omitempty"`
	NumberOfPages   *int        `json:"number_of_pages,omitempty"`
	TotalCopies     *int        `json:"total_copies,omitempty"`
	Edition         *string     `json:"edition,omitempty"`
	CoverImageURL   *string     `json:"cover_image_url,omitempty"`
	Description     *string     `json:"description,omitempty"`
}

// UpdateBookInput replaces the descriptive fields of a book. Copy counts are changed
// through AdjustCopies only.
type UpdateBookInput struct {
	ISBN            string     `json:"isbn"`
	Title           string     `json:"title"`
	GenreID         *uuid.UUID `json:"genre_id,omitempty"`
	PublicationYear *int       `json:"publication_year,omitempty"`
	Publisher       *string    `json:"publisher,omitempty"`
	NumberOfPages   *int       `json:"number_of_pages,omitempty"`
	Edition         *string    `json:"edition,omitempty"`
	CoverImageURL   *string    `json:"cover_image_url,omitempty"`
	Description     *string    `json:"description,omitempty"`
}

// BookSummary is one row of the book list.
type BookSummary struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Authors         []string  `json:"authors"`
	AvailableCopies int       `json:"available_copies"`
}

// AuthorRef names an author of a book.
type AuthorRef struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
}

// BookDetail is the full view of one book.
type BookDetail struct {
	ID              uuid.UUID   `json:"id"`
	ISBN            string      `json:"isbn"`
	Title           string      `json:"title"`
	GenreID         *uuid.UUID  `json:"genre_id,omitempty"`
	GenreName       *string     `json:"genre_name,omitempty"`
	Authors         []AuthorRef `json:"authors"`
	PublicationYear *int        `json:"publication_year,omitempty"`
	Publisher       *string     `json:"publisher,omitempty"`
	NumberOfPages   *int        `json:"number_of_pages,omitempty"`
	Edition         *string     `json:"edition,omitempty"`
	CoverImageURL   *string     `json:"cover_image_url,omitempty"`
	Description     *string     `json:"description,omitempty"`
	TotalCopies     int         `json:"total_copies"`
	AvailableCopies int         `json:"available_copies"`
	DateAdded       time.Time   `json:"date_added"`
}

// CreateAuthorInput is the create-author request.
type CreateAuthorInput struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Biography   *string    `json:"biography,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

// CreateGenreInput is the create-genre request.
type CreateGenreInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

func newDetail(b *domain.Book, genre *domain.Genre, authors []domain.Author) *BookDetail {
	d := &BookDetail{
		ID:              b.ID,
		ISBN:            b.ISBN,
		Title:           b.Title,
		GenreID:         b.GenreID,
		Authors:         make([]AuthorRef, 0, len(authors)),
		PublicationYear: b.PublicationYear,
		Publisher:       b.Publisher,
		NumberOfPages:   b.NumberOfPages,
		Edition:         b.Edition,
		CoverImageURL:   b.CoverImageURL,
		Description:     b.Description,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		DateAdded:       b.DateAdded,
	}
	if genre != nil {
		name := genre.Name
		d.GenreName = &name
	}
	for _, a := range authors {
		d.Authors = append(d.Authors, AuthorRef{ID: a.ID, FullName: a.FullName()})
	}
	return d
}

func newSummary(b domain.Book, authors []domain.Author) BookSummary {
	s := BookSummary{
		ID:              b.ID,
		Title:           b.Title,
		Authors:         make([]string, 0, len(authors)),
		AvailableCopies: b.AvailableCopies,
	}
	for _, a := range authors {
		s.Authors = append(s.Authors, a.FullName())
	}
	return s
}
