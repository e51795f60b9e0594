package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Field limits shared by the guard and the storage schema.
const (
	MaxISBNLength       = 13
	MaxTitleLength      = 255
	MaxPublisherLength  = 255
	MaxEditionLength    = 50
	MaxPersonNameLength = 100
	MaxGenreNameLength  = 100

	// MaxCopies and MaxPages match the INTEGER columns.
	MaxCopies = math.MaxInt32
	MaxPages  = math.MaxInt32
)

// Book is one catalog title. Availability is tracked as an aggregate count of copies.
type Book struct {
	ID              uuid.UUID  `json:"id"                          db:"id"`
	ISBN            string     `json:"isbn"                        db:"isbn"`
	Title           string     `json:"title"                       db:"title"`
	GenreID         *uuid.UUID `json:"genre_id,omitempty"          db:"genre_id"`
	PublicationYear *int       `json:"publication_year,omitempty"  db:"publication_year"`
	Publisher       *string    `json:"publisher,omitempty"         db:"publisher"`
	NumberOfPages   *int       `json:"number_of_pages,omitempty"   db:"number_of_pages"`
	TotalCopies     int        `json:"total_copies"                db:"total_copies"`
	AvailableCopies int        `json:"available_copies"            db:"available_copies"`
	Edition         *string    `json:"edition,omitempty"           db:"edition"`
	CoverImageURL   *string    `json:"cover_image_url,omitempty"   db:"cover_image_url"`
	Description     *string    `json:"description,omitempty"       db:"description"`
	DateAdded       time.Time  `json:"date_added"                  db:"date_added"`
}

// NewBook returns a book with every copy available.
func NewBook(isbn, title string, totalCopies int, now time.Time) Book {
	return Book{
		ID:              uuid.New(),
		ISBN:            isbn,
		Title:           title,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
		DateAdded:       now.UTC(),
	}
}

// CopiesConsistent reports whether 0 <= available <= total and total >= 1.
func (b Book) CopiesConsistent() bool {
	return b.TotalCopies >= 1 && b.AvailableCopies >= 0 && b.AvailableCopies <= b.TotalCopies
}

// Author writes books; linked to Book through BookAuthor rows.
type Author struct {
	ID          uuid.UUID  `json:"id"                      db:"id"`
	FirstName   string     `json:"first_name"              db:"first_name"`
	LastName    string     `json:"last_name"               db:"last_name"`
	Biography   *string    `json:"biography,omitempty"     db:"biography"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	CreatedAt   time.Time  `json:"created_at"              db:"created_at"`
}

// FullName is "First Last".
func (a Author) FullName() string {
	return a.FirstName + " " + a.LastName
}

// BookAuthor is the junction row between a book and an author.
type BookAuthor struct {
	BookID   uuid.UUID `db:"book_id"`
	AuthorID uuid.UUID `db:"author_id"`
}

// Genre groups books. Books reference it through a nullable key.
type Genre struct {
	ID          uuid.UUID `json:"id"                    db:"id"`
	Name        string    `json:"name"                  db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at"            db:"created_at"`
}

// BookFilter narrows ListBooks.
type BookFilter struct {
	TitleContains string
	GenreID       *uuid.UUID
	Limit         int
	Offset        int
}
