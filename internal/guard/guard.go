// Package guard enforces the referential-integrity rules between catalog entities,
// patrons and lending history before a mutation is committed. Checks run inside the
// caller's unit of work; storage constraints stay the final authority for races.
package guard

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"booktracker/internal/domain"
)

type bookLookup interface {
	ExistsByISBN(ctx context.Context, isbn string) (bool, error)
}

type authorLookup interface {
	ExistingIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
}

type genreLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Genre, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
}

type patronLookup interface {
	ExistsByCardID(ctx context.Context, cardID string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type historyLookup interface {
	CountByBook(ctx context.Context, bookID uuid.UUID) (int, error)
	CountByPatron(ctx context.Context, patronID uuid.UUID) (int, error)
}

// Guard validates catalog and patron mutations.
type Guard struct {
	books   bookLookup
	authors authorLookup
	genres  genreLookup
	patrons patronLookup
	history historyLookup
	maxYear func() int
}

// New creates a Guard.
func New(books bookLookup, authors authorLookup, genres genreLookup, patrons patronLookup, history historyLookup) *Guard {
	return &Guard{
		books:   books,
		authors: authors,
		genres:  genres,
		patrons: patrons,
		history: history,
		maxYear: func() int { return time.Now().Year() + 1 },
	}
}

// CheckNewBook validates a book about to be created together with the authors to link.
// Every problem is reported at once. Duplicate author ids are collapsed and the
// de-duplicated list, in first-seen order, is returned for linking.
func (g *Guard) CheckNewBook(ctx context.Context, b *domain.Book, authorIDs []uuid.UUID) ([]uuid.UUID, error) {
	var p domain.Problems
	g.bookFields(&p, b)

	if strings.TrimSpace(b.ISBN) != "" {
		exists, err := g.books.ExistsByISBN(ctx, b.ISBN)
		if err != nil {
			return nil, fmt.Errorf("check isbn: %w", err)
		}
		if exists {
			p.AddDuplicate("isbn", "book with ISBN %s already exists", b.ISBN)
		}
	}

	if err := g.checkGenre(ctx, &p, b.GenreID); err != nil {
		return nil, err
	}

	ids := Dedupe(authorIDs)
	if len(ids) > 0 {
		found, err := g.authors.ExistingIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("check authors: %w", err)
		}
		known := make(map[uuid.UUID]struct{}, len(found))
		for _, id := range found {
			known[id] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := known[id]; !ok {
				p.Add("author_ids", "author with ID %s not found", id)
			}
		}
	}

	if err := p.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// CheckBookUpdate validates the descriptive fields of an existing book. ISBN
// collisions with other books are left to the storage unique constraint.
func (g *Guard) CheckBookUpdate(ctx context.Context, b *domain.Book) error {
	var p domain.Problems
	g.bookFields(&p, b)
	if err := g.checkGenre(ctx, &p, b.GenreID); err != nil {
		return err
	}
	return p.Err()
}

func (g *Guard) bookFields(p *domain.Problems, b *domain.Book) {
	switch isbn := strings.TrimSpace(b.ISBN); {
	case isbn == "":
		p.Add("isbn", "ISBN is required")
	case len(isbn) > domain.MaxISBNLength:
		p.Add("isbn", "ISBN must be at most %d characters", domain.MaxISBNLength)
	}
	switch title := strings.TrimSpace(b.Title); {
	case title == "":
		p.Add("title", "title is required")
	case utf8.RuneCountInString(title) > domain.MaxTitleLength:
		p.Add("title", "title must be at most %d characters", domain.MaxTitleLength)
	}
	switch {
	case b.TotalCopies < 1:
		p.Add("total_copies", "total copies must be at least 1")
	case b.TotalCopies > domain.MaxCopies:
		p.Add("total_copies", "total copies must be at most %d", domain.MaxCopies)
	}
	if b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		p.Add("available_copies", "available copies must be between 0 and total copies")
	}
	if b.PublicationYear != nil && (*b.PublicationYear < 0 || *b.PublicationYear > g.maxYear()) {
		p.Add("publication_year", "publication year %d is out of range", *b.PublicationYear)
	}
	if b.NumberOfPages != nil && (*b.NumberOfPages < 1 || *b.NumberOfPages > domain.MaxPages) {
		p.Add("number_of_pages", "number of pages must be between 1 and %d", domain.MaxPages)
	}
	if b.Publisher != nil && utf8.RuneCountInString(*b.Publisher) > domain.MaxPublisherLength {
		p.Add("publisher", "publisher must be at most %d characters", domain.MaxPublisherLength)
	}
	if b.Edition != nil && utf8.RuneCountInString(*b.Edition) > domain.MaxEditionLength {
		p.Add("edition", "edition must be at most %d characters", domain.MaxEditionLength)
	}
}

func (g *Guard) checkGenre(ctx context.Context, p *domain.Problems, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	if _, err := g.genres.GetByID(ctx, *id); err != nil {
		if isNotFound(err) {
			p.Add("genre_id", "genre with ID %s not found", *id)
			return nil
		}
		return fmt.Errorf("check genre: %w", err)
	}
	return nil
}

// CheckNewAuthor validates an author about to be created.
func (g *Guard) CheckNewAuthor(a *domain.Author) error {
	var p domain.Problems
	personName(&p, "first_name", a.FirstName)
	personName(&p, "last_name", a.LastName)
	return p.Err()
}

// CheckNewGenre validates a genre about to be created, including name uniqueness.
func (g *Guard) CheckNewGenre(ctx context.Context, genre *domain.Genre) error {
	var p domain.Problems
	switch name := strings.TrimSpace(genre.Name); {
	case name == "":
		p.Add("name", "genre name is required")
	case utf8.RuneCountInString(name) > domain.MaxGenreNameLength:
		p.Add("name", "genre name must be at most %d characters", domain.MaxGenreNameLength)
	default:
		exists, err := g.genres.ExistsByName(ctx, name)
		if err != nil {
			return fmt.Errorf("check genre name: %w", err)
		}
		if exists {
			p.AddDuplicate("name", "genre %q already exists", name)
		}
	}
	return p.Err()
}

// CheckNewPatron validates a patron about to be registered, including library card
// and email uniqueness.
func (g *Guard) CheckNewPatron(ctx context.Context, pt *domain.Patron) error {
	var p domain.Problems
	personName(&p, "first_name", pt.FirstName)
	personName(&p, "last_name", pt.LastName)

	if !pt.MembershipStatus.Valid() {
		p.Add("membership_status", "unknown membership status %q", pt.MembershipStatus)
	}

	switch card := strings.TrimSpace(pt.LibraryCardID); {
	case card == "":
		p.Add("library_card_id", "library card ID is required")
	case len(card) > domain.MaxLibraryCardIDLength:
		p.Add("library_card_id", "library card ID must be at most %d characters", domain.MaxLibraryCardIDLength)
	default:
		exists, err := g.patrons.ExistsByCardID(ctx, card)
		if err != nil {
			return fmt.Errorf("check library card: %w", err)
		}
		if exists {
			p.AddDuplicate("library_card_id", "library card %s is already registered", card)
		}
	}

	if pt.PhoneNumber != nil && utf8.RuneCountInString(*pt.PhoneNumber) > domain.MaxPhoneLength {
		p.Add("phone_number", "phone number must be at most %d characters", domain.MaxPhoneLength)
	}

	switch email := strings.TrimSpace(pt.Email); {
	case email == "":
		p.Add("email", "email is required")
	case len(email) > domain.MaxEmailLength:
		p.Add("email", "email must be at most %d characters", domain.MaxEmailLength)
	case !validEmail(email):
		p.Add("email", "email %q is not a valid address", email)
	default:
		exists, err := g.patrons.ExistsByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if exists {
			p.AddDuplicate("email", "email %s is already registered", email)
		}
	}

	return p.Err()
}

// CheckBookDeletion rejects deleting a book referenced by any borrowing record,
// whatever its status.
func (g *Guard) CheckBookDeletion(ctx context.Context, bookID uuid.UUID) error {
	n, err := g.history.CountByBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("count borrowing records: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("book %s has %d borrowing records: %w", bookID, n, domain.ErrHasBorrowingHistory)
	}
	return nil
}

// CheckPatronDeletion rejects deleting a patron referenced by any borrowing record.
func (g *Guard) CheckPatronDeletion(ctx context.Context, patronID uuid.UUID) error {
	n, err := g.history.CountByPatron(ctx, patronID)
	if err != nil {
		return fmt.Errorf("count borrowing records: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("patron %s has %d borrowing records: %w", patronID, n, domain.ErrHasBorrowingHistory)
	}
	return nil
}

// Dedupe drops repeated ids, keeping the first occurrence.
func Dedupe(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func personName(p *domain.Problems, field, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		p.Add(field, "%s is required", strings.ReplaceAll(field, "_", " "))
		return
	}
	if utf8.RuneCountInString(v) > domain.MaxPersonNameLength {
		p.Add(field, "%s must be at most %d characters", strings.ReplaceAll(field, "_", " "), domain.MaxPersonNameLength)
	}
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
