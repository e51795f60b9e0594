package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"booktracker/internal/domain"
)

// BookRepo stores books, their author links and their copy counts.
type BookRepo struct {
	s *Store
}

func (r *BookRepo) Create(ctx context.Context, b *domain.Book) error {
	return r.s.exec(ctx, func(u *unitOfWork) error {
		if _, ok := r.s.books[b.ID]; ok {
			return fmt.Errorf("book %s: %w", b.ID, domain.ErrDuplicateKey)
		}
		for _, existing := range r.s.books {
			if existing.ISBN == b.ISBN {
				return fmt.Errorf("book isbn %s: %w", b.ISBN, domain.ErrDuplicateKey)
			}
		}
		if b.GenreID != nil {
			if _, ok := r.s.genres[*b.GenreID]; !ok {
				return fmt.Errorf("genre %s: %w", *b.GenreID, domain.ErrNotFound)
			}
		}
		r.s.books[b.ID] = *b
		id := b.ID
		u.onRollback(func() { delete(r.s.books, id) })
		return nil
	})
}

func (r *BookRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	var out domain.Book
	err := r.s.exec(ctx, func(*unitOfWork) error {
		b, ok := r.s.books[id]
		if !ok {
			return fmt.Errorf("book %s: %w", id, domain.ErrNotFound)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *BookRepo) ExistsByISBN(ctx context.Context, isbn string) (bool, error) {
	var found bool
	err := r.s.exec(ctx, func(*unitOfWork) error {
		for _, b := range r.s.books {
			if b.ISBN == isbn {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *BookRepo) List(ctx context.Context, f domain.BookFilter) ([]domain.Book, error) {
	var out []domain.Book
	err := r.s.exec(ctx, func(*unitOfWork) error {
		needle := strings.ToLower(f.TitleContains)
		for _, b := range r.s.books {
			if needle != "" && !strings.Contains(strings.ToLower(b.Title), needle) {
				continue
			}
			if f.GenreID != nil && (b.GenreID == nil || *b.GenreID != *f.GenreID) {
				continue
			}
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return paginate(out, f.Limit, f.Offset), nil
}

// Update overwrites the descriptive fields of a book. Copy counts are owned by the
// ledger operations and are left untouched.
func (r *BookRepo) Update(ctx context.Context, b *domain.Book) error {
	return r.s.exec(ctx, func(u *unitOfWork) error {
		prev, ok := r.s.books[b.ID]
		if !ok {
			return fmt.Errorf("book %s: %w", b.ID, domain.ErrNotFound)
		}
		for id, other := range r.s.books {
			if id != b.ID && other.ISBN == b.ISBN {
				return fmt.Errorf("book isbn %s: %w", b.ISBN, domain.ErrDuplicateKey)
			}
		}
		if b.GenreID != nil {
			if _, ok := r.s.genres[*b.GenreID]; !ok {
				return fmt.Errorf("genre %s: %w", *b.GenreID, domain.ErrNotFound)
			}
		}
		next := *b
		next.TotalCopies = prev.TotalCopies
		next.AvailableCopies = prev.AvailableCopies
		next.DateAdded = prev.DateAdded
		r.s.books[b.ID] = next
		u.onRollback(func() { r.s.books[prev.ID] = prev })
		return nil
	})
}

// Delete removes a book and cascades its author links. Borrowing records restrict
// the delete.
func (r *BookRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.s.exec(ctx, func(u *unitOfWork) error {
		prev, ok := r.s.books[id]
		if !ok {
			return fmt.Errorf("book %s: %w", id, domain.ErrNotFound)
		}
		for _, rec := range r.s.records {
			if rec.BookID == id {
				return fmt.Errorf("book %s: %w", id, domain.ErrHasBorrowingHistory)
			}
		}
		links := r.s.bookAuthors[id]
		delete(r.s.books, id)
		delete(r.s.bookAuthors, id)
		u.onRollback(func() {
			r.s.books[id] = prev
			if links != nil {
				r.s.bookAuthors[id] = links
			}
		})
		return nil
	})
}

func (r *BookRepo) LinkAuthors(ctx context.Context, bookID uuid.UUID, authorIDs []uuid.UUID) error {
	return r.s.exec(ctx, func(u *unitOfWork) error {
		if _, ok := r.s.books[bookID]; !ok {
			return fmt.Errorf("book %s: %w", bookID, domain.ErrNotFound)
		}
		for _, aid := range authorIDs {
			if _, ok := r.s.authors[aid]; !ok {
				return fmt.Errorf("author %s: %w", aid, domain.ErrNotFound)
			}
		}
		links, ok := r.s.bookAuthors[bookID]
		if !ok {
			links = make(map[uuid.UUID]struct{})
			r.s.bookAuthors[bookID] = links
			u.onRollback(func() { delete(r.s.bookAuthors, bookID) })
		}
		for _, aid := range authorIDs {
			if _, dup := links[aid]; dup {
				continue
			}
			links[aid] = struct{}{}
			u.onRollback(func() { delete(links, aid) })
		}
		return nil
	})
}

// AuthorsOf returns the authors linked to each of the given books, ordered by last
// then first name.
func (r *BookRepo) AuthorsOf(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID][]domain.Author, error) {
	out := make(map[uuid.UUID][]domain.Author, len(bookIDs))
	err := r.s.exec(ctx, func(*unitOfWork) error {
		for _, bid := range bookIDs {
			for aid := range r.s.bookAuthors[bid] {
				if a, ok := r.s.authors[aid]; ok {
					out[bid] = append(out[bid], a)
				}
			}
			sortAuthors(out[bid])
		}
		return nil
	})
	return out, err
}

// CountLinks returns the number of author links of a book.
func (r *BookRepo) CountLinks(ctx context.Context, bookID uuid.UUID) (int, error) {
	var n int
	err := r.s.exec(ctx, func(*unitOfWork) error {
		n = len(r.s.bookAuthors[bookID])
		return nil
	})
	return n, err
}

// DecrementAvailable takes one copy if any is available.
func (r *BookRepo) DecrementAvailable(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	var out domain.Book
	err := r.s.exec(ctx, func(u *unitOfWork) error {
		b, ok := r.s.books[id]
		if !ok {
			return fmt.Errorf("book %s: %w", id, domain.ErrNotFound)
		}
		if b.AvailableCopies <= 0 {
			return fmt.Errorf("book %s: %w", id, domain.ErrBookUnavailable)
		}
		prev := b
		b.AvailableCopies--
		r.s.books[id] = b
		u.onRollback(func() { r.s.books[id] = prev })
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// IncrementAvailable puts one copy back unless every copy is already available.
func (r *BookRepo) IncrementAvailable(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	var out domain.Book
	err := r.s.exec(ctx, func(u *unitOfWork) error {
		b, ok := r.s.books[id]
		if !ok {
			return fmt.Errorf("book %s: %w", id, domain.ErrNotFound)
		}
		if b.AvailableCopies >= b.TotalCopies {
			return fmt.Errorf("book %s: %w", id, domain.ErrCopiesExceeded)
		}
		prev := b
		b.AvailableCopies++
		r.s.books[id] = b
		u.onRollback(func() { r.s.books[id] = prev })
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AdjustCopies shifts total and available copies by the same delta.
func (r *BookRepo) AdjustCopies(ctx context.Context, id uuid.UUID, delta int) (*domain.Book, error) {
	var out domain.Book
	err := r.s.exec(ctx, func(u *unitOfWork) error {
		b, ok := r.s.books[id]
		if !ok {
			return fmt.Errorf("book %s: %w", id, domain.ErrNotFound)
		}
		if b.TotalCopies+delta < 1 || b.AvailableCopies+delta < 0 {
			return fmt.Errorf("book %s: adjust copies by %d: %w", id, delta, domain.ErrValidation)
		}
		prev := b
		b.TotalCopies += delta
		b.AvailableCopies += delta
		r.s.books[id] = b
		u.onRollback(func() { r.s.books[id] = prev })
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
