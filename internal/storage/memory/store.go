// Package memory is an in-process implementation of the storage contracts. A unit of
// work holds the store mutex for its whole duration and keeps an undo log, so a
// failing RunInTx leaves no trace. It backs the "memory" database driver and the
// package tests of the services.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"booktracker/internal/domain"
)

// Store holds every table of the service.
type Store struct {
	mu sync.Mutex

	books       map[uuid.UUID]domain.Book
	authors     map[uuid.UUID]domain.Author
	genres      map[uuid.UUID]domain.Genre
	bookAuthors map[uuid.UUID]map[uuid.UUID]struct{} // book id -> author ids
	patrons     map[uuid.UUID]domain.Patron
	records     map[uuid.UUID]domain.BorrowingRecord
	events      map[uuid.UUID][]domain.LendingEvent
	eventSeq    int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		books:       make(map[uuid.UUID]domain.Book),
		authors:     make(map[uuid.UUID]domain.Author),
		genres:      make(map[uuid.UUID]domain.Genre),
		bookAuthors: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		patrons:     make(map[uuid.UUID]domain.Patron),
		records:     make(map[uuid.UUID]domain.BorrowingRecord),
		events:      make(map[uuid.UUID][]domain.LendingEvent),
	}
}

// Books returns the book repository.
func (s *Store) Books() *BookRepo { return &BookRepo{s: s} }

// Authors returns the author repository.
func (s *Store) Authors() *AuthorRepo { return &AuthorRepo{s: s} }

// Genres returns the genre repository.
func (s *Store) Genres() *GenreRepo { return &GenreRepo{s: s} }

// Patrons returns the patron repository.
func (s *Store) Patrons() *PatronRepo { return &PatronRepo{s: s} }

// Borrowings returns the borrowing record repository.
func (s *Store) Borrowings() *BorrowingRepo { return &BorrowingRepo{s: s} }

// Events returns the lending event log.
func (s *Store) Events() *EventLog { return &EventLog{s: s} }

type txCtxKey struct{}

type unitOfWork struct {
	owner *Store
	undo  []func()
}

func (u *unitOfWork) onRollback(fn func()) {
	u.undo = append(u.undo, fn)
}

func (u *unitOfWork) rollback() {
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
	u.undo = nil
}

func (s *Store) current(ctx context.Context) (*unitOfWork, bool) {
	u, ok := ctx.Value(txCtxKey{}).(*unitOfWork)
	if !ok || u.owner != s {
		return nil, false
	}
	return u, true
}

// RunInTx executes fn as one unit of work. On error or panic every mutation made
// through a context derived from the one passed to fn is undone. A nested call joins
// the outer unit of work.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := s.current(ctx); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := &unitOfWork{owner: s}
	defer func() {
		if r := recover(); r != nil {
			u.rollback()
			panic(r)
		}
	}()

	if err := fn(context.WithValue(ctx, txCtxKey{}, u)); err != nil {
		u.rollback()
		return err
	}
	return nil
}

// exec runs a single repository operation, joining the caller's unit of work when
// there is one.
func (s *Store) exec(ctx context.Context, fn func(u *unitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", domain.ErrTransient, err)
		}
		return err
	}
	if u, ok := s.current(ctx); ok {
		return fn(u)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := &unitOfWork{owner: s}
	if err := fn(u); err != nil {
		u.rollback()
		return err
	}
	return nil
}

// Consistency counts books whose copy counts break 0 <= available <= total.
func (s *Store) Consistency(ctx context.Context) (int, error) {
	var broken int
	err := s.exec(ctx, func(*unitOfWork) error {
		for _, b := range s.books {
			if !b.CopiesConsistent() {
				broken++
			}
		}
		return nil
	})
	return broken, err
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
