package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"booktracker/internal/domain"
)

// BorrowingRepo stores borrowing records. Records are never deleted.
type BorrowingRepo struct {
	s *Store
}

func (r *BorrowingRepo) Create(ctx context.Context, rec *domain.BorrowingRecord) error {
	return r.s.exec(ctx, func(u *unitOfWork) error {
		if _, ok := r.s.records[rec.ID]; ok {
			return fmt.Errorf("borrowing record %s: %w", rec.ID, domain.ErrDuplicateKey)
		}
		if _, ok := r.s.books[rec.BookID]; !ok {
			return fmt.Errorf("book %s: %w", rec.BookID, domain.ErrNotFound)
		}
		if _, ok := r.s.patrons[rec.PatronID]; !ok {
			return fmt.Errorf("patron %s: %w", rec.PatronID, domain.ErrNotFound)
		}
		r.s.records[rec.ID] = *rec
		id := rec.ID
		u.onRollback(func() { delete(r.s.records, id) })
		return nil
	})
}

func (r *BorrowingRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BorrowingRecord, error) {
	var out domain.BorrowingRecord
	err := r.s.exec(ctx, func(*unitOfWork) error {
		rec, ok := r.s.records[id]
		if !ok {
			return fmt.Errorf("borrowing record %s: %w", id, domain.ErrNotFound)
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Update stores rec if the stored version still equals expectedVersion. A stale
// version on a closed record is reported as ErrAlreadyReturned.
func (r *BorrowingRepo) Update(ctx context.Context, rec *domain.BorrowingRecord, expectedVersion int) error {
	return r.s.exec(ctx, func(u *unitOfWork) error {
		prev, ok := r.s.records[rec.ID]
		if !ok {
			return fmt.Errorf("borrowing record %s: %w", rec.ID, domain.ErrNotFound)
		}
		if prev.Version != expectedVersion {
			if prev.Status.Terminal() {
				return fmt.Errorf("borrowing record %s: %w", rec.ID, domain.ErrAlreadyReturned)
			}
			return fmt.Errorf("borrowing record %s: version %d, expected %d: %w",
				rec.ID, prev.Version, expectedVersion, domain.ErrTransient)
		}
		next := *rec
		next.BookID = prev.BookID
		next.PatronID = prev.PatronID
		r.s.records[rec.ID] = next
		u.onRollback(func() { r.s.records[prev.ID] = prev })
		return nil
	})
}

func (r *BorrowingRepo) CountByBook(ctx context.Context, bookID uuid.UUID) (int, error) {
	return r.count(ctx, func(rec domain.BorrowingRecord) bool { return rec.BookID == bookID })
}

func (r *BorrowingRepo) CountByPatron(ctx context.Context, patronID uuid.UUID) (int, error) {
	return r.count(ctx, func(rec domain.BorrowingRecord) bool { return rec.PatronID == patronID })
}

func (r *BorrowingRepo) count(ctx context.Context, match func(domain.BorrowingRecord) bool) (int, error) {
	var n int
	err := r.s.exec(ctx, func(*unitOfWork) error {
		for _, rec := range r.s.records {
			if match(rec) {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ListByPatron returns the records of a patron, newest checkout first.
func (r *BorrowingRepo) ListByPatron(ctx context.Context, patronID uuid.UUID) ([]domain.BorrowingRecord, error) {
	return r.list(ctx, func(rec domain.BorrowingRecord) bool { return rec.PatronID == patronID })
}

// ListOpenDueBefore returns Borrowed records whose due date is before t.
func (r *BorrowingRepo) ListOpenDueBefore(ctx context.Context, t time.Time) ([]domain.BorrowingRecord, error) {
	return r.list(ctx, func(rec domain.BorrowingRecord) bool {
		return rec.Status == domain.StatusBorrowed && rec.DueDate.Before(t)
	})
}

func (r *BorrowingRepo) list(ctx context.Context, match func(domain.BorrowingRecord) bool) ([]domain.BorrowingRecord, error) {
	var out []domain.BorrowingRecord
	err := r.s.exec(ctx, func(*unitOfWork) error {
		for _, rec := range r.s.records {
			if match(rec) {
				out = append(out, rec)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CheckoutDate.Equal(out[j].CheckoutDate) {
			return out[i].CheckoutDate.After(out[j].CheckoutDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, err
}
