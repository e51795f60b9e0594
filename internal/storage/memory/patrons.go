package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"booktracker/internal/domain"
)

// PatronRepo stores patrons.
type PatronRepo struct {
	s *Store
}

func (r *PatronRepo) Create(ctx context.Context, p *domain.Patron) error {
	return r.s.exec(ctx, func(u *unitOfWork) error {
		for _, existing := range r.s.patrons {
			if existing.LibraryCardID == p.LibraryCardID {
				return fmt.Errorf("patron card %s: %w", p.LibraryCardID, domain.ErrDuplicateKey)
			}
			if strings.EqualFold(existing.Email, p.Email) {
				return fmt.Errorf("patron email %s: %w", p.Email, domain.ErrDuplicateKey)
			}
		}
		r.s.patrons[p.ID] = *p
		id := p.ID
		u.onRollback(func() { delete(r.s.patrons, id) })
		return nil
	})
}

func (r *PatronRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Patron, error) {
	var out domain.Patron
	err := r.s.exec(ctx, func(*unitOfWork) error {
		p, ok := r.s.patrons[id]
		if !ok {
			return fmt.Errorf("patron %s: %w", id, domain.ErrNotFound)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *PatronRepo) ExistsByCardID(ctx context.Context, cardID string) (bool, error) {
	return r.exists(ctx, func(p domain.Patron) bool { return p.LibraryCardID == cardID })
}

func (r *PatronRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, func(p domain.Patron) bool { return strings.EqualFold(p.Email, email) })
}

func (r *PatronRepo) exists(ctx context.Context, match func(domain.Patron) bool) (bool, error) {
	var found bool
	err := r.s.exec(ctx, func(*unitOfWork) error {
		for _, p := range r.s.patrons {
			if match(p) {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

func (r *PatronRepo) List(ctx context.Context, limit, offset int) ([]domain.Patron, error) {
	var out []domain.Patron
	err := r.s.exec(ctx, func(*unitOfWork) error {
		for _, p := range r.s.patrons {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LibraryCardID < out[j].LibraryCardID })
	return paginate(out, limit, offset), nil
}

func (r *PatronRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MembershipStatus) (*domain.Patron, error) {
	var out domain.Patron
	err := r.s.exec(ctx, func(u *unitOfWork) error {
		p, ok := r.s.patrons[id]
		if !ok {
			return fmt.Errorf("patron %s: %w", id, domain.ErrNotFound)
		}
		prev := p
		p.MembershipStatus = status
		r.s.patrons[id] = p
		u.onRollback(func() { r.s.patrons[id] = prev })
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a patron. Borrowing records restrict the delete.
func (r *PatronRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.s.exec(ctx, func(u *unitOfWork) error {
		prev, ok := r.s.patrons[id]
		if !ok {
			return fmt.Errorf("patron %s: %w", id, domain.ErrNotFound)
		}
		for _, rec := range r.s.records {
			if rec.PatronID == id {
				return fmt.Errorf("patron %s: %w", id, domain.ErrHasBorrowingHistory)
			}
		}
		delete(r.s.patrons, id)
		u.onRollback(func() { r.s.patrons[id] = prev })
		return nil
	})
}
