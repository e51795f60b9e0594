package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"booktracker/internal/domain"
)

// AuthorRepo stores authors.
type AuthorRepo struct {
	s *Store
}

func (r *AuthorRepo) Create(ctx context.Context, a *domain.Author) error {
	return r.s.exec(ctx, func(u *unitOfWork) error {
		if _, ok := r.s.authors[a.ID]; ok {
			return fmt.Errorf("author %s: %w", a.ID, domain.ErrDuplicateKey)
		}
		r.s.authors[a.ID] = *a
		id := a.ID
		u.onRollback(func() { delete(r.s.authors, id) })
		return nil
	})
}

func (r *AuthorRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Author, error) {
	var out domain.Author
	err := r.s.exec(ctx, func(*unitOfWork) error {
		a, ok := r.s.authors[id]
		if !ok {
			return fmt.Errorf("author %s: %w", id, domain.ErrNotFound)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ExistingIDs returns the subset of ids that name a stored author.
func (r *AuthorRepo) ExistingIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	err := r.s.exec(ctx, func(*unitOfWork) error {
		for _, id := range ids {
			if _, ok := r.s.authors[id]; ok {
				out = append(out, id)
			}
		}
		return nil
	})
	return out, err
}

func (r *AuthorRepo) List(ctx context.Context, limit, offset int) ([]domain.Author, error) {
	var out []domain.Author
	err := r.s.exec(ctx, func(*unitOfWork) error {
		for _, a := range r.s.authors {
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortAuthors(out)
	return paginate(out, limit, offset), nil
}

// Delete removes an author and cascades its book links.
func (r *AuthorRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.s.exec(ctx, func(u *unitOfWork) error {
		prev, ok := r.s.authors[id]
		if !ok {
			return fmt.Errorf("author %s: %w", id, domain.ErrNotFound)
		}
		delete(r.s.authors, id)
		u.onRollback(func() { r.s.authors[id] = prev })
		for _, links := range r.s.bookAuthors {
			if _, linked := links[id]; !linked {
				continue
			}
			delete(links, id)
			u.onRollback(func() { links[id] = struct{}{} })
		}
		return nil
	})
}

func sortAuthors(authors []domain.Author) {
	sort.Slice(authors, func(i, j int) bool {
		if authors[i].LastName != authors[j].LastName {
			return authors[i].LastName < authors[j].LastName
		}
		if authors[i].FirstName != authors[j].FirstName {
			return authors[i].FirstName < authors[j].FirstName
		}
		return authors[i].ID.String() < authors[j].ID.String()
	})
}
