package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"booktracker/internal/domain"
)

// GenreRepo stores genres.
type GenreRepo struct {
	s *Store
}

func (r *GenreRepo) Create(ctx context.Context, g *domain.Genre) error {
	return r.s.exec(ctx, func(u *unitOfWork) error {
		for _, existing := range r.s.genres {
			if strings.EqualFold(existing.Name, g.Name) {
				return fmt.Errorf("genre name %q: %w", g.Name, domain.ErrDuplicateKey)
			}
		}
		r.s.genres[g.ID] = *g
		id := g.ID
		u.onRollback(func() { delete(r.s.genres, id) })
		return nil
	})
}

func (r *GenreRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Genre, error) {
	var out domain.Genre
	err := r.s.exec(ctx, func(*unitOfWork) error {
		g, ok := r.s.genres[id]
		if !ok {
			return fmt.Errorf("genre %s: %w", id, domain.ErrNotFound)
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *GenreRepo) ExistsByName(ctx context.Context, name string) (bool, error) {
	var found bool
	err := r.s.exec(ctx, func(*unitOfWork) error {
		for _, g := range r.s.genres {
			if strings.EqualFold(g.Name, name) {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

func (r *GenreRepo) List(ctx context.Context) ([]domain.Genre, error) {
	var out []domain.Genre
	err := r.s.exec(ctx, func(*unitOfWork) error {
		for _, g := range r.s.genres {
			out = append(out, g)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// Delete removes a genre and clears the genre reference of its books.
func (r *GenreRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.s.exec(ctx, func(u *unitOfWork) error {
		prev, ok := r.s.genres[id]
		if !ok {
			return fmt.Errorf("genre %s: %w", id, domain.ErrNotFound)
		}
		delete(r.s.genres, id)
		u.onRollback(func() { r.s.genres[id] = prev })
		for bookID, b := range r.s.books {
			if b.GenreID == nil || *b.GenreID != id {
				continue
			}
			before := b
			b.GenreID = nil
			r.s.books[bookID] = b
			u.onRollback(func() { r.s.books[before.ID] = before })
		}
		return nil
	})
}
