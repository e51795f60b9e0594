package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"booktracker/internal/domain"
)

// GenreRepo stores genres.
type GenreRepo struct {
	db *sqlx.DB
}

func (r *GenreRepo) Create(ctx context.Context, g *domain.Genre) error {
	_, err := sqlx.NamedExecContext(ctx, QuerierFromCtx(ctx, r.db), `
		INSERT INTO genres (id, name, description, created_at)
		VALUES (:id, :name, :description, :created_at)`, g)
	return wrap(err, "insert genre %s", g.Name)
}

func (r *GenreRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Genre, error) {
	var g domain.Genre
	err := QuerierFromCtx(ctx, r.db).GetContext(ctx, &g,
		`SELECT id, name, description, created_at FROM genres WHERE id = $1`, id)
	if err != nil {
		return nil, wrap(err, "get genre %s", id)
	}
	return &g, nil
}

// ExistsByName matches names case-insensitively, like the unique index.
func (r *GenreRepo) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := QuerierFromCtx(ctx, r.db).GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM genres WHERE LOWER(name) = LOWER($1))`, name)
	return exists, wrap(err, "check genre %s", name)
}

func (r *GenreRepo) List(ctx context.Context) ([]domain.Genre, error) {
	genres := []domain.Genre{}
	err := QuerierFromCtx(ctx, r.db).SelectContext(ctx, &genres,
		`SELECT id, name, description, created_at FROM genres ORDER BY name`)
	if err != nil {
		return nil, wrap(err, "list genres")
	}
	return genres, nil
}

// Delete removes a genre; the foreign key clears the genre reference of its books.
func (r *GenreRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := QuerierFromCtx(ctx, r.db).ExecContext(ctx, `DELETE FROM genres WHERE id = $1`, id)
	if err != nil {
		return wrap(err, "delete genre %s", id)
	}
	return expectOne(res, "genre", id)
}
