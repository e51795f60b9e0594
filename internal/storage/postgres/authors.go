package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"booktracker/internal/domain"
)

const authorColumns = `id, first_name, last_name, biography, date_of_birth, created_at`

// AuthorRepo stores authors.
type AuthorRepo struct {
	db *sqlx.DB
}

func (r *AuthorRepo) Create(ctx context.Context, a *domain.Author) error {
	_, err := sqlx.NamedExecContext(ctx, QuerierFromCtx(ctx, r.db), `
		INSERT INTO authors (`+authorColumns+`)
		VALUES (:id, :first_name, :last_name, :biography, :date_of_birth, :created_at)`, a)
	return wrap(err, "insert author %s", a.ID)
}

func (r *AuthorRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Author, error) {
	var a domain.Author
	err := QuerierFromCtx(ctx, r.db).GetContext(ctx, &a, `SELECT `+authorColumns+` FROM authors WHERE id = $1`, id)
	if err != nil {
		return nil, wrap(err, "get author %s", id)
	}
	return &a, nil
}

// ExistingIDs returns the subset of ids that name a stored author.
func (r *AuthorRepo) ExistingIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []uuid.UUID
	err := QuerierFromCtx(ctx, r.db).SelectContext(ctx, &found,
		`SELECT id FROM authors WHERE id = ANY($1::uuid[])`, pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, wrap(err, "look up authors")
	}
	return found, nil
}

func (r *AuthorRepo) List(ctx context.Context, limit, offset int) ([]domain.Author, error) {
	qb := psql.Select(authorColumns).From("authors").OrderBy("last_name", "first_name", "id")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	if offset > 0 {
		qb = qb.Offset(uint64(offset))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list authors query: %w", err)
	}

	authors := []domain.Author{}
	if err := QuerierFromCtx(ctx, r.db).SelectContext(ctx, &authors, query, args...); err != nil {
		return nil, wrap(err, "list authors")
	}
	return authors, nil
}

// Delete removes an author; book_authors rows cascade.
func (r *AuthorRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := QuerierFromCtx(ctx, r.db).ExecContext(ctx, `DELETE FROM authors WHERE id = $1`, id)
	if err != nil {
		return wrap(err, "delete author %s", id)
	}
	return expectOne(res, "author", id)
}
