package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"booktracker/internal/domain"
)

const bookColumns = `id, isbn, title, genre_id, publication_year, publisher, number_of_pages,
	total_copies, available_copies, edition, cover_image_url, description, date_added`

// BookRepo stores books, their author links and their copy counts.
type BookRepo struct {
	db *sqlx.DB
}

func (r *BookRepo) Create(ctx context.Context, b *domain.Book) error {
	_, err := sqlx.NamedExecContext(ctx, QuerierFromCtx(ctx, r.db), `
		INSERT INTO books (`+bookColumns+`)
		VALUES (:id, :isbn, :title, :genre_id, :publication_year, :publisher, :number_of_pages,
			:total_copies, :available_copies, :edition, :cover_image_url, :description, :date_added)`, b)
	return wrap(err, "insert book %s", b.ISBN)
}

func (r *BookRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	var b domain.Book
	err := QuerierFromCtx(ctx, r.db).GetContext(ctx, &b, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
	if err != nil {
		return nil, wrap(err, "get book %s", id)
	}
	return &b, nil
}

func (r *BookRepo) ExistsByISBN(ctx context.Context, isbn string) (bool, error) {
	var exists bool
	err := QuerierFromCtx(ctx, r.db).GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM books WHERE isbn = $1)`, isbn)
	return exists, wrap(err, "check isbn %s", isbn)
}

func (r *BookRepo) List(ctx context.Context, f domain.BookFilter) ([]domain.Book, error) {
	qb := psql.Select(bookColumns).From("books").OrderBy("title", "id")
	if f.TitleContains != "" {
		qb = qb.Where(sq.ILike{"title": "%" + f.TitleContains + "%"})
	}
	if f.GenreID != nil {
		qb = qb.Where(sq.Eq{"genre_id": f.GenreID.String()})
	}
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		qb = qb.Offset(uint64(f.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list books query: %w", err)
	}

	books := []domain.Book{}
	if err := QuerierFromCtx(ctx, r.db).SelectContext(ctx, &books, query, args...); err != nil {
		return nil, wrap(err, "list books")
	}
	return books, nil
}

// Update overwrites the descriptive fields of a book. Copy counts are owned by the
// ledger operations and are left untouched.
func (r *BookRepo) Update(ctx context.Context, b *domain.Book) error {
	query, args, err := psql.Update("books").SetMap(map[string]any{
		"isbn":             b.ISBN,
		"title":            b.Title,
		"genre_id":         b.GenreID,
		"publication_year": b.PublicationYear,
		"publisher":        b.Publisher,
		"number_of_pages":  b.NumberOfPages,
		"edition":          b.Edition,
		"cover_image_url":  b.CoverImageURL,
		"description":      b.Description,
	}).Where(sq.Eq{"id": b.ID.String()}).ToSql()
	if err != nil {
		return fmt.Errorf("build update book query: %w", err)
	}

	res, err := QuerierFromCtx(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return wrap(err, "update book %s", b.ID)
	}
	return expectOne(res, "book", b.ID)
}

// Delete removes a book; book_authors rows cascade. Borrowing records restrict the
// delete.
func (r *BookRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := QuerierFromCtx(ctx, r.db).ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("book %s: %w", id, domain.ErrHasBorrowingHistory)
		}
		return wrap(err, "delete book %s", id)
	}
	return expectOne(res, "book", id)
}

func (r *BookRepo) LinkAuthors(ctx context.Context, bookID uuid.UUID, authorIDs []uuid.UUID) error {
	if len(authorIDs) == 0 {
		return nil
	}
	_, err := QuerierFromCtx(ctx, r.db).ExecContext(ctx, `
		INSERT INTO book_authors (book_id, author_id)
		SELECT $1, a FROM UNNEST($2::uuid[]) AS a
		ON CONFLICT DO NOTHING`, bookID, pq.Array(uuidStrings(authorIDs)))
	return wrap(err, "link authors of book %s", bookID)
}

type bookAuthorRow struct {
	BookID uuid.UUID `db:"book_id"`
	domain.Author
}

// AuthorsOf returns the authors linked to each of the given books, ordered by last
// then first name.
func (r *BookRepo) AuthorsOf(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID][]domain.Author, error) {
	out := make(map[uuid.UUID][]domain.Author, len(bookIDs))
	if len(bookIDs) == 0 {
		return out, nil
	}

	var rows []bookAuthorRow
	err := QuerierFromCtx(ctx, r.db).SelectContext(ctx, &rows, `
		SELECT ba.book_id, a.id, a.first_name, a.last_name, a.biography, a.date_of_birth, a.created_at
		FROM book_authors ba
		JOIN authors a ON a.id = ba.author_id
		WHERE ba.book_id = ANY($1::uuid[])
		ORDER BY a.last_name, a.first_name, a.id`, pq.Array(uuidStrings(bookIDs)))
	if err != nil {
		return nil, wrap(err, "load book authors")
	}
	for _, row := range rows {
		out[row.BookID] = append(out[row.BookID], row.Author)
	}
	return out, nil
}

// CountLinks returns the number of author links of a book.
func (r *BookRepo) CountLinks(ctx context.Context, bookID uuid.UUID) (int, error) {
	var n int
	err := QuerierFromCtx(ctx, r.db).GetContext(ctx, &n, `SELECT COUNT(*) FROM book_authors WHERE book_id = $1`, bookID)
	return n, wrap(err, "count author links of book %s", bookID)
}

// DecrementAvailable takes one copy if any is available. The guarded update locks the
// row, so concurrent callers serialize on the book.
func (r *BookRepo) DecrementAvailable(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	return r.guardedUpdate(ctx, id, `
		UPDATE books SET available_copies = available_copies - 1
		WHERE id = $1 AND available_copies > 0
		RETURNING `+bookColumns, domain.ErrBookUnavailable, id)
}

// IncrementAvailable puts one copy back unless every copy is already available.
func (r *BookRepo) IncrementAvailable(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	return r.guardedUpdate(ctx, id, `
		UPDATE books SET available_copies = available_copies + 1
		WHERE id = $1 AND available_copies < total_copies
		RETURNING `+bookColumns, domain.ErrCopiesExceeded, id)
}

// AdjustCopies shifts total and available copies by the same delta.
func (r *BookRepo) AdjustCopies(ctx context.Context, id uuid.UUID, delta int) (*domain.Book, error) {
	return r.guardedUpdate(ctx, id, `
		UPDATE books SET total_copies = total_copies + $2, available_copies = available_copies + $2
		WHERE id = $1 AND total_copies + $2 >= 1 AND available_copies + $2 >= 0
		RETURNING `+bookColumns, domain.ErrValidation, id, delta)
}

// guardedUpdate runs a conditional UPDATE ... RETURNING. When the guard matches no
// row it tells a missing book apart from a failed guard.
func (r *BookRepo) guardedUpdate(ctx context.Context, id uuid.UUID, query string, guardErr error, args ...any) (*domain.Book, error) {
	q := QuerierFromCtx(ctx, r.db)

	var b domain.Book
	err := q.GetContext(ctx, &b, query, args...)
	if err == nil {
		return &b, nil
	}
	if !isNoRows(err) {
		return nil, wrap(err, "update copies of book %s", id)
	}

	var exists bool
	if err := q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM books WHERE id = $1)`, id); err != nil {
		return nil, wrap(err, "check book %s", id)
	}
	if !exists {
		return nil, fmt.Errorf("book %s: %w", id, domain.ErrNotFound)
	}
	return nil, fmt.Errorf("book %s: %w", id, guardErr)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
