package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"booktracker/internal/domain"
)

const borrowingColumns = `id, book_id, patron_id, checkout_date, due_date, return_date, status,
	fine_cents, fine_settled_at, notes, version`

// BorrowingRepo stores borrowing records. Records are never deleted.
type BorrowingRepo struct {
	db *sqlx.DB
}

func (r *BorrowingRepo) Create(ctx context.Context, rec *domain.BorrowingRecord) error {
	_, err := sqlx.NamedExecContext(ctx, QuerierFromCtx(ctx, r.db), `
		INSERT INTO borrowing_records (`+borrowingColumns+`)
		VALUES (:id, :book_id, :patron_id, :checkout_date, :due_date, :return_date, :status,
			:fine_cents, :fine_settled_at, :notes, :version)`, rec)
	return wrap(err, "insert borrowing record %s", rec.ID)
}

func (r *BorrowingRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BorrowingRecord, error) {
	var rec domain.BorrowingRecord
	err := QuerierFromCtx(ctx, r.db).GetContext(ctx, &rec,
		`SELECT `+borrowingColumns+` FROM borrowing_records WHERE id = $1`, id)
	if err != nil {
		return nil, wrap(err, "get borrowing record %s", id)
	}
	return &rec, nil
}

// Update stores rec if the stored version still equals expectedVersion. A stale
// version on a closed record is reported as ErrAlreadyReturned. Book and patron are
// never rewritten.
func (r *BorrowingRepo) Update(ctx context.Context, rec *domain.BorrowingRecord, expectedVersion int) error {
	q := QuerierFromCtx(ctx, r.db)
	res, err := q.ExecContext(ctx, `
		UPDATE borrowing_records
		SET return_date = $3, status = $4, fine_cents = $5, fine_settled_at = $6, notes = $7, version = $8
		WHERE id = $1 AND version = $2`,
		rec.ID, expectedVersion, rec.ReturnDate, rec.Status, rec.Fine, rec.FineSettledAt, rec.Notes, rec.Version)
	if err != nil {
		return wrap(err, "update borrowing record %s", rec.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 1 {
		return nil
	}

	current, err := r.GetByID(ctx, rec.ID)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return fmt.Errorf("borrowing record %s: %w", rec.ID, domain.ErrAlreadyReturned)
	}
	return fmt.Errorf("borrowing record %s: version %d, expected %d: %w",
		rec.ID, current.Version, expectedVersion, domain.ErrTransient)
}

func (r *BorrowingRepo) CountByBook(ctx context.Context, bookID uuid.UUID) (int, error) {
	var n int
	err := QuerierFromCtx(ctx, r.db).GetContext(ctx, &n,
		`SELECT COUNT(*) FROM borrowing_records WHERE book_id = $1`, bookID)
	return n, wrap(err, "count records of book %s", bookID)
}

func (r *BorrowingRepo) CountByPatron(ctx context.Context, patronID uuid.UUID) (int, error) {
	var n int
	err := QuerierFromCtx(ctx, r.db).GetContext(ctx, &n,
		`SELECT COUNT(*) FROM borrowing_records WHERE patron_id = $1`, patronID)
	return n, wrap(err, "count records of patron %s", patronID)
}

// ListByPatron returns the records of a patron, newest checkout first.
func (r *BorrowingRepo) ListByPatron(ctx context.Context, patronID uuid.UUID) ([]domain.BorrowingRecord, error) {
	return r.list(ctx, psql.Select(borrowingColumns).From("borrowing_records").
		Where("patron_id = ?", patronID.String()))
}

// ListOpenDueBefore returns Borrowed records whose due date is before t.
func (r *BorrowingRepo) ListOpenDueBefore(ctx context.Context, t time.Time) ([]domain.BorrowingRecord, error) {
	return r.list(ctx, psql.Select(borrowingColumns).From("borrowing_records").
		Where("status = ?", string(domain.StatusBorrowed)).
		Where("due_date < ?", t))
}

func (r *BorrowingRepo) list(ctx context.Context, qb sq.SelectBuilder) ([]domain.BorrowingRecord, error) {
	query, args, err := qb.OrderBy("checkout_date DESC", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list records query: %w", err)
	}
	records := []domain.BorrowingRecord{}
	if err := QuerierFromCtx(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		return nil, wrap(err, "list borrowing records")
	}
	return records, nil
}
