package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"booktracker/internal/domain"
)

const patronColumns = `id, library_card_id, first_name, last_name, email, phone_number, address,
	date_of_birth, registration_date, membership_status`

// PatronRepo stores patrons.
type PatronRepo struct {
	db *sqlx.DB
}

func (r *PatronRepo) Create(ctx context.Context, p *domain.Patron) error {
	_, err := sqlx.NamedExecContext(ctx, QuerierFromCtx(ctx, r.db), `
		INSERT INTO patrons (`+patronColumns+`)
		VALUES (:id, :library_card_id, :first_name, :last_name, :email, :phone_number, :address,
			:date_of_birth, :registration_date, :membership_status)`, p)
	return wrap(err, "insert patron %s", p.LibraryCardID)
}

func (r *PatronRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Patron, error) {
	var p domain.Patron
	err := QuerierFromCtx(ctx, r.db).GetContext(ctx, &p, `SELECT `+patronColumns+` FROM patrons WHERE id = $1`, id)
	if err != nil {
		return nil, wrap(err, "get patron %s", id)
	}
	return &p, nil
}

func (r *PatronRepo) ExistsByCardID(ctx context.Context, cardID string) (bool, error) {
	var exists bool
	err := QuerierFromCtx(ctx, r.db).GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM patrons WHERE library_card_id = $1)`, cardID)
	return exists, wrap(err, "check library card %s", cardID)
}

// ExistsByEmail matches addresses case-insensitively, like the unique index.
func (r *PatronRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := QuerierFromCtx(ctx, r.db).GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM patrons WHERE LOWER(email) = LOWER($1))`, email)
	return exists, wrap(err, "check email %s", email)
}

func (r *PatronRepo) List(ctx context.Context, limit, offset int) ([]domain.Patron, error) {
	qb := psql.Select(patronColumns).From("patrons").OrderBy("library_card_id")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	if offset > 0 {
		qb = qb.Offset(uint64(offset))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list patrons query: %w", err)
	}

	patrons := []domain.Patron{}
	if err := QuerierFromCtx(ctx, r.db).SelectContext(ctx, &patrons, query, args...); err != nil {
		return nil, wrap(err, "list patrons")
	}
	return patrons, nil
}

func (r *PatronRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MembershipStatus) (*domain.Patron, error) {
	var p domain.Patron
	err := QuerierFromCtx(ctx, r.db).GetContext(ctx, &p, `
		UPDATE patrons SET membership_status = $2 WHERE id = $1
		RETURNING `+patronColumns, id, status)
	if err != nil {
		return nil, wrap(err, "update status of patron %s", id)
	}
	return &p, nil
}

// Delete removes a patron. Borrowing records restrict the delete.
func (r *PatronRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := QuerierFromCtx(ctx, r.db).ExecContext(ctx, `DELETE FROM patrons WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("patron %s: %w", id, domain.ErrHasBorrowingHistory)
		}
		return wrap(err, "delete patron %s", id)
	}
	return expectOne(res, "patron", id)
}
