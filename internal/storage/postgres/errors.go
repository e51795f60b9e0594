package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"booktracker/internal/domain"
)

// mapError translates driver errors into the core error kinds. Errors it does not
// recognise are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch code := string(pqErr.Code); {
		case code == "23505": // unique_violation
			return fmt.Errorf("%w: %s", domain.ErrDuplicateKey, pqErr.Constraint)
		case code == "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", domain.ErrNotFound, pqErr.Detail)
		case code == "23514": // check_violation
			return fmt.Errorf("%w: %s", domain.ErrValidation, pqErr.Constraint)
		case code == "22001", code == "22003": // string_data_right_truncation, numeric_value_out_of_range
			return fmt.Errorf("%w: %s", domain.ErrValidation, pqErr.Message)
		case code == "40001", code == "40P01", code == "57014": // serialization_failure, deadlock_detected, query_canceled
			return fmt.Errorf("%w: %w", domain.ErrTransient, err)
		case strings.HasPrefix(code, "08"): // connection_exception class
			return fmt.Errorf("%w: %w", domain.ErrTransient, err)
		}
	}

	return err
}

// isForeignKeyViolation reports whether err is a foreign key violation, which a
// DELETE meets when borrowing records still reference the row.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), mapError(err))
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func expectOne(res sql.Result, entity string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
