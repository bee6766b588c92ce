package postgres

import (
	"errors"
	"fmt"

	"folio/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// IsPgDuplicateError checks if error is a unique constraint violation
func IsPgDuplicateError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 = unique_violation
		return pgErr.Code == "23505"
	}
	return false
}

// IsPgNoRowsError checks if error is a "no rows" error
func IsPgNoRowsError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsPgForeignKeyError checks if error is a foreign key violation
func IsPgForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23503 = foreign_key_violation
		return pgErr.Code == "23503"
	}
	return false
}

// IsPgInvalidTextError checks if error is a malformed literal (e.g. a non-UUID id)
func IsPgInvalidTextError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 22P02 = invalid_text_representation
		return pgErr.Code == "22P02"
	}
	return false
}

// translateError maps driver errors onto the domain taxonomy
func translateError(err error, resourceType, id string) error {
	switch {
	case err == nil:
		return nil
	case IsPgNoRowsError(err), IsPgInvalidTextError(err):
		return &domain.NotFoundError{Message: fmt.Sprintf("%s not found: %s", resourceType, id)}
	case IsPgDuplicateError(err):
		return domain.NewConflict(resourceType, id, fmt.Sprintf("%s already exists", resourceType))
	case IsPgForeignKeyError(err):
		return &domain.NotFoundError{Message: fmt.Sprintf("%s references a missing resource", resourceType)}
	default:
		return fmt.Errorf("%s %s: %w", resourceType, id, err)
	}
}
