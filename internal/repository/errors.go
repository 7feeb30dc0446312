package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Common repository error types.
var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrValidation is returned when input to create/update is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrTableNotFound is returned when a name lookup misses a table.
	ErrTableNotFound = errors.New("table not found")

	// ErrColumnNotFound is returned when a name lookup misses a column.
	ErrColumnNotFound = errors.New("column not found")

	// ErrRelationshipNotFound is returned when an unknown relationship name
	// is passed to a relationship-loading call.
	ErrRelationshipNotFound = errors.New("relationship not found")

	// ErrFinderNotFound is returned when an unknown finder name is invoked.
	ErrFinderNotFound = errors.New("finder not found")

	// ErrUniqueViolation is returned when a unique constraint is violated.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated.
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated.
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated.
	ErrNotNullViolation = errors.New("not null constraint violation")
)

// ValidationError carries per-column validation failures for create/update.
type ValidationError struct {
	Table  string
	Errors []ColumnError
}

// ColumnError is one validation failure on a specific column.
type ColumnError struct {
	Column  string
	Message string
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	switch len(ve.Errors) {
	case 0:
		return fmt.Sprintf("validation failed for %s", ve.Table)
	case 1:
		return fmt.Sprintf("validation failed for %s: %s: %s", ve.Table, ve.Errors[0].Column, ve.Errors[0].Message)
	default:
		return fmt.Sprintf("validation failed for %s: %d errors", ve.Table, len(ve.Errors))
	}
}

// Unwrap allows errors.Is(err, ErrValidation).
func (ve *ValidationError) Unwrap() error { return ErrValidation }

// lookupMissError formats a name-lookup miss so the caller can self-correct:
// the message always enumerates the valid alternatives.
func lookupMissError(sentinel error, kind, name string, valid []string) error {
	sorted := append([]string(nil), valid...)
	sort.Strings(sorted)
	return fmt.Errorf("%w: %s %q (valid %ss: %s)", sentinel, kind, name, kind, strings.Join(sorted, ", "))
}

// ConvertDBError maps driver-specific errors to repository errors. The
// original cause stays attached through %w so callers can still inspect it.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.Detail)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pgErr.Detail)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s", ErrCheckViolation, pgErr.Detail)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: column %s", ErrNotNullViolation, pgErr.ColumnName)
		}
	}

	return err
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation returns true if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUniqueViolation returns true if the error is ErrUniqueViolation.
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}
