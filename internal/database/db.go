package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/scamnemesis/authcore/internal/models"
)

// SQLSTATE codes the repositories translate into domain errors
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeInvalidTextRep      = "22P02"
)

// MapPostgresError translates driver errors into models errors. Context
// cancellation and unknown errors pass through unchanged.
func MapPostgresError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, pgx.ErrNoRows):
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		return models.ErrConflict
	case codeInvalidTextRep:
		// malformed uuid in a lookup means the row cannot exist
		return models.ErrNotFound
	case codeForeignKeyViolation, codeNotNullViolation, codeCheckViolation:
		return models.ErrBadRequest
	}
	return err
}
