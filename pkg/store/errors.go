package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"libtrack/pkg/apperr"
)

// Postgres SQLSTATE codes the store reacts to.
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgConnectionClass      = "08"
	pgInsufficientResource = "53"
	pgOperatorIntervention = "57"
	pgDataExceptionClass   = "22"
	pgInvalidTextRepr      = "22P02"
)

// classify turns a driver error into an *apperr.Error. entity names the
// record being written for CONFLICT errors.
func classify(err error, entity string) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return apperr.Conflict(entity, err)
		case strings.HasPrefix(pgErr.Code, pgDataExceptionClass):
			return apperr.Wrap(apperr.KindValidation, err, "invalid %s value", strings.ToLower(entity))
		case pgErr.Code == pgCheckViolation:
			return apperr.Wrap(apperr.KindInvariantViolation, err, "constraint %s violated", pgErr.ConstraintName)
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected,
			strings.HasPrefix(pgErr.Code, pgConnectionClass),
			strings.HasPrefix(pgErr.Code, pgInsufficientResource),
			strings.HasPrefix(pgErr.Code, pgOperatorIntervention):
			return apperr.Unavailable(err)
		}
	}

	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict(entity, err)
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return apperr.Wrap(apperr.KindInvariantViolation, err, "%s constraint violated", strings.ToLower(entity))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Unavailable(err)
	case isSQLiteUniqueViolation(err):
		return apperr.Conflict(entity, err)
	}

	// Anything else came from the driver or the network; callers may retry.
	return apperr.Unavailable(err)
}

// notFound maps gorm.ErrRecordNotFound, and ids postgres cannot parse as
// uuids, to a NOT_FOUND error and classifies everything else.
func notFound(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepr {
		return apperr.NotFound(entity, id)
	}
	return classify(err, entity)
}

// The sqlite translator only covers some constraint errors, so fall back to
// the message text.
func isSQLiteUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
