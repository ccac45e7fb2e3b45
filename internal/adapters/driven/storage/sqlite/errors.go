package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Machine-readable error codes attached to every error leaving the store.
const (
	codeInvalidInput = "store.semantic.invalid_input"
	codeNotFound     = "store.semantic.not_found"
	codeCorrupt      = "store.semantic.corrupt"
	codeDatabase     = "store.database.failure"
	codeTransaction  = "store.transaction.failure"
)

// wrapSentinel joins a domain sentinel with the underlying cause so both
// survive errors.Is.
func wrapSentinel(sentinel, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}

func invalidf(fields []any, format string, args ...any) error {
	return oops.Code(codeInvalidInput).In("sqlite").With(fields...).Wrapf(domain.ErrValidation, format, args...)
}

func notFoundf(fields []any, format string, args ...any) error {
	return oops.Code(codeNotFound).In("sqlite").With(fields...).Wrapf(domain.ErrNotFound, format, args...)
}

func corruptf(cause error, fields []any, format string, args ...any) error {
	return oops.Code(codeCorrupt).In("sqlite").With(fields...).
		Wrapf(wrapSentinel(domain.ErrConsistency, cause), format, args...)
}

// dbErr classifies a driver error. Constraint violations become
// domain.ErrValidation and sql.ErrNoRows becomes domain.ErrNotFound.
func dbErr(err error, fields []any, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundf(fields, "%s", op)
	}
	if isConstraint(err) {
		return oops.Code(codeInvalidInput).In("sqlite").With(fields...).
			Wrapf(wrapSentinel(domain.ErrValidation, err), "%s", op)
	}
	return oops.Code(codeDatabase).In("sqlite").With(fields...).Wrapf(err, "%s", op)
}

func isConstraint(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "CHECK constraint")
}
