package dialect

import (
	"errors"
	"strings"
)

// Driver-agnostic constraint classification. The structural interfaces
// cover drivers that expose SQLSTATE or vendor codes without importing
// them here; string matching is the last resort. Dialect implementations
// check their own driver's error type first and fall back to these.

// errorCoder is an interface for database errors that provide error codes.
type errorCoder interface {
	Code() string
}

// errorNumberer is an interface for database errors that provide numeric error codes.
type errorNumberer interface {
	Number() uint16
}

// sqlStateError is an interface for errors that provide SQLSTATE codes.
// Implemented by: pgx and some MySQL drivers.
type sqlStateError interface {
	SQLState() string
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlColumnCannotBeNull     = 1048
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// IsUniqueViolation reports if the error resulted from a DB uniqueness
// constraint violation, e.g. duplicate value in unique index.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if hasCode(err, pgUniqueViolation) {
		return true
	}
	if hasNumber(err, mysqlDuplicateEntry) {
		return true
	}
	return containsAny(err.Error(),
		"Error 1062",                 // MySQL (string fallback)
		"violates unique constraint", // Postgres (string fallback)
		"UNIQUE constraint failed",   // SQLite
	)
}

// IsForeignKeyViolation reports if the error resulted from a database
// foreign-key constraint violation, e.g. parent row does not exist.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if hasCode(err, pgForeignKeyViolation) {
		return true
	}
	if hasNumber(err, mysqlForeignKeyParent) || hasNumber(err, mysqlForeignKeyChild) {
		return true
	}
	return containsAny(err.Error(),
		"Error 1451",                      // MySQL (Cannot delete or update a parent row)
		"Error 1452",                      // MySQL (Cannot add or update a child row)
		"violates foreign key constraint", // Postgres
		"FOREIGN KEY constraint failed",   // SQLite
	)
}

// IsCheckViolation reports if the error resulted from a database check
// constraint violation, e.g. a value does not satisfy a check condition.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if hasCode(err, pgCheckViolation) {
		return true
	}
	if hasNumber(err, mysqlCheckConstraintViolate) {
		return true
	}
	return containsAny(err.Error(),
		"Error 3819",                // MySQL
		"violates check constraint", // Postgres
		"CHECK constraint failed",   // SQLite
	)
}

// IsNotNullViolation reports if the error resulted from writing NULL into
// a NOT NULL column.
func IsNotNullViolation(err error) bool {
	if err == nil {
		return false
	}
	if hasCode(err, pgNotNullViolation) {
		return true
	}
	if hasNumber(err, mysqlColumnCannotBeNull) {
		return true
	}
	return containsAny(err.Error(),
		"Error 1048",                   // MySQL
		"violates not-null constraint", // Postgres
		"NOT NULL constraint failed",   // SQLite
	)
}

// IsConstraintViolation reports if the error resulted from any database
// constraint violation.
func IsConstraintViolation(err error) bool {
	return IsUniqueViolation(err) ||
		IsForeignKeyViolation(err) ||
		IsCheckViolation(err) ||
		IsNotNullViolation(err)
}

func hasCode(err error, code string) bool {
	if e, ok := asError[sqlStateError](err); ok && e.SQLState() == code {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && e.Code() == code {
		return true
	}
	return false
}

func hasNumber(err error, number uint16) bool {
	e, ok := asError[errorNumberer](err)
	return ok && e.Number() == number
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
