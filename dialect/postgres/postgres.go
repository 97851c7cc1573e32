// Package postgres registers the postgres dialect, backed by lib/pq.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dialect"
)

func init() {
	dialect.Register(Dialect{})
}

// Dialect implements dialect.Dialect for PostgreSQL.
type Dialect struct{}

var _ dialect.Dialect = Dialect{}

// Name returns the dialect name.
func (Dialect) Name() string { return dialect.Postgres }

// DriverName returns the database/sql driver registration name.
func (Dialect) DriverName() string { return "postgres" }

// Placeholder returns the n-th parameter placeholder, $1, $2, ...
func (Dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// SupportsReturning reports INSERT ... RETURNING support.
func (Dialect) SupportsReturning() bool { return true }

// SupportsLastInsertID reports that lib/pq does not implement
// sql.Result.LastInsertId; generated keys come back via RETURNING.
func (Dialect) SupportsLastInsertID() bool { return false }

// Init runs session setup. PostgreSQL needs none.
func (Dialect) Init(context.Context, dialect.ExecQuerier) error { return nil }

// DateFunctions returns the PostgreSQL date expression renderer.
func (Dialect) DateFunctions() dialect.DateFunctions { return dateFuncs{} }

// DatabaseInfo reports the server version and public schema tables.
func (Dialect) DatabaseInfo(ctx context.Context, conn dialect.ExecQuerier) (*dialect.DatabaseInfo, error) {
	info := &dialect.DatabaseInfo{Dialect: dialect.Postgres}
	version, err := dialect.QueryStrings(ctx, conn, "SELECT version()")
	if err != nil {
		return nil, err
	}
	if len(version) > 0 {
		info.Version = version[0]
	}
	tables, err := dialect.QueryStrings(ctx, conn,
		"SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename")
	if err != nil {
		return nil, err
	}
	info.Tables = tables
	return info, nil
}

// TranslateError wraps constraint violations, SQLSTATE class 23.
func (Dialect) TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var perr *pq.Error
	if errors.As(err, &perr) {
		if perr.Code.Class() == "23" {
			return rowan.NewConstraintError(perr.Message, err)
		}
		return err
	}
	if dialect.IsConstraintViolation(err) {
		return rowan.NewConstraintError(err.Error(), err)
	}
	return err
}

type dateFuncs struct{}

// secondsPer maps a duration unit to its length in seconds. Unknown
// units fall back to day.
func secondsPer(unit string) int {
	switch strings.ToLower(unit) {
	case "hour":
		return 3600
	case "minute":
		return 60
	case "second":
		return 1
	}
	return 86400
}

func intervalUnit(unit string) string {
	switch strings.ToLower(unit) {
	case "hour":
		return "hour"
	case "minute":
		return "minute"
	case "second":
		return "second"
	}
	return "day"
}

func (dateFuncs) Now() string { return "NOW()" }

// Diff counts whole units between start and end; TRUNC truncates the
// epoch quotient towards zero.
func (dateFuncs) Diff(unit, start, end string) string {
	return fmt.Sprintf(
		"CAST(TRUNC(EXTRACT(EPOCH FROM (CAST(%s AS timestamp) - CAST(%s AS timestamp))) / %d) AS INTEGER)",
		end, start, secondsPer(unit),
	)
}

func (dateFuncs) Add(expr string, amount int, unit string) string {
	return fmt.Sprintf("(CAST(%s AS timestamp) + INTERVAL '%d %s')", expr, amount, intervalUnit(unit))
}

// Format translates the strftime directives %Y %m %d %H %M %S to their
// TO_CHAR equivalents.
func (dateFuncs) Format(expr, layout string) string {
	r := strings.NewReplacer(
		"%Y", "YYYY",
		"%m", "MM",
		"%d", "DD",
		"%H", "HH24",
		"%M", "MI",
		"%S", "SS",
	)
	return fmt.Sprintf("TO_CHAR(CAST(%s AS timestamp), '%s')",
		expr, strings.ReplaceAll(r.Replace(layout), "'", "''"))
}

// IsValid only checks for NULL: PostgreSQL casts are strict and raise on
// malformed input instead of yielding NULL.
func (dateFuncs) IsValid(expr string) string {
	return fmt.Sprintf("(%s) IS NOT NULL", expr)
}
