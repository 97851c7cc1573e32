// Package sqlite registers the sqlite dialect, backed by the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dialect"
)

func init() {
	dialect.Register(Dialect{})
}

// Dialect implements dialect.Dialect for SQLite.
type Dialect struct{}

var _ dialect.Dialect = Dialect{}

// Name returns the dialect name.
func (Dialect) Name() string { return dialect.SQLite }

// DriverName returns the database/sql driver registration name.
func (Dialect) DriverName() string { return "sqlite" }

// Placeholder returns the n-th parameter placeholder.
func (Dialect) Placeholder(int) string { return "?" }

// SupportsReturning reports INSERT ... RETURNING support. Inserts read
// their generated keys back through LastInsertId instead.
func (Dialect) SupportsReturning() bool { return false }

// SupportsLastInsertID reports that sql.Result.LastInsertId works.
func (Dialect) SupportsLastInsertID() bool { return true }

// Init enables foreign key enforcement, which SQLite keeps off by
// default for backwards compatibility.
func (Dialect) Init(ctx context.Context, conn dialect.ExecQuerier) error {
	_, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON")
	return err
}

// DateFunctions returns the SQLite date expression renderer.
func (Dialect) DateFunctions() dialect.DateFunctions { return dateFuncs{} }

// DatabaseInfo reports the library version and user tables.
func (Dialect) DatabaseInfo(ctx context.Context, conn dialect.ExecQuerier) (*dialect.DatabaseInfo, error) {
	info := &dialect.DatabaseInfo{Dialect: dialect.SQLite}
	version, err := dialect.QueryStrings(ctx, conn, "SELECT sqlite_version()")
	if err != nil {
		return nil, err
	}
	if len(version) > 0 {
		info.Version = version[0]
	}
	tables, err := dialect.QueryStrings(ctx, conn,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	info.Tables = tables
	return info, nil
}

// TranslateError wraps constraint violations. Extended result codes keep
// the primary code SQLITE_CONSTRAINT (19) in the low byte.
func (Dialect) TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		if serr.Code()&0xff == 19 {
			return rowan.NewConstraintError(serr.Error(), err)
		}
		return err
	}
	if dialect.IsConstraintViolation(err) {
		return rowan.NewConstraintError(err.Error(), err)
	}
	return err
}

type dateFuncs struct{}

// unitsPerDay maps a duration unit to how many of it fit in a day.
// Unknown units fall back to day.
func unitsPerDay(unit string) int {
	switch strings.ToLower(unit) {
	case "hour":
		return 24
	case "minute":
		return 1440
	case "second":
		return 86400
	}
	return 1
}

func modifier(unit string) string {
	switch strings.ToLower(unit) {
	case "hour":
		return "hours"
	case "minute":
		return "minutes"
	case "second":
		return "seconds"
	}
	return "days"
}

func (dateFuncs) Now() string { return "datetime('now')" }

// Diff counts whole units between start and end; CAST truncates the
// julian day fraction towards zero.
func (dateFuncs) Diff(unit, start, end string) string {
	return fmt.Sprintf("CAST((julianday(%s) - julianday(%s)) * %d AS INTEGER)", end, start, unitsPerDay(unit))
}

func (dateFuncs) Add(expr string, amount int, unit string) string {
	return fmt.Sprintf("datetime(%s, '%+d %s')", expr, amount, modifier(unit))
}

func (dateFuncs) Format(expr, layout string) string {
	return fmt.Sprintf("strftime('%s', %s)", strings.ReplaceAll(layout, "'", "''"), expr)
}

// IsValid is true when expr parses as a date; datetime returns NULL for
// anything it cannot parse.
func (dateFuncs) IsValid(expr string) string {
	return fmt.Sprintf("datetime(%s) IS NOT NULL", expr)
}
