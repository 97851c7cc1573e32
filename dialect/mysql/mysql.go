// Package mysql registers the mysql dialect, backed by go-sql-driver.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dialect"
)

func init() {
	dialect.Register(Dialect{})
}

// Dialect implements dialect.Dialect for MySQL and compatible servers.
type Dialect struct{}

var _ dialect.Dialect = Dialect{}

// Name returns the dialect name.
func (Dialect) Name() string { return dialect.MySQL }

// DriverName returns the database/sql driver registration name.
func (Dialect) DriverName() string { return "mysql" }

// Placeholder returns the n-th parameter placeholder.
func (Dialect) Placeholder(int) string { return "?" }

// SupportsReturning reports INSERT ... RETURNING support.
func (Dialect) SupportsReturning() bool { return false }

// SupportsLastInsertID reports that sql.Result.LastInsertId works.
func (Dialect) SupportsLastInsertID() bool { return true }

// Init runs session setup. MySQL needs none.
func (Dialect) Init(context.Context, dialect.ExecQuerier) error { return nil }

// DateFunctions returns the MySQL date expression renderer.
func (Dialect) DateFunctions() dialect.DateFunctions { return dateFuncs{} }

// DatabaseInfo reports the server version and current schema tables.
func (Dialect) DatabaseInfo(ctx context.Context, conn dialect.ExecQuerier) (*dialect.DatabaseInfo, error) {
	info := &dialect.DatabaseInfo{Dialect: dialect.MySQL}
	version, err := dialect.QueryStrings(ctx, conn, "SELECT VERSION()")
	if err != nil {
		return nil, err
	}
	if len(version) > 0 {
		info.Version = version[0]
	}
	tables, err := dialect.QueryStrings(ctx, conn,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name")
	if err != nil {
		return nil, err
	}
	info.Tables = tables
	return info, nil
}

// TranslateError wraps constraint violations: duplicate entry, null
// column, foreign key and check constraint error numbers.
func (Dialect) TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var merr *mysql.MySQLError
	if errors.As(err, &merr) {
		switch merr.Number {
		case 1048, 1062, 1216, 1217, 1451, 1452, 3819:
			return rowan.NewConstraintError(merr.Message, err)
		}
		return err
	}
	if dialect.IsConstraintViolation(err) {
		return rowan.NewConstraintError(err.Error(), err)
	}
	return err
}

type dateFuncs struct{}

// timestampUnit maps a duration unit to the TIMESTAMPDIFF/INTERVAL
// keyword. Unknown units fall back to day.
func timestampUnit(unit string) string {
	switch strings.ToLower(unit) {
	case "hour":
		return "HOUR"
	case "minute":
		return "MINUTE"
	case "second":
		return "SECOND"
	}
	return "DAY"
}

func (dateFuncs) Now() string { return "NOW()" }

// Diff counts whole units between start and end; TIMESTAMPDIFF truncates
// towards zero.
func (dateFuncs) Diff(unit, start, end string) string {
	return fmt.Sprintf("TIMESTAMPDIFF(%s, %s, %s)", timestampUnit(unit), start, end)
}

func (dateFuncs) Add(expr string, amount int, unit string) string {
	return fmt.Sprintf("DATE_ADD(%s, INTERVAL %d %s)", expr, amount, timestampUnit(unit))
}

// Format translates the strftime directives to DATE_FORMAT ones; they
// match except minutes, %i in MySQL.
func (dateFuncs) Format(expr, layout string) string {
	layout = strings.ReplaceAll(layout, "%M", "%i")
	return fmt.Sprintf("DATE_FORMAT(%s, '%s')", expr, strings.ReplaceAll(layout, "'", "''"))
}

// IsValid is true when expr parses as a date; DATE returns NULL for
// anything it cannot parse.
func (dateFuncs) IsValid(expr string) string {
	return fmt.Sprintf("DATE(%s) IS NOT NULL", expr)
}
